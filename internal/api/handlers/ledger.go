package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
	"github.com/netobunobi/taxis-zorro-manager/internal/repository"
	"github.com/netobunobi/taxis-zorro-manager/internal/service"
)

// pagination 解析 page/per_page 查询参数
func pagination(c *gin.Context) (limit, offset int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return perPage, (page - 1) * perPage
}

// parseWindow 解析 period/date 查询参数为时间窗
// 解析失败时已写好 400 响应，调用方直接 return
func (h *Handler) parseWindow(c *gin.Context) (repository.Window, bool) {
	period := service.Period(c.DefaultQuery("period", "all"))
	if !period.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report period"})
		return repository.Window{}, false
	}

	ref := time.Now()
	if d := c.Query("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, h.tz)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
			return repository.Window{}, false
		}
		ref = parsed
	}

	window, err := service.ResolveWindow(period, ref, h.tz)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return repository.Window{}, false
	}
	return window, true
}

// ListTrips 获取行程台账
func (h *Handler) ListTrips(c *gin.Context) {
	window, ok := h.parseWindow(c)
	if !ok {
		return
	}
	filter := repository.TripFilter{Window: window}
	if v := c.Query("vehicle_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
			return
		}
		filter.VehicleID = &id
	}

	limit, offset := pagination(c)
	trips, err := h.tripRepo.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list trips", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list trips"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": trips})
}

// ListVehicleTrips 获取某辆车的行程
func (h *Handler) ListVehicleTrips(c *gin.Context) {
	vehicleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return
	}
	window, ok := h.parseWindow(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	trips, err := h.tripRepo.List(c.Request.Context(), repository.TripFilter{Window: window, VehicleID: &vehicleID}, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list trips", zap.Error(err), zap.Int64("vehicle_id", vehicleID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list trips"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": trips})
}

// ListVehicleShifts 获取某辆车的班次
func (h *Handler) ListVehicleShifts(c *gin.Context) {
	vehicleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return
	}

	limit, offset := pagination(c)
	shifts, err := h.shiftRepo.ListByVehicle(c.Request.Context(), vehicleID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list shifts", zap.Error(err), zap.Int64("vehicle_id", vehicleID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list shifts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": shifts})
}

type updateTripRequest struct {
	ServiceKind models.ServiceKind `json:"service_kind" binding:"required"`
	Destination string             `json:"destination"`
	Fare        float64            `json:"fare"`
}

// UpdateTrip 修正行程记录
// PUT /api/trips/:id
func (h *Handler) UpdateTrip(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ID"})
		return
	}

	var req updateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip request"})
		return
	}
	if !req.ServiceKind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid service kind"})
		return
	}

	trip, err := h.tripRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trip not found"})
		return
	}

	trip.ServiceKind = req.ServiceKind
	trip.Destination = req.Destination
	trip.Fare = req.Fare
	if err := h.tripRepo.Update(c.Request.Context(), trip); err != nil {
		h.logger.Error("Failed to update trip", zap.Error(err), zap.Int64("trip_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update trip"})
		return
	}

	h.logger.Info("Trip corrected", zap.Int64("trip_id", id))
	c.JSON(http.StatusOK, gin.H{"data": trip})
}

// DeleteTrip 删除误录的行程
func (h *Handler) DeleteTrip(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ID"})
		return
	}

	if err := h.tripRepo.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to delete trip", zap.Error(err), zap.Int64("trip_id", id))
		c.JSON(http.StatusNotFound, gin.H{"error": "Trip not found"})
		return
	}

	h.logger.Info("Trip deleted", zap.Int64("trip_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Trip deleted"})
}

// ListIncidents 获取罚款/通报台账
func (h *Handler) ListIncidents(c *gin.Context) {
	window, ok := h.parseWindow(c)
	if !ok {
		return
	}
	filter := repository.TripFilter{Window: window}
	if v := c.Query("vehicle_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
			return
		}
		filter.VehicleID = &id
	}

	limit, offset := pagination(c)
	incidents, err := h.incidentRepo.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list incidents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list incidents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": incidents})
}

type createIncidentRequest struct {
	VehicleID   int64               `json:"vehicle_id" binding:"required"`
	Kind        models.IncidentKind `json:"kind" binding:"required"`
	Description string              `json:"description" binding:"required"`
	Amount      float64             `json:"amount"`
	RecordedBy  string              `json:"recorded_by" binding:"required"`
}

// CreateIncident 调度员手工记一笔罚款或通报
func (h *Handler) CreateIncident(c *gin.Context) {
	var req createIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid incident request"})
		return
	}
	switch req.Kind {
	case models.IncidentDisciplinaryNote, models.IncidentFee:
	default:
		// 工时和缺勤类只能由稽核引擎落账
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid incident kind"})
		return
	}

	if _, err := h.vehicleRepo.GetByID(c.Request.Context(), req.VehicleID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}

	resolution := models.ResolutionInformational
	if req.Amount > 0 {
		resolution = models.ResolutionPending
	}
	incident := &models.Incident{
		VehicleID:   req.VehicleID,
		Kind:        req.Kind,
		Description: req.Description,
		Amount:      req.Amount,
		RecordedBy:  req.RecordedBy,
		Resolution:  resolution,
		CreatedAt:   time.Now(),
	}
	if err := h.incidentRepo.Insert(c.Request.Context(), incident); err != nil {
		h.logger.Error("Failed to create incident", zap.Error(err), zap.Int64("vehicle_id", req.VehicleID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create incident"})
		return
	}

	h.logger.Info("Incident recorded",
		zap.Int64("incident_id", incident.ID),
		zap.Int64("vehicle_id", incident.VehicleID),
		zap.String("kind", string(incident.Kind)),
	)
	c.JSON(http.StatusCreated, gin.H{"data": incident})
}

// ResolveIncident 把事务标记为已处理（罚款已缴等）
func (h *Handler) ResolveIncident(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid incident ID"})
		return
	}

	if err := h.incidentRepo.Resolve(c.Request.Context(), id, time.Now()); err != nil {
		h.logger.Error("Failed to resolve incident", zap.Error(err), zap.Int64("incident_id", id))
		c.JSON(http.StatusNotFound, gin.H{"error": "Incident not found"})
		return
	}

	h.logger.Info("Incident resolved", zap.Int64("incident_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Incident resolved"})
}
