package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
	"github.com/netobunobi/taxis-zorro-manager/internal/state"
)

// ListLocations 获取位置目录
func (h *Handler) ListLocations(c *gin.Context) {
	locations, err := h.locationRepo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list locations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list locations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": locations})
}

type createLocationRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateLocation 新增实体候客点
// 虚拟位置是固定目录，只能新增实体候客点
func (h *Handler) CreateLocation(c *gin.Context) {
	var req createLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location request"})
		return
	}

	loc := &models.Location{Name: req.Name, Category: models.CategoryPhysicalBase}
	if err := h.locationRepo.Create(c.Request.Context(), loc); err != nil {
		h.logger.Error("Failed to create location", zap.Error(err), zap.String("name", req.Name))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create location"})
		return
	}

	h.logger.Info("Location created", zap.Int64("location_id", loc.ID), zap.String("name", loc.Name))
	c.JSON(http.StatusCreated, gin.H{"data": loc})
}

// DeleteLocation 删除实体候客点
// 站在上面的车辆先撤到停运位
func (h *Handler) DeleteLocation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location ID"})
		return
	}

	loc, err := h.locationRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Location not found"})
		return
	}
	if loc.Category != models.CategoryPhysicalBase {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only physical bases can be deleted"})
		return
	}

	fallback, err := h.locationRepo.GetByCategory(c.Request.Context(), models.CategoryOutOfService)
	if err != nil {
		h.logger.Error("Failed to resolve fallback location", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve fallback location"})
		return
	}

	if err := h.locationRepo.Delete(c.Request.Context(), id, fallback.ID); err != nil {
		h.logger.Error("Failed to delete location", zap.Error(err), zap.Int64("location_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete location"})
		return
	}

	h.logger.Info("Location deleted", zap.Int64("location_id", id), zap.String("name", loc.Name))
	c.JSON(http.StatusOK, gin.H{"message": "Location deleted"})
}

// ListVehicles 获取车辆列表
func (h *Handler) ListVehicles(c *gin.Context) {
	var err error
	var vehicles []*models.Vehicle
	if c.Query("all") == "true" {
		vehicles, err = h.vehicleRepo.ListAll(c.Request.Context())
	} else {
		vehicles, err = h.vehicleRepo.ListActive(c.Request.Context())
	}
	if err != nil {
		h.logger.Error("Failed to list vehicles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list vehicles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

type createVehicleRequest struct {
	UnitNumber string `json:"unit_number" binding:"required"`
}

// CreateVehicle 登记新车辆
// 新车从停运位起步，由调度员拖上板
func (h *Handler) CreateVehicle(c *gin.Context) {
	var req createVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle request"})
		return
	}

	start, err := h.locationRepo.GetByCategory(c.Request.Context(), models.CategoryOutOfService)
	if err != nil {
		h.logger.Error("Failed to resolve start location", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve start location"})
		return
	}

	vehicle, err := h.vehicleRepo.Create(c.Request.Context(), req.UnitNumber, start.ID)
	if err != nil {
		h.logger.Error("Failed to create vehicle", zap.Error(err), zap.String("unit", req.UnitNumber))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create vehicle"})
		return
	}

	h.machines.GetOrCreate(vehicle.ID, &state.BoardState{
		VehicleID:  vehicle.ID,
		UnitNumber: vehicle.UnitNumber,
		Category:   start.Category,
		LocationID: start.ID,
		Since:      vehicle.LastMovedAt,
	})

	h.logger.Info("Vehicle registered", zap.Int64("vehicle_id", vehicle.ID), zap.String("unit", vehicle.UnitNumber))
	c.JSON(http.StatusCreated, gin.H{"data": vehicle})
}

// GetVehicle 获取车辆详情
func (h *Handler) GetVehicle(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return
	}

	vehicle, err := h.vehicleRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}

// DeactivateVehicle 停用车辆（软删除，历史台账保留）
// POST /api/vehicles/:id/deactivate
func (h *Handler) DeactivateVehicle(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return
	}

	if err := h.vehicleRepo.SetStatus(c.Request.Context(), id, models.VehicleInactive, time.Now()); err != nil {
		h.logger.Error("Failed to deactivate vehicle", zap.Error(err), zap.Int64("vehicle_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate vehicle"})
		return
	}

	// 停用的车从板上摘掉
	h.machines.Remove(id)

	h.logger.Info("Vehicle deactivated", zap.Int64("vehicle_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Vehicle deactivated"})
}

// ActivateVehicle 重新启用车辆，按数据库里的位置放回板上
// POST /api/vehicles/:id/activate
func (h *Handler) ActivateVehicle(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return
	}

	if err := h.vehicleRepo.SetStatus(c.Request.Context(), id, models.VehicleActive, time.Now()); err != nil {
		h.logger.Error("Failed to activate vehicle", zap.Error(err), zap.Int64("vehicle_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to activate vehicle"})
		return
	}

	vehicle, err := h.vehicleRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}
	if loc, err := h.locationRepo.GetByID(c.Request.Context(), vehicle.CurrentLocationID); err == nil {
		h.machines.GetOrCreate(vehicle.ID, &state.BoardState{
			VehicleID:  vehicle.ID,
			UnitNumber: vehicle.UnitNumber,
			Category:   loc.Category,
			LocationID: loc.ID,
			Since:      vehicle.LastMovedAt,
		})
	}

	h.logger.Info("Vehicle activated", zap.Int64("vehicle_id", id))
	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}

// DeleteVehicle 物理删除车辆；有历史台账的车只能停用
func (h *Handler) DeleteVehicle(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return
	}

	if err := h.vehicleRepo.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to delete vehicle", zap.Error(err), zap.Int64("vehicle_id", id))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	h.machines.Remove(id)
	h.logger.Info("Vehicle deleted", zap.Int64("vehicle_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Vehicle deleted"})
}
