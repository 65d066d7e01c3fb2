package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/netobunobi/taxis-zorro-manager/internal/service"
)

// parseReportArgs 解析 period/date 查询参数
func (h *Handler) parseReportArgs(c *gin.Context) (service.Period, time.Time, bool) {
	period := service.Period(c.DefaultQuery("period", "day"))
	if !period.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report period"})
		return "", time.Time{}, false
	}

	ref := time.Now()
	if d := c.Query("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, h.tz)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
			return "", time.Time{}, false
		}
		ref = parsed
	}
	return period, ref, true
}

// CompanyReport 全公司汇总报表
// GET /api/reports/company?period=day|month|year|all&date=YYYY-MM-DD
func (h *Handler) CompanyReport(c *gin.Context) {
	period, ref, ok := h.parseReportArgs(c)
	if !ok {
		return
	}

	report, err := h.reportService.CompanySummary(c.Request.Context(), period, ref)
	if err != nil {
		h.logger.Error("Failed to build company report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build company report"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

// VehicleReport 单车报表
// GET /api/reports/vehicles/:id?period=day|month|year|all&date=YYYY-MM-DD
func (h *Handler) VehicleReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return
	}
	period, ref, ok := h.parseReportArgs(c)
	if !ok {
		return
	}

	report, err := h.reportService.VehicleSummary(c.Request.Context(), id, period, ref)
	if err != nil {
		if errors.Is(err, service.ErrVehicleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
			return
		}
		h.logger.Error("Failed to build vehicle report", zap.Error(err), zap.Int64("vehicle_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build vehicle report"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
