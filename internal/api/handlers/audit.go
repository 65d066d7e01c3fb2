package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
	"github.com/netobunobi/taxis-zorro-manager/internal/service"
	"github.com/netobunobi/taxis-zorro-manager/pkg/ws"
)

// parseAuditDate 解析请求里的稽核日期，缺省为今天
func (h *Handler) parseAuditDate(c *gin.Context, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Now().In(h.tz), true
	}
	date, err := time.ParseInLocation("2006-01-02", raw, h.tz)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

type runAuditRequest struct {
	Date string `json:"date"`
}

// RunAudit 稽核预览：算出当日结论但不落账
// POST /api/audit/run
func (h *Handler) RunAudit(c *gin.Context) {
	var req runAuditRequest
	// 空请求体按今天稽核
	_ = c.ShouldBindJSON(&req)
	date, ok := h.parseAuditDate(c, req.Date)
	if !ok {
		return
	}

	report, err := h.auditService.RunDailyAudit(c.Request.Context(), date)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAuditAlreadyRun):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrAuditBeforeGoLive):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to run audit", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run audit"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

type commitAuditRequest struct {
	Date     string                `json:"date" binding:"required"`
	Findings []models.AuditFinding `json:"findings"`
}

// CommitAudit 把稽核结论落账
// POST /api/audit/commit
func (h *Handler) CommitAudit(c *gin.Context) {
	var req commitAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid commit request"})
		return
	}
	date, ok := h.parseAuditDate(c, req.Date)
	if !ok {
		return
	}

	run, err := h.auditService.CommitFindings(c.Request.Context(), date, req.Findings)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAuditAlreadyRun):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrAuditBeforeGoLive):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to commit audit", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit audit"})
		}
		return
	}

	h.wsHub.BroadcastMessage(ws.MsgTypeAuditDone, run)
	c.JSON(http.StatusCreated, gin.H{"data": run})
}

// ListAuditRuns 获取已提交的稽核批次
func (h *Handler) ListAuditRuns(c *gin.Context) {
	runs, err := h.auditRepo.ListRuns(c.Request.Context(), 90)
	if err != nil {
		h.logger.Error("Failed to list audit runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}
