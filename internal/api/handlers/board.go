package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/netobunobi/taxis-zorro-manager/internal/service"
)

// GetBoard 获取调度板快照
func (h *Handler) GetBoard(c *gin.Context) {
	board, err := h.fleetService.Board(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to build board snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build board snapshot"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": board})
}

// MoveVehicle 调度板拖动
// POST /api/board/move
func (h *Handler) MoveVehicle(c *gin.Context) {
	var req service.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid move request"})
		return
	}

	outcome, err := h.fleetService.RequestMove(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVehicleNotFound), errors.Is(err, service.ErrLocationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to apply move", zap.Error(err), zap.Int64("vehicle_id", req.VehicleID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if outcome.Status == service.MoveApplied {
		h.wsHub.BroadcastBoardUpdate(outcome.State)
	}
	c.JSON(http.StatusOK, gin.H{"data": outcome})
}

type confirmRequest struct {
	Token  string `json:"token" binding:"required"`
	Accept bool   `json:"accept"`
}

// ConfirmRebound 调度员对载客中改派的答复
// POST /api/board/confirm
func (h *Handler) ConfirmRebound(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid confirm request"})
		return
	}

	outcome, err := h.fleetService.ConfirmRebound(c.Request.Context(), req.Token, req.Accept)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPendingMoveNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrVehicleNotFound), errors.Is(err, service.ErrLocationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to confirm rebound", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if outcome.Status == service.MoveApplied {
		h.wsHub.BroadcastBoardUpdate(outcome.State)
	}
	c.JSON(http.StatusOK, gin.H{"data": outcome})
}

// EnterBatchMode 进入批量重排模式
func (h *Handler) EnterBatchMode(c *gin.Context) {
	h.fleetService.EnterBatchMode()
	c.JSON(http.StatusOK, gin.H{"message": "Batch mode entered"})
}

// ExitBatchMode 退出批量重排模式
func (h *Handler) ExitBatchMode(c *gin.Context) {
	h.fleetService.ExitBatchMode()
	c.JSON(http.StatusOK, gin.H{"message": "Batch mode exited"})
}
