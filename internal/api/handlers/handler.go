package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/netobunobi/taxis-zorro-manager/internal/repository"
	"github.com/netobunobi/taxis-zorro-manager/internal/service"
	"github.com/netobunobi/taxis-zorro-manager/internal/state"
	"github.com/netobunobi/taxis-zorro-manager/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger        *zap.Logger
	vehicleRepo   *repository.VehicleRepository
	locationRepo  *repository.LocationRepository
	shiftRepo     *repository.ShiftRepository
	tripRepo      *repository.TripRepository
	incidentRepo  *repository.IncidentRepository
	auditRepo     *repository.AuditRepository
	fleetService  *service.FleetService
	auditService  *service.AuditService
	reportService *service.ReportService
	machines      *state.Manager
	tz            *time.Location
	wsHub         *ws.Hub
	upgrader      websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	vehicleRepo *repository.VehicleRepository,
	locationRepo *repository.LocationRepository,
	shiftRepo *repository.ShiftRepository,
	tripRepo *repository.TripRepository,
	incidentRepo *repository.IncidentRepository,
	auditRepo *repository.AuditRepository,
	fleetService *service.FleetService,
	auditService *service.AuditService,
	reportService *service.ReportService,
	machines *state.Manager,
	tz *time.Location,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:        logger,
		vehicleRepo:   vehicleRepo,
		locationRepo:  locationRepo,
		shiftRepo:     shiftRepo,
		tripRepo:      tripRepo,
		incidentRepo:  incidentRepo,
		auditRepo:     auditRepo,
		fleetService:  fleetService,
		auditService:  auditService,
		reportService: reportService,
		machines:      machines,
		tz:            tz,
		wsHub:         wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 调度板
		api.GET("/board", h.GetBoard)
		api.POST("/board/move", h.MoveVehicle)
		api.POST("/board/confirm", h.ConfirmRebound)
		api.POST("/board/batch/enter", h.EnterBatchMode) // 冻结板面，开始批量重排
		api.POST("/board/batch/exit", h.ExitBatchMode)

		// 位置目录
		api.GET("/locations", h.ListLocations)
		api.POST("/locations", h.CreateLocation)
		api.DELETE("/locations/:id", h.DeleteLocation)

		// 车辆
		api.GET("/vehicles", h.ListVehicles)
		api.POST("/vehicles", h.CreateVehicle)
		api.GET("/vehicles/:id", h.GetVehicle)
		api.POST("/vehicles/:id/activate", h.ActivateVehicle)     // 重新启用
		api.POST("/vehicles/:id/deactivate", h.DeactivateVehicle) // 停用（软删除）
		api.DELETE("/vehicles/:id", h.DeleteVehicle)

		// 台账
		api.GET("/vehicles/:id/trips", h.ListVehicleTrips)
		api.GET("/vehicles/:id/shifts", h.ListVehicleShifts)
		api.GET("/trips", h.ListTrips)
		api.PUT("/trips/:id", h.UpdateTrip)
		api.DELETE("/trips/:id", h.DeleteTrip)

		// 考勤稽核
		api.POST("/audit/run", h.RunAudit)
		api.POST("/audit/commit", h.CommitAudit)
		api.GET("/audit/runs", h.ListAuditRuns)

		// 罚款/通报
		api.GET("/incidents", h.ListIncidents)
		api.POST("/incidents", h.CreateIncident)
		api.POST("/incidents/:id/resolve", h.ResolveIncident)

		// 报表
		api.GET("/reports/company", h.CompanyReport)
		api.GET("/reports/vehicles/:id", h.VehicleReport)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
