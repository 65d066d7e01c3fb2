package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/netobunobi/taxis-zorro-manager/internal/api/handlers"
	"github.com/netobunobi/taxis-zorro-manager/internal/config"
	"github.com/netobunobi/taxis-zorro-manager/internal/repository"
	"github.com/netobunobi/taxis-zorro-manager/internal/service"
	"github.com/netobunobi/taxis-zorro-manager/internal/state"
	"github.com/netobunobi/taxis-zorro-manager/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting taxis-zorro-manager", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移（含位置目录种子数据）
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 创建 Repository
	locationRepo := repository.NewLocationRepository(db)
	vehicleRepo := repository.NewVehicleRepository(db)
	shiftRepo := repository.NewShiftRepository(db)
	tripRepo := repository.NewTripRepository(db)
	incidentRepo := repository.NewIncidentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	fleetRepo := repository.NewFleetRepository(db)
	reportRepo := repository.NewReportRepository(db, cfg.Timezone)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	// 状态机管理器：类别变化打一条日志，板面推送由调度服务负责
	machines := state.NewManager(func(vehicleID int64, from, to string) {
		logger.Debug("vehicle category changed",
			zap.Int64("vehicle_id", vehicleID),
			zap.String("from", from),
			zap.String("to", to),
		)
	})

	// 创建业务服务
	fleetService := service.NewFleetService(
		vehicleRepo,
		locationRepo,
		shiftRepo,
		tripRepo,
		fleetRepo,
		machines,
		logger,
	)
	auditService := service.NewAuditService(
		vehicleRepo,
		locationRepo,
		shiftRepo,
		auditRepo,
		logger,
		cfg.AuditHoursThreshold,
		cfg.AuditRatePerHour,
		cfg.AuditGoLiveDate,
		cfg.Timezone,
	)
	reportService := service.NewReportService(reportRepo, vehicleRepo, cfg.Timezone, logger)

	// 启动时按数据库重建调度板
	if err := fleetService.LoadBoard(ctx); err != nil {
		logger.Fatal("Failed to load board", zap.Error(err))
	}

	// 新 WebSocket 连接下发完整板面
	wsHub.SetSnapshotProvider(func() interface{} {
		board, err := fleetService.Board(context.Background())
		if err != nil {
			logger.Error("Failed to build snapshot for client", zap.Error(err))
			return nil
		}
		return board
	})

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		vehicleRepo,
		locationRepo,
		shiftRepo,
		tripRepo,
		incidentRepo,
		auditRepo,
		fleetService,
		auditService,
		reportService,
		machines,
		cfg.Timezone,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
