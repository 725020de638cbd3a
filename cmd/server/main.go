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

	"github.com/langchou/fleetgazer/internal/api/handlers"
	"github.com/langchou/fleetgazer/internal/config"
	"github.com/langchou/fleetgazer/internal/ingest"
	"github.com/langchou/fleetgazer/internal/prediction"
	"github.com/langchou/fleetgazer/internal/repository"
	"github.com/langchou/fleetgazer/internal/seed"
	"github.com/langchou/fleetgazer/internal/service"
	"github.com/langchou/fleetgazer/internal/state"
	"github.com/langchou/fleetgazer/internal/transport/natsfeed"
	"github.com/langchou/fleetgazer/pkg/ws"
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

	logger.Info("Starting Fleetgazer", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 选择批量加载来源
	source, db, err := openSource(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to prepare fleet source", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	// 车队状态与唯一写入口
	store := state.NewStore(state.WithHistoryLimit(cfg.LocationHistoryLimit))
	ingester := ingest.New(store, logger, ingest.WithQueueSize(cfg.IngestQueueSize))

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run(ctx)

	// 预测服务
	predictions := prediction.NewService(
		prediction.NewStubPredictor(cfg.PredictionLatency),
		store,
		logger,
		cfg.PredictionTimeout,
	)

	// 配置数据库时历史轨迹持久化到 positions 表
	var positions service.PositionStore
	if db != nil {
		positions = repository.NewPositionRepository(db, cfg.LocationHistoryLimit)
	}

	// 创建车队服务
	fleetService := service.NewFleetService(
		logger,
		store,
		ingester,
		predictions,
		wsHub,
		service.Options{
			StaleAfter:         cfg.StaleAfter,
			StaleCheckInterval: cfg.StaleCheckInterval,
			Positions:          positions,
		},
	)

	wsHub.SetInitDataProvider(fleetService.InitData)
	wsHub.SetMessageHandler(func(ctx context.Context, raw []byte) error {
		_, err := fleetService.Ingest(ctx, raw)
		return err
	})

	if err := fleetService.Start(ctx, source); err != nil {
		logger.Fatal("Failed to start fleet service", zap.Error(err))
	}

	// NATS 实时更新（可选）
	var feed *natsfeed.Feed
	if cfg.NATSURL != "" {
		feed = natsfeed.New(cfg.NATSURL, cfg.NATSSubject, fleetService, logger)
		if err := feed.Start(); err != nil {
			logger.Error("Failed to start NATS feed", zap.Error(err))
			feed = nil
		}
	}

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, fleetService, predictions, wsHub)

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

	// 停止服务
	if feed != nil {
		feed.Stop()
	}
	fleetService.Stop()
	predictions.Close()
	cancel()

	logger.Info("Server exited")
}

// openSource 选择车队加载来源：数据库、文件或内置车队
// 使用数据库时返回连接，由调用方关闭。
func openSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (seed.Source, *repository.DB, error) {
	if cfg.DatabaseURL == "" {
		if cfg.SeedFile != "" {
			logger.Info("Loading fleet from file", zap.String("path", cfg.SeedFile))
			return seed.FileSource{Path: cfg.SeedFile}, nil, nil
		}
		logger.Info("Loading built-in demo fleet")
		return seed.FixtureSource{}, nil, nil
	}

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("Database migrated successfully")

	repo := repository.NewVehicleRepository(db)
	if cfg.DatabaseSeed {
		if err := seedDatabase(ctx, cfg, repo, logger); err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	logger.Info("Loading fleet from database")
	return repo, db, nil
}

// seedDatabase 表为空时写入初始车队
func seedDatabase(ctx context.Context, cfg *config.Config, repo *repository.VehicleRepository, logger *zap.Logger) error {
	count, err := repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count vehicles: %w", err)
	}
	if count > 0 {
		return nil
	}

	var src seed.Source = seed.FixtureSource{}
	if cfg.SeedFile != "" {
		src = seed.FileSource{Path: cfg.SeedFile}
	}
	vehicles, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load seed fleet: %w", err)
	}
	if err := repo.ReplaceAll(ctx, vehicles); err != nil {
		return fmt.Errorf("seed database: %w", err)
	}

	logger.Info("Database seeded", zap.Int("vehicles", len(vehicles)))
	return nil
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
