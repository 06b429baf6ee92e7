package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/restoros/drylog/internal/config"
	"github.com/restoros/drylog/internal/drying/entity"
	"github.com/restoros/drylog/internal/drying/handler"
	"github.com/restoros/drylog/internal/drying/repository"
	"github.com/restoros/drylog/internal/drying/service"
	"github.com/restoros/drylog/internal/middleware"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting drylog service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&entity.DryingLog{},
		&entity.Chamber{},
		&entity.Room{},
		&entity.ReferencePoint{},
		&entity.Baseline{},
		&entity.Visit{},
		&entity.AtmosphericReading{},
		&entity.MoistureReading{},
		&entity.VisitNote{},
		&entity.EquipmentPlacement{},
		&entity.DryingReport{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}
	// 序号计数器列在老库上补齐
	db.Exec("ALTER TABLE drying_logs ADD COLUMN IF NOT EXISTS visit_seq INT NOT NULL DEFAULT 0")
	db.Exec("ALTER TABLE drying_rooms ADD COLUMN IF NOT EXISTS ref_seq INT NOT NULL DEFAULT 0")

	// 初始化Redis（巡检草稿缓存）
	rdb := initRedis(cfg.Redis)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zapLogger.Warn("Redis not reachable, visit drafts disabled", zap.Error(err))
	}

	// 组装依赖
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb, cfg)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": Version})
	})

	api := r.Group("/api/v1", middleware.JWTAuth(cfg.JWT.Secret))

	// 干燥日志
	api.POST("/drying-logs", h.Log.Create)
	api.GET("/drying-logs/:id", h.Log.Get)
	api.GET("/jobs/:jobId/drying-log", h.Log.GetByJob)
	api.POST("/drying-logs/:id/setup/complete", h.Log.CompleteSetup)
	api.POST("/drying-logs/:id/setup/reopen", h.Log.ReopenSetup)

	// 物理结构
	api.POST("/drying-logs/:id/chambers", h.Structure.CreateChamber)
	api.GET("/drying-logs/:id/chambers", h.Structure.ListChambers)
	api.PUT("/drying-logs/:id/chambers/:chamberId", h.Structure.UpdateChamber)
	api.POST("/drying-logs/:id/rooms", h.Structure.CreateRoom)
	api.PUT("/drying-logs/:id/rooms/:roomId", h.Structure.UpdateRoom)
	api.POST("/drying-logs/:id/ref-points", h.Structure.CreateRefPoint)
	api.GET("/drying-logs/:id/ref-points", h.Structure.ListRefPoints)
	api.DELETE("/drying-logs/:id/ref-points/:pointId", h.Structure.DeleteRefPoint)
	api.PUT("/drying-logs/:id/baselines", h.Structure.UpsertBaseline)
	api.GET("/drying-logs/:id/baselines", h.Structure.ListBaselines)

	// 巡检（草稿 → 确认落库）
	api.GET("/drying-logs/:id/visits/draft", h.Visit.GetDraft)
	api.PUT("/drying-logs/:id/visits/draft", h.Visit.SaveDraft)
	api.DELETE("/drying-logs/:id/visits/draft", h.Visit.DiscardDraft)
	api.POST("/drying-logs/:id/visits", h.Visit.Save)
	api.GET("/drying-logs/:id/visits", h.Visit.List)
	api.GET("/drying-logs/:id/visits/:visitId", h.Visit.Get)
	api.PATCH("/drying-logs/:id/visits/:visitId", h.Visit.UpdateVisitedAt)
	api.POST("/drying-logs/:id/visits/:visitId/notes", h.Visit.AddNote)

	// 拆除
	api.POST("/drying-logs/:id/ref-points/:pointId/demolish", h.Visit.Demolish)
	api.POST("/drying-logs/:id/ref-points/:pointId/undo-demolish", h.Visit.UndoDemolish)

	// 设备台账
	api.POST("/drying-logs/:id/equipment", h.Equipment.Place)
	api.GET("/drying-logs/:id/equipment", h.Equipment.Ledger)
	api.GET("/drying-logs/:id/equipment/daily-activity", h.Equipment.DailyActivityView)
	api.GET("/drying-logs/:id/equipment/billing-summary", h.Equipment.BillingSummaryView)
	api.POST("/drying-logs/:id/equipment/:placementId/remove", h.Equipment.Remove)

	// 完工
	api.GET("/drying-logs/:id/completion", h.Completion.Status)
	api.POST("/drying-logs/:id/complete", h.Completion.Complete)
	api.POST("/drying-logs/:id/reopen", middleware.RequireRole("mitigation_admin"), h.Completion.Reopen)

	// 报告
	api.POST("/drying-logs/:id/reports", h.Report.Generate)
	api.GET("/drying-logs/:id/reports", h.Report.List)
	api.GET("/drying-logs/:id/reports/:reportId/download", h.Report.Download)
	api.GET("/drying-logs/:id/export/excel", h.Report.ExportExcel)
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}
