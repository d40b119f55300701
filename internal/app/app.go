package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"edu_portal_backend/internal/config"
	"edu_portal_backend/internal/controller"
	"edu_portal_backend/internal/repository"
	"edu_portal_backend/internal/service"
	"edu_portal_backend/pkg/configwatcher"
	"edu_portal_backend/pkg/database"
	"edu_portal_backend/pkg/logger"
	"edu_portal_backend/pkg/monitoring"
	"edu_portal_backend/pkg/security"
	"edu_portal_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	ConfigDir       string
	shutdownHooks   []func(context.Context) error
	configMu        sync.Mutex
	configCallbacks []func(*config.Config)
}

// Stores groups the storage handles the services are built on.
type Stores struct {
	Assessments service.AssessmentStore
	Attempts    interface {
		service.AttemptStore
		service.ManualAttemptSource
	}
	AIAttempts service.AIAttemptSource
	Students   service.StudentDirectory
}

type services struct {
	identity   *service.IdentityService
	assessment *service.AssessmentService
	attempt    *service.AttemptService
	marks      *service.MarksService
}

type controllers struct {
	assessment *controller.AssessmentController
	attempt    *controller.AttemptController
	marks      *controller.MarksController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configMu.Lock()
	defer a.configMu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	a.configMu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.configMu.Unlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
}

func GormStores(db *gorm.DB) Stores {
	return Stores{
		Assessments: repository.NewAssessmentRepository(db),
		Attempts:    repository.NewAttemptRepository(db),
		AIAttempts:  repository.NewAIAttemptRepository(db),
		Students:    repository.NewStudentRepository(db),
	}
}

func initServices(stores Stores, cfg *config.Config, rdb *redis.Client) *services {
	loc, err := cfg.Schedule.Location()
	if err != nil {
		// LoadConfig 已校验时区
		loc = time.Local
	}

	s := &services{}
	s.identity = service.NewIdentityService(stores.Students, rdb, cfg.Redis.TTL)
	s.assessment = service.NewAssessmentService(stores.Assessments, s.identity, loc)
	s.attempt = service.NewAttemptService(stores.Assessments, stores.Attempts, s.identity, loc)
	s.marks = service.NewMarksService(stores.Attempts, stores.AIAttempts, s.identity)
	return s
}

func initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	c := &controllers{
		assessment: controller.NewAssessmentController(s.assessment),
		attempt:    controller.NewAttemptController(s.attempt),
		marks:      controller.NewMarksController(s.marks),
	}
	if db != nil {
		c.health = controller.NewHealthController(db, rdb)
	}
	return c
}

func setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiterFromConfig(cfg.RateLimit))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// NewHandler wires services and controllers over stores and returns the
// HTTP engine. db may be nil, which drops the health route.
func NewHandler(cfg *config.Config, stores Stores, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	service.RegisterBindings()

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	setupMiddlewares(router, cfg)

	c := initControllers(initServices(stores, cfg, rdb), db, rdb)
	registerRoutes(router, c, cfg)
	return router
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully", zap.String("level", logger.Level().String()))

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// release 模式下默认不自动迁移，需通过 -migrate 显式开启
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{
		Config:    cfg,
		DB:        db,
		ConfigDir: "configs",
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// 缓存为可选组件，连接失败时降级为直接查库
		logger.Log.Warn("Redis unavailable, identity cache disabled", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.shutdownHooks = append(app.shutdownHooks, tp.Shutdown)
	}

	app.Router = NewHandler(cfg, GormStores(db), db, rdb)

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		logger.SetLevel(newCfg)
		logger.Log.Info("Configuration reloaded", zap.String("level", logger.Level().String()))
	})

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	stopWatch := make(chan struct{})
	go func() {
		if err := configwatcher.WatchConfig(a.ConfigDir, stopWatch, a.applyConfig); err != nil {
			logger.Log.Warn("Config watcher stopped", zap.Error(err))
		}
	}()

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")
	close(stopWatch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	for _, hook := range a.shutdownHooks {
		if err := hook(ctx); err != nil {
			logger.Log.Error("Shutdown hook failed", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Log.Info("Server exiting")
}
