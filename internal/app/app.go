package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/cache"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/config"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/controller"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/repository"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/service"
	"github.com/vasifalituri/sechenov-plus-sub000/pkg/database"
	"github.com/vasifalituri/sechenov-plus-sub000/pkg/logger"
	"github.com/vasifalituri/sechenov-plus-sub000/pkg/monitoring"
	"github.com/vasifalituri/sechenov-plus-sub000/pkg/security"
	"github.com/vasifalituri/sechenov-plus-sub000/pkg/tracing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	subject  *repository.SubjectRepository
	block    *repository.BlockRepository
	question *repository.QuestionRepository
	attempt  *repository.AttemptRepository
}

type services struct {
	storage *service.StorageService
	stats   *service.StatsService
	catalog *service.CatalogService
	attempt *service.AttemptService
}

type controllers struct {
	attempt *controller.AttemptController
	catalog *controller.CatalogController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig pushes a reloaded config to every registered callback.
func (a *App) ApplyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		subject:  repository.NewSubjectRepository(db),
		block:    repository.NewBlockRepository(db),
		question: repository.NewQuestionRepository(db),
		attempt:  repository.NewAttemptRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.stats = service.NewStatsService(repos.question, repos.block, repos.subject)
	s.catalog = service.NewCatalogService(repos.subject, repos.block, repos.question)

	var attemptCache cache.AttemptCache
	if rdb != nil {
		attemptCache = cache.NewRedisAttemptCache(rdb, time.Duration(cfg.Quiz.CacheTTLHours)*time.Hour)
	} else {
		attemptCache = cache.NewMemoryAttemptCache()
	}

	s.attempt = service.NewAttemptService(
		repos.question,
		repos.attempt,
		repos.subject,
		repos.block,
		s.stats,
		s.storage,
		attemptCache,
		cfg,
	)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		attempt: controller.NewAttemptController(s.attempt),
		catalog: controller.NewCatalogController(s.catalog),
		health:  controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}

	if cfg.MigrateOnly {
		return app
	}

	// Redis is optional: without it the resync cache degrades to in-process
	// memory, which only serves a single instance.
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, using in-memory resync cache", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db)

	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		_, err := tracing.InitTracer("quiz-engine", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		services.attempt.SetDrawSize(newCfg.Quiz.RandomDrawSize)
		logger.Log.Info("Applied reloaded config",
			zap.Int("randomDrawSize", newCfg.Quiz.RandomDrawSize))
	})

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
