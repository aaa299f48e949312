package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tileverse/core/internal/config"
	"github.com/tileverse/core/internal/database"
	"github.com/tileverse/core/internal/middleware"
	"github.com/tileverse/core/internal/modules/analytics"
	pkgcron "github.com/tileverse/core/internal/pkg/cron"
	jwtpkg "github.com/tileverse/core/internal/pkg/jwt"
	"github.com/tileverse/core/internal/pkg/objstore"
	pkgredis "github.com/tileverse/core/internal/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler
}

// New initializes the application: config → DB → Redis → routes.
func New(logger *zap.Logger, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	jwtpkg.SetSecret(cfg.JWTSecret)

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Session-Id"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	router.Use(cors.New(corsConfig))

	ctx, cancel := context.WithCancel(context.Background())

	analyticsSvc := analytics.NewService(db, logger.Named("AnalyticsService"))
	if ttl := cfg.Analytics.SummaryCacheTTLSeconds; ttl > 0 {
		analyticsSvc.SetSummaryCache(rc, time.Duration(ttl)*time.Second)
	}
	if cfg.Analytics.Archive.Enable {
		store, err := objstore.New(ctx, objstore.Config{
			Bucket:       cfg.Analytics.Archive.Bucket,
			Region:       cfg.Analytics.Archive.Region,
			AccessKey:    cfg.Analytics.Archive.AccessKey,
			SecretKey:    cfg.Analytics.Archive.SecretKey,
			Endpoint:     cfg.Analytics.Archive.Endpoint,
			UsePathStyle: cfg.Analytics.Archive.UsePathStyle,
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("archive store: %w", err)
		}
		analyticsSvc.SetArchiver(store, cfg.Analytics.Archive.PathPrefix)
	}

	sched := pkgcron.New()
	registerCronJobs(sched, analyticsSvc, cfg, logger)
	go sched.Start(ctx)

	app := &App{cfg: cfg, router: router, db: db, logger: logger, cancel: cancel, sched: sched}
	app.registerRoutes(rc, analyticsSvc)

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown cleans up background goroutines.
func (a *App) Shutdown() { a.cancel() }
