package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/db"
	apphttp "github.com/yungbote/chatstream-backend/internal/http"
	"github.com/yungbote/chatstream-backend/internal/observability"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Server   *apphttp.Server
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Metrics  *observability.Metrics

	pg           *db.PostgresService
	middleware   Middleware
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	otelShutdown := observability.InitTracing(context.Background(), log, cfg.Tracing)
	metrics := observability.Init(log, cfg.MetricsEnabled)

	pg, err := db.NewPostgresService(log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	theDB := pg.DB()

	clients, err := wireClients(context.Background(), log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, metrics)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, serviceset)
	middleware := wireMiddleware(log, cfg, serviceset, metrics)
	router := wireRouter(log, cfg, handlerset, middleware, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Server:       apphttp.NewServer(router, cfg.Addr),
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Metrics:      metrics,
		pg:           pg,
		middleware:   middleware,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background loops: the stale-stream reaper, rate
// limiter eviction and the optional dedicated metrics listener.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.Reaper != nil {
		go a.Services.Reaper.Run(ctx)
	}
	if a.middleware.RateLimit != nil {
		go a.middleware.RateLimit.Run(ctx)
	}
	a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr)
	return a.Server.Run()
}

// Close drains in-flight generations for up to the configured grace period,
// then closes viewer streams and releases clients.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.Runner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.Stream.ShutdownGrace)
		if err := a.Services.Runner.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.Log.Warn("Stream runner shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP server shutdown failed", "error", err)
		}
		cancel()
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
