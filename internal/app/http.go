package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	apphttp "github.com/yungbote/chatstream-backend/internal/http"
	httpH "github.com/yungbote/chatstream-backend/internal/http/handlers"
	httpMW "github.com/yungbote/chatstream-backend/internal/http/middleware"
	"github.com/yungbote/chatstream-backend/internal/observability"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

type Middleware struct {
	Auth      *httpMW.AuthMiddleware
	RateLimit *httpMW.RateLimiter
}

type Handlers struct {
	Health *httpH.HealthHandler
	Chat   *httpH.ChatHandler
	Stream *httpH.StreamHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(map[string]func(ctx context.Context) error{
			"database": dbCheck(db),
		}),
		Chat:   httpH.NewChatHandler(services.Chat),
		Stream: httpH.NewStreamHandler(log, services.Gateway),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config, services Services, metrics *observability.Metrics) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth:      httpMW.NewAuthMiddleware(log, services.Auth),
		RateLimit: httpMW.NewRateLimiter(cfg.RateLimit, metrics),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *gin.Engine {
	serviceName := ""
	if cfg.Tracing.Enabled {
		serviceName = cfg.ServiceName
	}
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		ServiceName:    serviceName,
		CORSOrigins:    cfg.CORSOrigins,
		AuthMiddleware: middleware.Auth,
		RateLimiter:    middleware.RateLimit,
		HealthHandler:  handlers.Health,
		ChatHandler:    handlers.Chat,
		StreamHandler:  handlers.Stream,
	})
}
