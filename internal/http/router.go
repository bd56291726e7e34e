package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/chatstream-backend/internal/http/handlers"
	httpMW "github.com/yungbote/chatstream-backend/internal/http/middleware"
	"github.com/yungbote/chatstream-backend/internal/observability"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware
	RateLimiter    *httpMW.RateLimiter

	HealthHandler *httpH.HealthHandler
	ChatHandler   *httpH.ChatHandler
	StreamHandler *httpH.StreamHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS(cfg.CORSOrigins...))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.ChatHandler != nil {
			send := []gin.HandlerFunc{}
			if cfg.RateLimiter != nil {
				send = append(send, cfg.RateLimiter.Middleware())
			}
			send = append(send, cfg.ChatHandler.SendMessage)
			protected.POST("/chat/messages", send...)
			protected.GET("/chat/messages/:id", cfg.ChatHandler.GetMessage)
			protected.GET("/chat/threads", cfg.ChatHandler.ListThreads)
			protected.GET("/chat/threads/:id", cfg.ChatHandler.GetThread)
			protected.DELETE("/chat/threads/:id", cfg.ChatHandler.DeleteThread)
		}

		// Stream gateway (SSE)
		if cfg.StreamHandler != nil {
			protected.GET("/chat/messages/:id/stream", cfg.StreamHandler.Stream)
		}
	}

	return r
}
