package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Server struct {
	Engine *gin.Engine
	srv    *http.Server
	cancel context.CancelFunc
}

// NewServer leaves the write timeout unset so streams can stay open
// indefinitely. Request contexts derive from a base context that Shutdown
// cancels, which ends open streams instead of waiting on them.
func NewServer(engine *gin.Engine, address string) *Server {
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		Engine: engine,
		cancel: cancel,
		srv: &http.Server{
			Addr:              address,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return base },
		},
	}
}

// Run serves until Shutdown.
func (s *Server) Run() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.srv.Shutdown(ctx)
}
