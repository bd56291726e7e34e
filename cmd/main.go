package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/chatstream-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}
	a.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	code := 0
	select {
	case <-ctx.Done():
		a.Log.Info("Shutdown signal received; draining streams...")
	case err := <-errCh:
		if err != nil {
			a.Log.Error("HTTP server stopped", "error", err)
			code = 1
		}
	}
	a.Close()
	os.Exit(code)
}
