package app

import (
	"context"
	"fmt"

	"github.com/yungbote/chatstream-backend/internal/platform/llm"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime/bus"
)

type Clients struct {
	Bus       bus.Bus
	Providers *llm.Registry
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	b, err := bus.New(log, cfg.Bus)
	if err != nil {
		return Clients{}, fmt.Errorf("init notification bus: %w", err)
	}

	providers, err := wireProviders(ctx, log, cfg.LLM)
	if err != nil {
		_ = b.Close()
		return Clients{}, err
	}

	return Clients{Bus: b, Providers: providers}, nil
}

// wireProviders registers every provider that has credentials. Echo is
// always available.
func wireProviders(ctx context.Context, log *logger.Logger, cfg LLMConfig) (*llm.Registry, error) {
	list := []llm.Provider{&llm.EchoProvider{Delay: cfg.EchoDelay}}

	if cfg.OpenAI.APIKey != "" || cfg.OpenAI.BaseURL != "" {
		list = append(list, llm.Retrying(llm.NewOpenAIProvider(cfg.OpenAI), cfg.Retries, cfg.RetryBase, log))
	}
	if cfg.Gemini.APIKey != "" || cfg.Gemini.Project != "" {
		gemini, err := llm.NewGeminiProvider(ctx, cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("init gemini provider: %w", err)
		}
		list = append(list, llm.Retrying(gemini, cfg.Retries, cfg.RetryBase, log))
	}

	registry := llm.NewRegistry(cfg.DefaultProvider, list...)
	if _, err := registry.Get(""); err != nil {
		log.Warn("Default LLM provider is not configured; requests must name a provider",
			"default", cfg.DefaultProvider, "available", registry.Names())
	} else {
		log.Info("LLM providers ready", "default", cfg.DefaultProvider, "available", registry.Names())
	}
	return registry, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
