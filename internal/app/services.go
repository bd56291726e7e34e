package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/modules/chat/streaming"
	"github.com/yungbote/chatstream-backend/internal/observability"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/services"
)

type Services struct {
	Auth services.AuthService
	Chat services.ChatService

	Store    *streaming.RepoStore
	Producer *streaming.Producer
	Runner   *streaming.Runner
	Gateway  *streaming.Gateway
	Reaper   *streaming.Reaper
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	store := streaming.NewRepoStore(repos.ChatMessage)
	producer := streaming.NewProducer(log, store, clients.Bus, metrics, cfg.Stream.Producer)
	runner := streaming.NewRunner(log, producer, cfg.Stream.MaxConcurrent)
	runner.OnDone(func(job streaming.Job, res streaming.Result) {
		if res.Outcome != streaming.OutcomeComplete {
			log.Warn("Stream ended without completing",
				"message_id", job.MessageID, "outcome", res.Outcome, "fragments", res.Fragments, "error", res.Err)
		}
	})

	reaper, err := streaming.NewReaper(log, repos.ChatMessage, clients.Bus, metrics, cfg.Stream.ReaperCron)
	if err != nil {
		return Services{}, fmt.Errorf("init reaper: %w", err)
	}

	auth := services.NewAuthService(log, cfg.JWTSecretKey, cfg.JWTIssuer)
	chat := services.NewChatService(db, log, repos.ChatThread, repos.ChatMessage, clients.Providers, runner, producer, cfg.Chat)
	gateway := streaming.NewGateway(log, chat, store, clients.Bus, metrics, cfg.Stream.Gateway)

	return Services{
		Auth:     auth,
		Chat:     chat,
		Store:    store,
		Producer: producer,
		Runner:   runner,
		Gateway:  gateway,
		Reaper:   reaper,
	}, nil
}

func dbCheck(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
