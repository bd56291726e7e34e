package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

var ErrClosed = errors.New("bus closed")

// Bus is a best-effort topic pub/sub. Notifications published before a
// subscription exists are not replayed.
type Bus interface {
	Publish(ctx context.Context, topic string, n realtime.Notification) error
	// Subscribe returns once the subscription is active: every notification
	// published after it returns is delivered (unless dropped for lag).
	Subscribe(ctx context.Context, topic string) (*realtime.Subscription, error)
	Close() error
}

type Config struct {
	// Backend is "redis", "nats" or "memory".
	Backend string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	NATSURL       string `yaml:"nats_url"`
	// SubscriberBuffer bounds each subscription's queue.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

func New(log *logger.Logger, cfg Config) (Bus, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "redis":
		return NewRedisBus(log, cfg)
	case "nats":
		return NewNATSBus(log, cfg)
	case "memory":
		return NewMemoryBus(log, cfg.SubscriberBuffer), nil
	default:
		return nil, fmt.Errorf("unknown bus backend %q", cfg.Backend)
	}
}
