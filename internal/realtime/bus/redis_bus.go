package bus

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

type redisBus struct {
	log    *logger.Logger
	rdb    *goredis.Client
	buffer int
	closed atomic.Bool
}

func NewRedisBus(log *logger.Logger, cfg Config) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:    log.With("service", "RedisNotificationBus"),
		rdb:    rdb,
		buffer: cfg.SubscriberBuffer,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, topic string, n realtime.Notification) error {
	if b == nil || b.rdb == nil || b.closed.Load() {
		return ErrClosed
	}
	raw, err := realtime.Encode(n)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, topic, raw).Err()
}

func (b *redisBus) Subscribe(ctx context.Context, topic string) (*realtime.Subscription, error) {
	if b == nil || b.rdb == nil || b.closed.Load() {
		return nil, ErrClosed
	}

	// The pubsub connection outlives ctx; it is torn down by sub.Close.
	ps := b.rdb.Subscribe(context.WithoutCancel(ctx), topic)

	// ensures subscription actually started
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := realtime.NewSubscription(topic, b.buffer, func() { _ = ps.Close() })

	go func() {
		defer sub.Close()
		ch := ps.Channel()
		for {
			select {
			case <-sub.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				n, err := realtime.Decode([]byte(m.Payload))
				if err != nil {
					b.log.Warn("Bad Redis notification payload", "topic", topic, "error", err)
					continue
				}
				if !sub.Deliver(n) {
					b.log.Warn("Dropping notification; subscriber buffer full", "topic", topic, "type", n.Type)
				}
			}
		}
	}()

	return sub, nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil || !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.rdb.Close()
}
