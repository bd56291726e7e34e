package bus

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

type natsBus struct {
	log    *logger.Logger
	nc     *nats.Conn
	buffer int
	closed atomic.Bool
}

func NewNATSBus(log *logger.Logger, cfg Config) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	url := strings.TrimSpace(cfg.NATSURL)
	if url == "" {
		url = nats.DefaultURL
	}
	busLog := log.With("service", "NATSNotificationBus")
	nc, err := nats.Connect(url,
		nats.Name("chatstream"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			busLog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			busLog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &natsBus{log: busLog, nc: nc, buffer: cfg.SubscriberBuffer}, nil
}

func (b *natsBus) Publish(ctx context.Context, topic string, n realtime.Notification) error {
	if b == nil || b.nc == nil || b.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := realtime.Encode(n)
	if err != nil {
		return err
	}
	return b.nc.Publish(topic, raw)
}

func (b *natsBus) Subscribe(ctx context.Context, topic string) (*realtime.Subscription, error) {
	if b == nil || b.nc == nil || b.closed.Load() {
		return nil, ErrClosed
	}

	var ns *nats.Subscription
	sub := realtime.NewSubscription(topic, b.buffer, func() {
		if ns != nil {
			_ = ns.Unsubscribe()
		}
	})
	ns, err := b.nc.Subscribe(topic, func(m *nats.Msg) {
		n, err := realtime.Decode(m.Data)
		if err != nil {
			b.log.Warn("Bad NATS notification payload", "topic", topic, "error", err)
			return
		}
		if !sub.Deliver(n) {
			b.log.Warn("Dropping notification; subscriber buffer full", "topic", topic, "type", n.Type)
		}
	})
	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}

	// Round-trip to the server so the interest is registered before return.
	timeout := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := b.nc.FlushTimeout(timeout); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	return sub, nil
}

func (b *natsBus) Close() error {
	if b == nil || b.nc == nil || !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.nc.Drain()
}
