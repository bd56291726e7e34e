package bus

import (
	"context"
	"sync/atomic"

	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

// memoryBus keeps topics inside the process. It is only correct when the
// producers and gateways share one process.
type memoryBus struct {
	hub    *realtime.Hub
	closed atomic.Bool
}

func NewMemoryBus(log *logger.Logger, buffer int) Bus {
	return &memoryBus{hub: realtime.NewHub(log, buffer)}
}

func (b *memoryBus) Publish(ctx context.Context, topic string, n realtime.Notification) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.hub.Publish(topic, n)
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, topic string) (*realtime.Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.hub.Subscribe(topic), nil
}

func (b *memoryBus) Close() error {
	if b.closed.CompareAndSwap(false, true) {
		b.hub.CloseAll()
	}
	return nil
}
