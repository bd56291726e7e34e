package bus

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// exerciseBus checks the contract every backend must honor: a subscription
// sees everything published after Subscribe returns, in publish order, and
// nothing from other topics.
func exerciseBus(t *testing.T, b Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := uuid.NewString()
	topic := realtime.Topic(id)

	// Published before anyone listens: lost by design.
	if err := b.Publish(ctx, topic, realtime.Delta(id, "x", "x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sub, err := b.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	other, err := b.Subscribe(ctx, realtime.Topic(uuid.NewString()))
	if err != nil {
		t.Fatalf("Subscribe other: %v", err)
	}
	defer other.Close()

	want := []realtime.Notification{
		realtime.Delta(id, "He", "He"),
		realtime.Delta(id, "llo", "Hello"),
		realtime.Complete(id, "Hello"),
	}
	for _, n := range want {
		if err := b.Publish(ctx, topic, n); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	for i, w := range want {
		select {
		case got := <-sub.C():
			if got != w {
				t.Fatalf("notification %d: want=%+v got=%+v", i, w, got)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for notification %d", i)
		}
	}
	select {
	case n := <-other.C():
		t.Fatalf("unrelated topic received %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus(t *testing.T) {
	b := NewMemoryBus(testLogger(t), 16)
	exerciseBus(t, b)

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Publish(context.Background(), "message:x", realtime.Complete("x", "")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after close: want ErrClosed got %v", err)
	}
	if _, err := b.Subscribe(context.Background(), "message:x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Subscribe after close: want ErrClosed got %v", err)
	}
}

func TestMemoryBusCloseEndsSubscriptions(t *testing.T) {
	b := NewMemoryBus(testLogger(t), 16)
	sub, err := b.Subscribe(context.Background(), "message:y")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	_ = b.Close()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed with bus")
	}
}

func TestRedisBus(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis bus tests")
	}
	b, err := NewRedisBus(testLogger(t), Config{RedisAddr: addr})
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	defer b.Close()
	exerciseBus(t, b)
}

func TestNATSBus(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("set TEST_NATS_URL to run nats bus tests")
	}
	b, err := NewNATSBus(testLogger(t), Config{NATSURL: url})
	if err != nil {
		t.Fatalf("NewNATSBus: %v", err)
	}
	defer b.Close()
	exerciseBus(t, b)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New(testLogger(t), Config{Backend: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error")
	}
	b, err := New(testLogger(t), Config{Backend: "memory"})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	_ = b.Close()
}
