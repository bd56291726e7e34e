package realtime

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvNotification(t *testing.T, ch <-chan Notification, timeout time.Duration) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for notification")
	}
	return Notification{}
}

func TestHubOrderingAndUnsubscribe(t *testing.T) {
	hub := NewHub(mustTestLogger(t), 8)
	topic := Topic("m1")

	a := hub.Subscribe(topic)
	b := hub.Subscribe(topic)
	hub.Publish(topic, Delta("m1", "He", "He"))
	hub.Publish(topic, Delta("m1", "llo", "Hello"))

	for _, sub := range []*Subscription{a, b} {
		first := recvNotification(t, sub.C(), time.Second)
		second := recvNotification(t, sub.C(), time.Second)
		if first.Text() != "He" || second.Text() != "Hello" {
			t.Fatalf("out of order: %q then %q", first.Text(), second.Text())
		}
	}

	_ = a.Close()
	if got := hub.Subscribers(topic); got != 1 {
		t.Fatalf("subscribers after close: want=1 got=%d", got)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done must be closed after Close")
	}
	if hub.Publish(topic, Complete("m1", "Hello")) != 1 {
		t.Fatalf("closed subscription must not receive")
	}
	if hub.Publish(Topic("other"), Complete("other", "")) != 0 {
		t.Fatalf("publish without subscribers must be a no-op")
	}
}

func TestSubscriptionSignalsLagWhenFull(t *testing.T) {
	sub := NewSubscription("message:m", 1, nil)
	if !sub.Deliver(Delta("m", "a", "a")) {
		t.Fatalf("first delivery should fit")
	}
	if sub.Deliver(Delta("m", "b", "ab")) {
		t.Fatalf("second delivery should be dropped")
	}
	select {
	case <-sub.Lagged():
	default:
		t.Fatalf("expected lag signal")
	}
	if sub.Dropped() != 1 {
		t.Fatalf("dropped: want=1 got=%d", sub.Dropped())
	}
	_ = sub.Close()
	_ = sub.Close()
	if sub.Deliver(Complete("m", "ab")) {
		t.Fatalf("closed subscription must reject deliveries")
	}
}

func TestNotificationText(t *testing.T) {
	cases := []struct {
		n        Notification
		text     string
		terminal bool
	}{
		{Initial("m", StatusStreaming, "He", ""), "He", false},
		{Initial("m", StatusComplete, "Hello", ""), "Hello", true},
		{Delta("m", "llo", "Hello"), "Hello", false},
		{Complete("m", "Hello"), "Hello", true},
		{Failed("m", "Hel", "provider failed"), "Hel", true},
	}
	for _, tc := range cases {
		if got := tc.n.Text(); got != tc.text {
			t.Fatalf("%s Text: want=%q got=%q", tc.n.Type, tc.text, got)
		}
		if got := tc.n.IsTerminal(); got != tc.terminal {
			t.Fatalf("%s IsTerminal: want=%v got=%v", tc.n.Type, tc.terminal, got)
		}
	}
}

func TestDecodeRejectsIncompletePayload(t *testing.T) {
	raw, err := Encode(Delta("m1", "a", "a"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	n, err := Decode(raw)
	if err != nil || n.FullContent != "a" {
		t.Fatalf("Decode: %v %+v", err, n)
	}
	if _, err := Decode([]byte(`{"type":"delta"}`)); err == nil {
		t.Fatalf("expected error for missing messageId")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for bad json")
	}
}

func TestSSEWriterFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}
	if err := w.Send(Initial("m1", StatusStreaming, "Hi", "")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := w.Heartbeat(); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event:initial\n") {
		t.Fatalf("missing event line: %q", body)
	}
	if !strings.Contains(body, `"messageId":"m1"`) {
		t.Fatalf("missing payload: %q", body)
	}
	if !strings.HasSuffix(body, ": ping\n\n") {
		t.Fatalf("missing heartbeat: %q", body)
	}
}
