package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/data/repos"
	"github.com/yungbote/chatstream-backend/internal/data/repos/testutil"
	types "github.com/yungbote/chatstream-backend/internal/domain"
	"github.com/yungbote/chatstream-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

func TestNewReaperRejectsInvalidCron(t *testing.T) {
	if _, err := NewReaper(testutil.Logger(t), nil, &fakePublisher{}, nil, "not a cron"); err == nil {
		t.Fatal("expected invalid cron error")
	}
}

func TestReaperSweepFailsExpiredStreams(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	messages := repos.NewChatMessageRepo(db, log)

	th := testutil.SeedThread(t, ctx, db, uuid.New())
	expired := testutil.SeedStreamingMessage(t, ctx, db, th, 1, uuid.New(), -time.Minute)
	live := testutil.SeedStreamingMessage(t, ctx, db, th, 2, uuid.New(), time.Minute)
	if err := db.Model(&types.ChatMessage{}).Where("id = ?", expired.ID).Update("content", "half").Error; err != nil {
		t.Fatalf("seed content: %v", err)
	}

	pub := &fakePublisher{}
	r, err := NewReaper(log, messages, pub, nil, "")
	if err != nil {
		t.Fatalf("NewReaper: %v", err)
	}
	n, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}

	dbc := dbctx.Context{Ctx: ctx}
	got, err := messages.GetByID(dbc, expired.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ChatMessageStatusError || got.Content != "half" || got.Error != reapDetail {
		t.Fatalf("expired row: status=%q content=%q error=%q", got.Status, got.Content, got.Error)
	}
	still, err := messages.GetByID(dbc, live.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if still.Status != types.ChatMessageStatusStreaming {
		t.Fatalf("live row reaped: %q", still.Status)
	}

	notes := pub.notifications()
	if len(notes) != 1 {
		t.Fatalf("notifications: %+v", notes)
	}
	if notes[0].Type != realtime.NotificationError || notes[0].MessageID != expired.ID.String() || notes[0].Content != "half" {
		t.Fatalf("notification: %+v", notes[0])
	}

	if n, err := r.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	r, err := NewReaper(testutil.Logger(t), nil, &fakePublisher{}, nil, "0 0 1 1 *")
	if err != nil {
		t.Fatalf("NewReaper: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
