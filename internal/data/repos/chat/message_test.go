package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/chatstream-backend/internal/domain"
	"github.com/yungbote/chatstream-backend/internal/data/repos/testutil"
	"github.com/yungbote/chatstream-backend/internal/pkg/dbctx"
)

func TestChatMessageRepoLeaseGuardsWrites(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewChatMessageRepo(db, testutil.Logger(t))
	th := testutil.SeedThread(t, ctx, tx, uuid.New())
	lease := uuid.New()
	m := testutil.SeedStreamingMessage(t, ctx, tx, th, 1, lease, time.Minute)

	if err := repo.WriteContent(dbc, m.ID, lease, "Hel"); err != nil {
		t.Fatalf("WriteContent: %v", err)
	}
	if err := repo.WriteContent(dbc, m.ID, uuid.New(), "intruder"); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("WriteContent with foreign lease: want ErrLeaseLost got %v", err)
	}
	if err := repo.RenewLease(dbc, m.ID, uuid.New(), time.Minute); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("RenewLease with foreign lease: want ErrLeaseLost got %v", err)
	}
	if err := repo.RenewLease(dbc, m.ID, lease, time.Minute); err != nil {
		t.Fatalf("RenewLease: %v", err)
	}

	if err := repo.WriteTerminal(dbc, m.ID, lease, types.ChatMessageStatusComplete, "Hello", ""); err != nil {
		t.Fatalf("WriteTerminal: %v", err)
	}
	got, err := repo.GetByID(dbc, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ChatMessageStatusComplete || got.Content != "Hello" {
		t.Fatalf("terminal row: status=%q content=%q", got.Status, got.Content)
	}
	if got.LeaseID != nil || got.CompletedAt == nil {
		t.Fatalf("terminal write must release lease and stamp completed_at")
	}

	// Terminal messages are immutable.
	if err := repo.WriteContent(dbc, m.ID, lease, "Hello again"); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("WriteContent after terminal: want ErrLeaseLost got %v", err)
	}
	if err := repo.WriteTerminal(dbc, m.ID, lease, types.ChatMessageStatusError, "x", "late"); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("second WriteTerminal: want ErrLeaseLost got %v", err)
	}
	if err := repo.WriteTerminal(dbc, m.ID, lease, types.ChatMessageStatusStreaming, "x", ""); err == nil {
		t.Fatalf("non-terminal status must be rejected")
	}
}

func TestChatMessageRepoExpiredLeaseCannotBeRenewedAfterReap(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewChatMessageRepo(db, testutil.Logger(t))
	th := testutil.SeedThread(t, ctx, tx, uuid.New())
	stale := uuid.New()
	m := testutil.SeedStreamingMessage(t, ctx, tx, th, 1, stale, -time.Minute)

	ok, err := repo.FailExpired(dbc, m.ID, time.Now().UTC(), "generation interrupted")
	if err != nil || !ok {
		t.Fatalf("FailExpired: ok=%v err=%v", ok, err)
	}
	if err := repo.RenewLease(dbc, m.ID, stale, time.Minute); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("reaped producer must not renew: %v", err)
	}
	if err := repo.WriteContent(dbc, m.ID, stale, "late"); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("reaped producer must not write: %v", err)
	}
}

func TestChatMessageRepoFailExpired(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewChatMessageRepo(db, testutil.Logger(t))
	th := testutil.SeedThread(t, ctx, tx, uuid.New())
	expired := testutil.SeedStreamingMessage(t, ctx, tx, th, 1, uuid.New(), -time.Minute)
	live := testutil.SeedStreamingMessage(t, ctx, tx, th, 2, uuid.New(), time.Hour)

	now := time.Now().UTC()
	rows, err := repo.ListExpiredStreaming(dbc, now, 10)
	if err != nil {
		t.Fatalf("ListExpiredStreaming: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != expired.ID {
		t.Fatalf("expected only the expired message, got %d rows", len(rows))
	}

	ok, err := repo.FailExpired(dbc, expired.ID, now, "generation interrupted")
	if err != nil || !ok {
		t.Fatalf("FailExpired: ok=%v err=%v", ok, err)
	}
	ok, err = repo.FailExpired(dbc, live.ID, now, "generation interrupted")
	if err != nil || ok {
		t.Fatalf("FailExpired on live lease: ok=%v err=%v", ok, err)
	}

	got, err := repo.GetByID(dbc, expired.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ChatMessageStatusError || got.Error != "generation interrupted" {
		t.Fatalf("reaped row: status=%q error=%q", got.Status, got.Error)
	}
	n, err := repo.CountStreaming(dbc, th.ID)
	if err != nil || n != 1 {
		t.Fatalf("CountStreaming: n=%d err=%v", n, err)
	}
}

func TestChatMessageRepoListByThreadAscending(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewChatMessageRepo(db, testutil.Logger(t))
	th := testutil.SeedThread(t, ctx, tx, uuid.New())
	rows := []*types.ChatMessage{
		{ThreadID: th.ID, UserID: th.UserID, Seq: 2, Role: types.ChatRoleAssistant, Status: types.ChatMessageStatusComplete, Content: "hi"},
		{ThreadID: th.ID, UserID: th.UserID, Seq: 1, Role: types.ChatRoleUser, Status: types.ChatMessageStatusComplete, Content: "hello"},
	}
	if _, err := repo.Create(dbc, rows); err != nil {
		t.Fatalf("Create: %v", err)
	}
	out, err := repo.ListByThread(dbc, th.ID, 10)
	if err != nil {
		t.Fatalf("ListByThread: %v", err)
	}
	if len(out) != 2 || out[0].Seq != 1 || out[1].Seq != 2 {
		t.Fatalf("unexpected order: %+v", out)
	}
}
