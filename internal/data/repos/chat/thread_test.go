package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/db"
	types "github.com/yungbote/chatstream-backend/internal/domain"
	"github.com/yungbote/chatstream-backend/internal/data/repos/testutil"
	"github.com/yungbote/chatstream-backend/internal/pkg/dbctx"
)

func TestChatThreadRepoCreateGetDelete(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewChatThreadRepo(gdb, testutil.Logger(t))
	userID := uuid.New()
	created, err := repo.Create(dbc, []*types.ChatThread{{UserID: userID}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	th := created[0]
	if th.ID == uuid.Nil || th.Title != types.DefaultThreadTitle {
		t.Fatalf("defaults not applied: %+v", th)
	}

	locked, err := repo.LockByID(dbc, th.ID)
	if err != nil || locked.ID != th.ID {
		t.Fatalf("LockByID: %v", err)
	}
	if _, err := repo.LockByID(dbctx.Context{Ctx: ctx}, th.ID); err == nil {
		t.Fatalf("LockByID without tx must fail")
	}

	if err := repo.AdvanceSeq(dbc, th.ID, 0, 4, time.Now().UTC()); err != nil {
		t.Fatalf("AdvanceSeq: %v", err)
	}
	if err := repo.AdvanceSeq(dbc, th.ID, 0, 6, time.Now().UTC()); !errors.Is(err, db.ErrConflict) {
		t.Fatalf("stale AdvanceSeq: want ErrConflict got %v", err)
	}
	list, err := repo.ListByUser(dbc, userID, 10)
	if err != nil || len(list) != 1 || list[0].NextSeq != 4 {
		t.Fatalf("ListByUser: %v %+v", err, list)
	}

	if err := repo.SoftDeleteByID(dbc, th.ID); err != nil {
		t.Fatalf("SoftDeleteByID: %v", err)
	}
	if _, err := repo.GetByID(dbc, th.ID); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("GetByID after delete: want ErrNotFound got %v", err)
	}
}
