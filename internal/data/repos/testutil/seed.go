package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/chatstream-backend/internal/domain"
)

func SeedThread(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID) *types.ChatThread {
	tb.Helper()
	now := time.Now().UTC()
	th := &types.ChatThread{
		ID:            uuid.New(),
		UserID:        userID,
		Title:         "thread",
		LastMessageAt: now,
	}
	if err := tx.WithContext(ctx).Create(th).Error; err != nil {
		tb.Fatalf("seed thread: %v", err)
	}
	return th
}

// SeedStreamingMessage inserts an assistant message in streaming status
// holding leaseID until now+ttl.
func SeedStreamingMessage(tb testing.TB, ctx context.Context, tx *gorm.DB, th *types.ChatThread, seq int64, leaseID uuid.UUID, ttl time.Duration) *types.ChatMessage {
	tb.Helper()
	exp := time.Now().UTC().Add(ttl)
	m := &types.ChatMessage{
		ID:             uuid.New(),
		ThreadID:       th.ID,
		UserID:         th.UserID,
		Seq:            seq,
		Role:           types.ChatRoleAssistant,
		Status:         types.ChatMessageStatusStreaming,
		LeaseID:        &leaseID,
		LeaseExpiresAt: &exp,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed message: %v", err)
	}
	return m
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
