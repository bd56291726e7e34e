package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/db"
	types "github.com/yungbote/chatstream-backend/internal/domain"
	"github.com/yungbote/chatstream-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

var (
	// ErrLeaseLost is returned by lease-guarded writes when the message is no
	// longer streaming under the caller's lease (terminal, reaped, or deleted).
	ErrLeaseLost = errors.New("producer lease lost")
)

type ChatMessageRepo interface {
	Create(dbc dbctx.Context, rows []*types.ChatMessage) ([]*types.ChatMessage, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatMessage, error)
	ListByThread(dbc dbctx.Context, threadID uuid.UUID, limit int) ([]*types.ChatMessage, error)
	CountStreaming(dbc dbctx.Context, threadID uuid.UUID) (int64, error)
	SoftDeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error

	RenewLease(dbc dbctx.Context, id, leaseID uuid.UUID, ttl time.Duration) error
	WriteContent(dbc dbctx.Context, id, leaseID uuid.UUID, content string) error
	WriteTerminal(dbc dbctx.Context, id, leaseID uuid.UUID, status, content, errDetail string) error

	ListExpiredStreaming(dbc dbctx.Context, now time.Time, limit int) ([]*types.ChatMessage, error)
	FailExpired(dbc dbctx.Context, id uuid.UUID, now time.Time, errDetail string) (bool, error)
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, log *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{db: db, log: log.With("repo", "ChatMessageRepo")}
}

func (r *chatMessageRepo) Create(dbc dbctx.Context, rows []*types.ChatMessage) ([]*types.ChatMessage, error) {
	if len(rows) == 0 {
		return []*types.ChatMessage{}, nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.ThreadID == uuid.Nil {
			return nil, fmt.Errorf("missing thread_id")
		}
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, db.Classify(err)
	}
	return rows, nil
}

func (r *chatMessageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatMessage, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out types.ChatMessage
	if err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, db.Classify(err)
	}
	return &out, nil
}

func (r *chatMessageRepo) ListByThread(dbc dbctx.Context, threadID uuid.UUID, limit int) ([]*types.ChatMessage, error) {
	if threadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []*types.ChatMessage
	if err := dbc.DB(r.db).
		Model(&types.ChatMessage{}).
		Where("thread_id = ?", threadID).
		Order("seq DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	// Normalize to ASC for clients.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *chatMessageRepo) CountStreaming(dbc dbctx.Context, threadID uuid.UUID) (int64, error) {
	if threadID == uuid.Nil {
		return 0, fmt.Errorf("missing thread_id")
	}
	var n int64
	if err := dbc.DB(r.db).
		Model(&types.ChatMessage{}).
		Where("thread_id = ? AND status = ?", threadID, types.ChatMessageStatusStreaming).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *chatMessageRepo) SoftDeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error {
	if threadID == uuid.Nil {
		return fmt.Errorf("missing thread_id")
	}
	return dbc.DB(r.db).
		Where("thread_id = ?", threadID).
		Delete(&types.ChatMessage{}).Error
}

func (r *chatMessageRepo) RenewLease(dbc dbctx.Context, id, leaseID uuid.UUID, ttl time.Duration) error {
	now := time.Now().UTC()
	return r.guardedUpdate(dbc, id, leaseID, map[string]interface{}{
		"lease_expires_at": now.Add(ttl),
		"updated_at":       now,
	})
}

// WriteContent replaces the persisted content of a streaming message.
func (r *chatMessageRepo) WriteContent(dbc dbctx.Context, id, leaseID uuid.UUID, content string) error {
	return r.guardedUpdate(dbc, id, leaseID, map[string]interface{}{
		"content":    content,
		"updated_at": time.Now().UTC(),
	})
}

// WriteTerminal moves a streaming message to status with its final content
// and releases the lease. A message can only be terminated once.
func (r *chatMessageRepo) WriteTerminal(dbc dbctx.Context, id, leaseID uuid.UUID, status, content, errDetail string) error {
	if !isTerminal(status) {
		return fmt.Errorf("status %q is not terminal", status)
	}
	now := time.Now().UTC()
	return r.guardedUpdate(dbc, id, leaseID, map[string]interface{}{
		"status":           status,
		"content":          content,
		"error":            errDetail,
		"lease_id":         nil,
		"lease_expires_at": nil,
		"completed_at":     now,
		"updated_at":       now,
	})
}

func (r *chatMessageRepo) guardedUpdate(dbc dbctx.Context, id, leaseID uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || leaseID == uuid.Nil {
		return fmt.Errorf("missing id or lease_id")
	}
	res := dbc.DB(r.db).
		Model(&types.ChatMessage{}).
		Where("id = ? AND status = ? AND lease_id = ?", id, types.ChatMessageStatusStreaming, leaseID).
		Updates(updates)
	if res.Error != nil {
		return db.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (r *chatMessageRepo) ListExpiredStreaming(dbc dbctx.Context, now time.Time, limit int) ([]*types.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.ChatMessage
	if err := dbc.DB(r.db).
		Model(&types.ChatMessage{}).
		Where("status = ? AND lease_expires_at < ?", types.ChatMessageStatusStreaming, now.UTC()).
		Order("lease_expires_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// FailExpired terminates a streaming message whose lease expired before now.
// It reports false when the producer renewed or finished in the meantime.
func (r *chatMessageRepo) FailExpired(dbc dbctx.Context, id uuid.UUID, now time.Time, errDetail string) (bool, error) {
	if id == uuid.Nil {
		return false, fmt.Errorf("missing id")
	}
	now = now.UTC()
	res := dbc.DB(r.db).
		Model(&types.ChatMessage{}).
		Where("id = ? AND status = ? AND lease_expires_at < ?", id, types.ChatMessageStatusStreaming, now).
		Updates(map[string]interface{}{
			"status":           types.ChatMessageStatusError,
			"error":            errDetail,
			"lease_id":         nil,
			"lease_expires_at": nil,
			"completed_at":     now,
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, db.Classify(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func isTerminal(status string) bool {
	return status == types.ChatMessageStatusComplete || status == types.ChatMessageStatusError
}
