package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/chatstream-backend/internal/db"
	types "github.com/yungbote/chatstream-backend/internal/domain"
	"github.com/yungbote/chatstream-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

var errMissingThreadID = errors.New("missing thread id")

type ChatThreadRepo interface {
	Create(dbc dbctx.Context, rows []*types.ChatThread) ([]*types.ChatThread, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatThread, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatThread, error)
	// LockByID takes a row lock and must run inside a transaction.
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatThread, error)
	// AdvanceSeq moves next_seq from one value to another and stamps the
	// thread's last activity. It fails with db.ErrConflict when next_seq no
	// longer equals from.
	AdvanceSeq(dbc dbctx.Context, id uuid.UUID, from, to int64, at time.Time) error
	SoftDeleteByID(dbc dbctx.Context, id uuid.UUID) error
}

type chatThreadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatThreadRepo(db *gorm.DB, log *logger.Logger) ChatThreadRepo {
	return &chatThreadRepo{db: db, log: log.With("repo", "ChatThreadRepo")}
}

func (r *chatThreadRepo) Create(dbc dbctx.Context, rows []*types.ChatThread) ([]*types.ChatThread, error) {
	if len(rows) == 0 {
		return []*types.ChatThread{}, nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.LastMessageAt.IsZero() {
			row.LastMessageAt = now
		}
		if row.Title == "" {
			row.Title = types.DefaultThreadTitle
		}
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, db.Classify(err)
	}
	return rows, nil
}

func (r *chatThreadRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatThread, error) {
	if id == uuid.Nil {
		return nil, errMissingThreadID
	}
	var out types.ChatThread
	if err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, db.Classify(err)
	}
	return &out, nil
}

func (r *chatThreadRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatThread, error) {
	if userID == uuid.Nil {
		return nil, errors.New("missing user id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.ChatThread
	err := dbc.DB(r.db).
		Where("user_id = ?", userID).
		Order("last_message_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

func (r *chatThreadRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatThread, error) {
	if id == uuid.Nil {
		return nil, errMissingThreadID
	}
	if dbc.Tx == nil {
		return nil, errors.New("thread lock requires a transaction")
	}
	var out types.ChatThread
	err := dbc.DB(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error
	if err != nil {
		return nil, db.Classify(err)
	}
	return &out, nil
}

func (r *chatThreadRepo) AdvanceSeq(dbc dbctx.Context, id uuid.UUID, from, to int64, at time.Time) error {
	if id == uuid.Nil {
		return errMissingThreadID
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res := dbc.DB(r.db).
		Model(&types.ChatThread{}).
		Where("id = ? AND next_seq = ?", id, from).
		Updates(map[string]interface{}{
			"next_seq":        to,
			"last_message_at": at,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return db.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return db.ErrConflict
	}
	return nil
}

func (r *chatThreadRepo) SoftDeleteByID(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errMissingThreadID
	}
	return db.Classify(dbc.DB(r.db).Where("id = ?", id).Delete(&types.ChatThread{}).Error)
}
