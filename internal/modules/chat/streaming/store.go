package streaming

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/data/repos"
	chatrepo "github.com/yungbote/chatstream-backend/internal/data/repos/chat"
	"github.com/yungbote/chatstream-backend/internal/db"
	"github.com/yungbote/chatstream-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

var (
	ErrNotFound  = db.ErrNotFound
	ErrLeaseLost = chatrepo.ErrLeaseLost
)

// Snapshot is the persisted state of a message as seen by the stream path.
type Snapshot struct {
	ID      uuid.UUID
	Status  string
	Content string
	Error   string
}

// Store is the durable message contract the producer and gateway rely on.
// Writes are guarded by the producer lease and rejected with ErrLeaseLost
// once the message is terminal or owned by someone else.
type Store interface {
	Read(ctx context.Context, messageID uuid.UUID) (Snapshot, error)
	WriteContent(ctx context.Context, messageID, leaseID uuid.UUID, content string) error
	WriteTerminal(ctx context.Context, messageID, leaseID uuid.UUID, status, content, errDetail string) error
	RenewLease(ctx context.Context, messageID, leaseID uuid.UUID, ttl time.Duration) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, n realtime.Notification) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (*realtime.Subscription, error)
}

// RepoStore adapts the message repo to Store.
type RepoStore struct {
	Messages repos.ChatMessageRepo
}

func NewRepoStore(messages repos.ChatMessageRepo) *RepoStore {
	return &RepoStore{Messages: messages}
}

func (s *RepoStore) Read(ctx context.Context, messageID uuid.UUID) (Snapshot, error) {
	m, err := s.Messages.GetByID(dbctx.Context{Ctx: ctx}, messageID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ID: m.ID, Status: m.Status, Content: m.Content, Error: m.Error}, nil
}

func (s *RepoStore) WriteContent(ctx context.Context, messageID, leaseID uuid.UUID, content string) error {
	return s.Messages.WriteContent(dbctx.Context{Ctx: ctx}, messageID, leaseID, content)
}

func (s *RepoStore) WriteTerminal(ctx context.Context, messageID, leaseID uuid.UUID, status, content, errDetail string) error {
	return s.Messages.WriteTerminal(dbctx.Context{Ctx: ctx}, messageID, leaseID, status, content, errDetail)
}

func (s *RepoStore) RenewLease(ctx context.Context, messageID, leaseID uuid.UUID, ttl time.Duration) error {
	return s.Messages.RenewLease(dbctx.Context{Ctx: ctx}, messageID, leaseID, ttl)
}
