package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/data/repos"
	"github.com/yungbote/chatstream-backend/internal/db"
	types "github.com/yungbote/chatstream-backend/internal/domain"
	chatdomain "github.com/yungbote/chatstream-backend/internal/domain/chat"
	"github.com/yungbote/chatstream-backend/internal/modules/chat/streaming"
	"github.com/yungbote/chatstream-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatstream-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatstream-backend/internal/platform/llm"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

type SendMessageInput struct {
	ThreadID *uuid.UUID
	Prompt   string
	Model    string
	Provider string
}

type SendMessageResult struct {
	ThreadID  uuid.UUID `json:"threadId"`
	MessageID uuid.UUID `json:"messageId"`
}

type ChatService interface {
	// SendMessage records the prompt, creates the leased assistant message and
	// starts its producer. It returns without waiting for generation.
	SendMessage(dbc dbctx.Context, in SendMessageInput) (*SendMessageResult, error)
	GetMessage(dbc dbctx.Context, messageID uuid.UUID) (*types.ChatMessage, error)
	ListThreads(dbc dbctx.Context, limit int) ([]*types.ChatThread, error)
	GetThread(dbc dbctx.Context, threadID uuid.UUID, limit int) (*types.ChatThread, []*types.ChatMessage, error)
	// DeleteThread removes the thread and its messages. It is refused while a
	// message of the thread is streaming.
	DeleteThread(dbc dbctx.Context, threadID uuid.UUID) error
	AuthorizeMessage(ctx context.Context, viewerID, messageID uuid.UUID) error
}

// StreamRunner schedules producer jobs.
type StreamRunner interface {
	Submit(job streaming.Job) error
}

// StreamAborter terminates a leased message that never got a producer.
type StreamAborter interface {
	Abort(ctx context.Context, job streaming.Job, cause error) streaming.Result
}

type ChatConfig struct {
	LeaseTTL       time.Duration `yaml:"lease_ttl"`
	HistoryLimit   int           `yaml:"history_limit"`
	MaxPromptBytes int           `yaml:"max_prompt_bytes"`
	SystemPrompt   string        `yaml:"system_prompt"`
}

func (c ChatConfig) withDefaults() ChatConfig {
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.HistoryLimit < 0 {
		c.HistoryLimit = 0
	}
	if c.MaxPromptBytes <= 0 {
		c.MaxPromptBytes = 20000
	}
	return c
}

type chatService struct {
	db        *gorm.DB
	log       *logger.Logger
	threads   repos.ChatThreadRepo
	messages  repos.ChatMessageRepo
	providers *llm.Registry
	runner    StreamRunner
	aborter   StreamAborter
	cfg       ChatConfig
}

func NewChatService(
	db *gorm.DB,
	baseLog *logger.Logger,
	threadRepo repos.ChatThreadRepo,
	messageRepo repos.ChatMessageRepo,
	providers *llm.Registry,
	runner StreamRunner,
	aborter StreamAborter,
	cfg ChatConfig,
) ChatService {
	return &chatService{
		db:        db,
		log:       baseLog.With("service", "ChatService"),
		threads:   threadRepo,
		messages:  messageRepo,
		providers: providers,
		runner:    runner,
		aborter:   aborter,
		cfg:       cfg.withDefaults(),
	}
}

func viewer(ctx context.Context) (uuid.UUID, error) {
	id := ctxutil.ViewerID(ctx)
	if id == uuid.Nil {
		return uuid.Nil, ErrNotAuthenticated
	}
	return id, nil
}

func (s *chatService) SendMessage(dbc dbctx.Context, in SendMessageInput) (*SendMessageResult, error) {
	userID, err := viewer(dbc.Ctx)
	if err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, badRequest("missing_prompt", "missing prompt")
	}
	if len(prompt) > s.cfg.MaxPromptBytes {
		return nil, badRequest("prompt_too_large", "prompt too large")
	}
	provider, err := s.providers.Get(in.Provider)
	if err != nil {
		return nil, badRequest("unknown_provider", err.Error())
	}
	model := strings.TrimSpace(in.Model)

	var (
		thread  *types.ChatThread
		asst    *types.ChatMessage
		history []llm.Turn
		leaseID = uuid.New()
	)
	err = dbc.InTx(s.db, func(txc dbctx.Context) error {

		if in.ThreadID != nil && *in.ThreadID != uuid.Nil {
			th, err := s.threads.LockByID(txc, *in.ThreadID)
			if errors.Is(err, db.ErrNotFound) {
				return ErrThreadNotFound
			}
			if err != nil {
				return err
			}
			if !th.OwnedBy(userID) {
				return ErrThreadNotFound
			}
			thread = th

			busy, err := s.messages.CountStreaming(txc, th.ID)
			if err != nil {
				return err
			}
			if busy > 0 {
				return ErrThreadBusy
			}
			if s.cfg.HistoryLimit > 0 {
				prior, err := s.messages.ListByThread(txc, th.ID, s.cfg.HistoryLimit)
				if err != nil {
					return err
				}
				history = historyTurns(prior)
			}
		} else {
			created, err := s.threads.Create(txc, []*types.ChatThread{{
				UserID: userID,
				Title:  chatdomain.TitleFromPrompt(prompt),
			}})
			if err != nil {
				return err
			}
			thread = created[0]
		}

		seqs := thread.ReserveSeq(2)
		now := time.Now().UTC()
		expires := now.Add(s.cfg.LeaseTTL)
		userMsg := &types.ChatMessage{
			ID:       uuid.New(),
			ThreadID: thread.ID,
			UserID:   userID,
			Seq:      seqs[0],
			Role:     types.ChatRoleUser,
			Status:   types.ChatMessageStatusComplete,
			Content:  prompt,
		}
		meta, err := json.Marshal(map[string]any{"prompt_message_id": userMsg.ID.String()})
		if err != nil {
			return fmt.Errorf("encode message metadata: %w", err)
		}
		asst = &types.ChatMessage{
			ID:             uuid.New(),
			ThreadID:       thread.ID,
			UserID:         userID,
			Seq:            seqs[1],
			Role:           types.ChatRoleAssistant,
			Status:         types.ChatMessageStatusStreaming,
			Provider:       provider.Name(),
			Model:          model,
			Metadata:       datatypes.JSON(meta),
			LeaseID:        &leaseID,
			LeaseExpiresAt: &expires,
		}
		if _, err := s.messages.Create(txc, []*types.ChatMessage{userMsg, asst}); err != nil {
			if errors.Is(err, db.ErrConflict) {
				return ErrThreadBusy
			}
			return err
		}
		err = s.threads.AdvanceSeq(txc, thread.ID, thread.NextSeq, seqs[1], now)
		if errors.Is(err, db.ErrConflict) {
			return ErrThreadBusy
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	req := llm.Request{Model: model, System: s.cfg.SystemPrompt, History: history, Prompt: prompt}
	job := streaming.Job{
		MessageID: asst.ID,
		LeaseID:   leaseID,
		Source: func(ctx context.Context) iter.Seq2[string, error] {
			return provider.Stream(ctx, req)
		},
	}
	if err := s.runner.Submit(job); err != nil {
		var apiErr error = ErrServerBusy
		if errors.Is(err, streaming.ErrStopped) {
			apiErr = ErrShuttingDown
		}
		s.log.Warn("Stream not scheduled", "message_id", asst.ID.String(), "error", err)
		s.aborter.Abort(dbc.Ctx, job, apiErr)
		return nil, apiErr
	}

	s.log.Debug("Message stream started",
		"thread_id", thread.ID.String(),
		"message_id", asst.ID.String(),
		"provider", provider.Name(),
		"history", len(history),
	)
	return &SendMessageResult{ThreadID: thread.ID, MessageID: asst.ID}, nil
}

// historyTurns keeps the settled turns of a thread, oldest first.
func historyTurns(rows []*types.ChatMessage) []llm.Turn {
	out := make([]llm.Turn, 0, len(rows))
	for _, m := range rows {
		if m == nil || m.Status != types.ChatMessageStatusComplete || m.Content == "" {
			continue
		}
		role := llm.RoleUser
		if m.Role == types.ChatRoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Turn{Role: role, Content: m.Content})
	}
	return out
}

func (s *chatService) GetMessage(dbc dbctx.Context, messageID uuid.UUID) (*types.ChatMessage, error) {
	userID, err := viewer(dbc.Ctx)
	if err != nil {
		return nil, err
	}
	return s.ownedMessage(dbc, userID, messageID)
}

func (s *chatService) ownedMessage(dbc dbctx.Context, userID, messageID uuid.UUID) (*types.ChatMessage, error) {
	if messageID == uuid.Nil {
		return nil, ErrMessageNotFound
	}
	m, err := s.messages.GetByID(dbc, messageID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, ErrForbidden
	}
	return m, nil
}

func (s *chatService) AuthorizeMessage(ctx context.Context, viewerID, messageID uuid.UUID) error {
	if viewerID == uuid.Nil {
		return ErrNotAuthenticated
	}
	_, err := s.ownedMessage(dbctx.Context{Ctx: ctx}, viewerID, messageID)
	return err
}

func (s *chatService) ListThreads(dbc dbctx.Context, limit int) ([]*types.ChatThread, error) {
	userID, err := viewer(dbc.Ctx)
	if err != nil {
		return nil, err
	}
	return s.threads.ListByUser(dbc, userID, limit)
}

func (s *chatService) GetThread(dbc dbctx.Context, threadID uuid.UUID, limit int) (*types.ChatThread, []*types.ChatMessage, error) {
	userID, err := viewer(dbc.Ctx)
	if err != nil {
		return nil, nil, err
	}
	th, err := s.ownedThread(dbc, userID, threadID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByThread(dbc, th.ID, limit)
	if err != nil {
		return nil, nil, err
	}
	return th, msgs, nil
}

func (s *chatService) ownedThread(dbc dbctx.Context, userID, threadID uuid.UUID) (*types.ChatThread, error) {
	if threadID == uuid.Nil {
		return nil, ErrThreadNotFound
	}
	th, err := s.threads.GetByID(dbc, threadID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}
	if !th.OwnedBy(userID) {
		return nil, ErrThreadNotFound
	}
	return th, nil
}

func (s *chatService) DeleteThread(dbc dbctx.Context, threadID uuid.UUID) error {
	userID, err := viewer(dbc.Ctx)
	if err != nil {
		return err
	}
	if threadID == uuid.Nil {
		return ErrThreadNotFound
	}
	err = dbc.InTx(s.db, func(txc dbctx.Context) error {
		th, err := s.threads.LockByID(txc, threadID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && !th.OwnedBy(userID)) {
			return ErrThreadNotFound
		}
		if err != nil {
			return err
		}
		busy, err := s.messages.CountStreaming(txc, th.ID)
		if err != nil {
			return err
		}
		if busy > 0 {
			return ErrThreadBusy
		}
		if err := s.messages.SoftDeleteByThread(txc, th.ID); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		return s.threads.SoftDeleteByID(txc, th.ID)
	})
	if err != nil {
		return err
	}
	s.log.Info("Thread deleted", "thread_id", threadID.String(), "user_id", userID.String())
	return nil
}
