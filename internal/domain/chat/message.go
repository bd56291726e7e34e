package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message lifecycle. A message starts in MessageStatusStreaming and moves
// exactly once to MessageStatusComplete or MessageStatusError.
const (
	MessageStatusStreaming = "streaming"
	MessageStatusComplete  = "complete"
	MessageStatusError     = "error"
)

type ChatMessage struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_chat_message_thread_seq,unique,priority:1" json:"thread_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Seq int64 `gorm:"column:seq;not null;index:idx_chat_message_thread_seq,unique,priority:2" json:"seq"`

	Role   string `gorm:"column:role;not null;index" json:"role"`
	Status string `gorm:"column:status;not null;index" json:"status"`

	Content string `gorm:"column:content;type:text;not null;default:''" json:"content"`
	Error   string `gorm:"column:error;type:text;not null;default:''" json:"error,omitempty"`

	Provider string         `gorm:"column:provider" json:"provider,omitempty"`
	Model    string         `gorm:"column:model" json:"model,omitempty"`
	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`

	// Producer lease. Only the holder of LeaseID may write a streaming message;
	// the terminal write clears it.
	LeaseID        *uuid.UUID `gorm:"type:uuid;column:lease_id" json:"-"`
	LeaseExpiresAt *time.Time `gorm:"column:lease_expires_at;index" json:"-"`

	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ChatMessage) TableName() string { return "chat_message" }

func IsTerminalStatus(status string) bool {
	return status == MessageStatusComplete || status == MessageStatusError
}

func (m *ChatMessage) IsTerminal() bool {
	return m != nil && IsTerminalStatus(m.Status)
}
