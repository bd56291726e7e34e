package chat

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultThreadTitle = "New Chat"

	maxTitleRunes = 60
)

// ChatThread groups a user's messages. NextSeq is the last sequence number
// handed out; it only moves while the row is locked.
type ChatThread struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Title  string    `gorm:"column:title;not null;default:'New Chat'" json:"title"`

	NextSeq       int64     `gorm:"column:next_seq;not null;default:0" json:"next_seq"`
	LastMessageAt time.Time `gorm:"column:last_message_at;not null;index" json:"last_message_at"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ChatThread) TableName() string { return "chat_thread" }

func (t *ChatThread) OwnedBy(userID uuid.UUID) bool {
	return t != nil && userID != uuid.Nil && t.UserID == userID
}

// ReserveSeq returns the next n sequence numbers without mutating the thread.
func (t *ChatThread) ReserveSeq(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = t.NextSeq + int64(i) + 1
	}
	return out
}

// TitleFromPrompt collapses whitespace and truncates to a short title.
func TitleFromPrompt(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	if title == "" {
		return DefaultThreadTitle
	}
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	r := []rune(title)
	return strings.TrimSpace(string(r[:maxTitleRunes])) + "..."
}
