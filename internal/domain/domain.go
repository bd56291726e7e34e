package domain

import (
	"github.com/yungbote/chatstream-backend/internal/domain/chat"
)

type ChatThread = chat.ChatThread
type ChatMessage = chat.ChatMessage

const (
	DefaultThreadTitle = chat.DefaultThreadTitle

	ChatRoleUser      = chat.RoleUser
	ChatRoleAssistant = chat.RoleAssistant

	ChatMessageStatusStreaming = chat.MessageStatusStreaming
	ChatMessageStatusComplete  = chat.MessageStatusComplete
	ChatMessageStatusError     = chat.MessageStatusError
)

// Models lists every table managed by AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&ChatThread{},
		&ChatMessage{},
	}
}
