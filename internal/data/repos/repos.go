package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/data/repos/chat"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

type ChatThreadRepo = chat.ChatThreadRepo
type ChatMessageRepo = chat.ChatMessageRepo

func NewChatThreadRepo(db *gorm.DB, log *logger.Logger) ChatThreadRepo {
	return chat.NewChatThreadRepo(db, log)
}

func NewChatMessageRepo(db *gorm.DB, log *logger.Logger) ChatMessageRepo {
	return chat.NewChatMessageRepo(db, log)
}
