package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/http/response"
	"github.com/yungbote/chatstream-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatstream-backend/internal/services"
)

type ChatHandler struct {
	chat services.ChatService
}

func NewChatHandler(chat services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type sendMessageReq struct {
	ThreadID *uuid.UUID `json:"threadId"`
	Prompt   string     `json:"prompt" binding:"required"`
	Model    string     `json:"model"`
	Provider string     `json:"provider"`
}

// POST /api/chat/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	res, err := h.chat.SendMessage(dbc, services.SendMessageInput{
		ThreadID: req.ThreadID,
		Prompt:   req.Prompt,
		Model:    req.Model,
		Provider: req.Provider,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, res)
}

// GET /api/chat/messages/:id
func (h *ChatHandler) GetMessage(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_message_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	msg, err := h.chat.GetMessage(dbc, messageID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": msg})
}

// GET /api/chat/threads?limit=50
func (h *ChatHandler) ListThreads(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	threads, err := h.chat.ListThreads(dbc, queryLimit(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"threads": threads})
}

// GET /api/chat/threads/:id?limit=50
func (h *ChatHandler) GetThread(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_thread_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	thread, msgs, err := h.chat.GetThread(dbc, threadID, queryLimit(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"thread": thread, "messages": msgs})
}

// DELETE /api/chat/threads/:id
func (h *ChatHandler) DeleteThread(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_thread_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := h.chat.DeleteThread(dbc, threadID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryLimit(c *gin.Context) int {
	limit := 50
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	return limit
}
