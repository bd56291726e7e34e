package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/http/response"
	"github.com/yungbote/chatstream-backend/internal/modules/chat/streaming"
	"github.com/yungbote/chatstream-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

// StreamServer is the gateway session entry point.
type StreamServer interface {
	Serve(ctx context.Context, viewerID, messageID uuid.UUID, out streaming.EventStream) error
}

type StreamHandler struct {
	log     *logger.Logger
	gateway StreamServer
}

func NewStreamHandler(log *logger.Logger, gateway StreamServer) *StreamHandler {
	return &StreamHandler{log: log.With("handler", "StreamHandler"), gateway: gateway}
}

// GET /api/chat/messages/:id/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_message_id", err)
		return
	}
	w, err := realtime.NewSSEWriter(c.Writer)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", err)
		return
	}

	err = h.gateway.Serve(c.Request.Context(), rd.UserID, messageID, w)
	if err == nil {
		return
	}
	if w.Opened() {
		h.log.Warn("Stream ended with error", "message_id", messageID.String(), "error", err)
		return
	}
	response.RespondAPIError(c, err)
}
