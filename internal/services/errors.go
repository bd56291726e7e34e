package services

import (
	"errors"
	"net/http"

	"github.com/yungbote/chatstream-backend/internal/platform/apierr"
)

var (
	ErrNotAuthenticated = apierr.New(http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
	ErrForbidden        = apierr.New(http.StatusForbidden, "forbidden", errors.New("forbidden"))
	ErrThreadNotFound   = apierr.New(http.StatusNotFound, "thread_not_found", errors.New("thread not found"))
	ErrMessageNotFound  = apierr.New(http.StatusNotFound, "message_not_found", errors.New("message not found"))
	ErrThreadBusy       = apierr.New(http.StatusConflict, "thread_busy", errors.New("thread has a message in progress"))
	ErrServerBusy       = apierr.New(http.StatusServiceUnavailable, "server_busy", errors.New("server busy"))
	ErrShuttingDown     = apierr.New(http.StatusServiceUnavailable, "shutting_down", errors.New("server shutting down"))
)

func badRequest(code, msg string) error {
	return apierr.New(http.StatusBadRequest, code, errors.New(msg))
}
