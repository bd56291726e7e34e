package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/http/response"
	"github.com/yungbote/chatstream-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/services"
)

const msgBadToken = "missing or invalid token"

type AuthMiddleware struct {
	log  *logger.Logger
	auth services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, auth services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), auth: auth}
}

// RequireAuth resolves the viewer from a bearer token and stores it on the
// request context for handlers and the stream gateway.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, source := bearerToken(c)
		if token == "" {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", msgBadToken)
			return
		}
		ctx, err := am.auth.SetContextFromToken(c.Request.Context(), token)
		if err != nil {
			am.log.Debug("Token rejected", "source", source, "path", c.FullPath(), "error", err)
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", msgBadToken)
			return
		}
		rd := ctxutil.GetRequestData(ctx)
		if rd == nil || rd.UserID == uuid.Nil {
			response.AbortError(c, http.StatusForbidden, "forbidden", "forbidden")
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set("user_id", rd.UserID.String())
		c.Next()
	}
}

// bearerToken prefers the Authorization header. The stream endpoint also
// accepts ?token= because EventSource cannot set headers.
func bearerToken(c *gin.Context) (token, source string) {
	if h := c.GetHeader("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		if t := strings.TrimSpace(h[7:]); t != "" {
			return t, "header"
		}
	}
	if q := strings.TrimSpace(c.Query("token")); q != "" {
		return q, "query"
	}
	return "", ""
}
