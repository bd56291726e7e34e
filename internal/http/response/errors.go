package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatstream-backend/internal/platform/apierr"
)

// RespondAPIError renders err with the status and code it carries. Errors
// without one are reported as 500 with a generic message.
func RespondAPIError(c *gin.Context, err error) {
	status, code := apierr.From(err)
	if status >= http.StatusInternalServerError && code == "internal" {
		RespondError(c, status, code, errInternal)
		return
	}
	RespondError(c, status, code, err)
}

// AbortAPIError is RespondAPIError for middleware.
func AbortAPIError(c *gin.Context, err error) {
	RespondAPIError(c, err)
	c.Abort()
}

var errInternal = errors.New("internal server error")
