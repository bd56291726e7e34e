package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope is the body of every non-2xx JSON response.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// retryAfter is the Retry-After value, in seconds, attached to statuses a
// client is expected to retry. A handler that already set the header wins.
var retryAfter = map[int]int{
	http.StatusTooManyRequests:    1,
	http.StatusServiceUnavailable: 2,
}

func envelope(c *gin.Context, status int, code, msg string) ErrorEnvelope {
	if secs, ok := retryAfter[status]; ok && c.Writer.Header().Get("Retry-After") == "" {
		c.Header("Retry-After", strconv.Itoa(secs))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return ErrorEnvelope{Error: APIError{Message: msg, Code: code}}
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, envelope(c, status, code, msg))
}

// AbortError ends the middleware chain with an error envelope.
func AbortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, envelope(c, status, code, msg))
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
