package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatstream-backend/internal/platform/apierr"
)

func TestRespondAPIError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"api error", apierr.New(http.StatusConflict, "thread_busy", errors.New("busy")), http.StatusConflict, "thread_busy", "busy"},
		{"wrapped", errors.Join(errors.New("ctx"), apierr.New(http.StatusNotFound, "message_not_found", errors.New("gone"))), http.StatusNotFound, "message_not_found", "ctx\ngone"},
		{"plain error hides detail", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal", "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			RespondAPIError(c, tc.err)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got=%d want=%d", rec.Code, tc.wantStatus)
			}
			var env ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error.Code != tc.wantCode || env.Error.Message != tc.wantMsg {
				t.Fatalf("envelope: %+v", env)
			}
		})
	}
}

func TestRetryableStatusesCarryRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondAPIError(c, apierr.New(http.StatusServiceUnavailable, "server_busy", errors.New("server busy")))
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("503: %d retry-after=%q", rec.Code, rec.Header().Get("Retry-After"))
	}

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Header("Retry-After", "9")
	AbortError(c, http.StatusTooManyRequests, "rate_limited", "")
	if !c.IsAborted() || rec.Header().Get("Retry-After") != "9" {
		t.Fatalf("429: aborted=%v retry-after=%q", c.IsAborted(), rec.Header().Get("Retry-After"))
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil || env.Error.Message != "Too Many Requests" {
		t.Fatalf("envelope: %+v %v", env, err)
	}

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	RespondError(c, http.StatusNotFound, "message_not_found", nil)
	if rec.Header().Get("Retry-After") != "" {
		t.Fatalf("404 must not carry Retry-After")
	}
}
