package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/services"
)

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := services.NewAuthService(logger.Nop(), "secret", "")
	userID := uuid.New()
	token, err := auth.IssueToken(userID, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	r := gin.New()
	r.GET("/me", NewAuthMiddleware(logger.Nop(), auth).RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, ctxutil.GetRequestData(c.Request.Context()).UserID.String())
	})

	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"bearer", "/me", "Bearer " + token, http.StatusOK},
		{"query token", "/me?token=" + token, "", http.StatusOK},
		{"header beats query", "/me?token=nope", "Bearer " + token, http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"invalid", "/me", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status: got=%d want=%d body=%s", rec.Code, tc.want, rec.Body.String())
			}
			if tc.want == http.StatusOK && rec.Body.String() != userID.String() {
				t.Fatalf("user id: %s", rec.Body.String())
			}
		})
	}
}

func TestRateLimiterPerViewer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(RateLimitConfig{RPS: 0.001, Burst: 2}, nil)

	alice, bob := uuid.New(), uuid.New()
	r := gin.New()
	r.Use(func(c *gin.Context) {
		id, _ := uuid.Parse(c.GetHeader("X-User"))
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: id}))
		c.Next()
	})
	r.POST("/send", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	send := func(user uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/send", nil)
		req.Header.Set("X-User", user.String())
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < 2; i++ {
		if code := send(alice); code != http.StatusAccepted {
			t.Fatalf("request %d: %d", i, code)
		}
	}
	if code := send(alice); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send(bob); code != http.StatusAccepted {
		t.Fatalf("other viewer limited: %d", code)
	}
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{TTL: time.Minute}, nil)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.Allow("a")
	rl.Allow("b")
	now = now.Add(2 * time.Minute)
	rl.Allow("b")
	if left := rl.Evict(); left != 1 {
		t.Fatalf("remaining buckets: %d", left)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rl.Run(ctx)
}

func TestAttachTraceContextEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) {
		td := ctxutil.GetTraceData(c.Request.Context())
		c.String(http.StatusOK, td.RequestID)
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() != "req-1" || rec.Header().Get("X-Request-Id") != "req-1" {
		t.Fatalf("request id not propagated: body=%q header=%q", rec.Body.String(), rec.Header().Get("X-Request-Id"))
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatal("missing trace id")
	}
}

func TestCorrelationIDRejectsUnsafeValues(t *testing.T) {
	tests := []struct {
		in   string
		keep bool
	}{
		{"abc-123", true},
		{"", false},
		{"has space", false},
		{"line\nbreak", false},
		{strings.Repeat("x", 200), false},
	}
	for _, tc := range tests {
		got := correlationID(tc.in)
		if (got == tc.in) != tc.keep {
			t.Fatalf("correlationID(%q) = %q", tc.in, got)
		}
		if got == "" {
			t.Fatalf("correlationID(%q) returned empty", tc.in)
		}
	}
}
