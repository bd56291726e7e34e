package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yungbote/chatstream-backend/internal/http/response"
	"github.com/yungbote/chatstream-backend/internal/observability"
	"github.com/yungbote/chatstream-backend/internal/platform/ctxutil"
)

type RateLimitConfig struct {
	RPS   float64       `yaml:"rps"`
	Burst int           `yaml:"burst"`
	TTL   time.Duration `yaml:"ttl"`
}

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per viewer (client IP before auth).
// Idle buckets are evicted after TTL.
type RateLimiter struct {
	mu      sync.Mutex
	m       map[string]*limiterEntry
	cfg     RateLimitConfig
	metrics *observability.Metrics
	now     func() time.Time
}

func NewRateLimiter(cfg RateLimitConfig, metrics *observability.Metrics) *RateLimiter {
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &RateLimiter{m: make(map[string]*limiterEntry), cfg: cfg, metrics: metrics, now: time.Now}
}

func (p *RateLimiter) Allow(key string) bool {
	p.mu.Lock()
	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(rate.Limit(p.cfg.RPS), p.cfg.Burst)}
		p.m[key] = e
	}
	e.lastSeen = p.now()
	p.mu.Unlock()
	return e.l.Allow()
}

// Evict drops buckets idle for longer than TTL and returns how many remain.
func (p *RateLimiter) Evict() int {
	cutoff := p.now().Add(-p.cfg.TTL)
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
	return len(p.m)
}

// Run evicts idle buckets every minute until ctx is done.
func (p *RateLimiter) Run(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Evict()
		}
	}
}

func (p *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
			key = rd.UserID.String()
		}
		if !p.Allow(key) {
			p.metrics.IncRateLimited()
			response.AbortError(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		c.Next()
	}
}
