package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// StatusError is a non-success HTTP response. RetryAfter is set when the
// server asked the caller to wait.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("http %d %s", e.Code, http.StatusText(e.Code))
}

func (e *StatusError) HTTPStatusCode() int { return e.Code }

// NewStatusError drains a bounded prefix of resp's body into a StatusError.
// Retry-After hints above max are capped. The caller still closes the body.
func NewStatusError(resp *http.Response, max time.Duration) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Code:       resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: RetryAfterDuration(resp, 0, max),
	}
}

func IsRetryableHTTPStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

// IsPermanent reports whether err is an HTTP rejection that retrying cannot
// fix (4xx other than 408/429).
func IsPermanent(err error) bool {
	var sc HTTPStatusCoder
	if !errors.As(err, &sc) {
		return false
	}
	code := sc.HTTPStatusCode()
	return code >= 400 && code < 500 && !IsRetryableHTTPStatus(code)
}

// RetryAfter returns the wait hint carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// RetryAfterDuration reads a delta-seconds Retry-After header. HTTP-date
// values are ignored and yield fallback.
func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	d := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				d = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

// JitterSleep spreads base by ±20%.
func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := nonNegative(base.Seconds() - delta)
	high := base.Seconds() + delta
	return time.Duration((low + rand.Float64()*(high-low)) * float64(time.Second))
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
