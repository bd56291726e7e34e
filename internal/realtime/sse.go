package realtime

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-contrib/sse"
)

// SSEWriter frames notifications as server-sent events on an HTTP response.
// Headers are committed by Open so that errors found before the stream
// starts can still be reported with a normal status code.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	opened  bool
}

func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) Open() error {
	if s.opened {
		return nil
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
	s.opened = true
	return nil
}

func (s *SSEWriter) Send(n Notification) error {
	if err := s.Open(); err != nil {
		return err
	}
	if err := sse.Encode(s.w, sse.Event{Event: string(n.Type), Data: n}); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Heartbeat writes an SSE comment line; clients treat it as proof of
// liveness and otherwise ignore it.
func (s *SSEWriter) Heartbeat() error {
	if err := s.Open(); err != nil {
		return err
	}
	if _, err := io.WriteString(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Opened reports whether the stream has been committed to the client.
func (s *SSEWriter) Opened() bool { return s.opened }
