package streamclient

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/chatstream-backend/internal/pkg/httpx"
)

// Frame is one server-sent event. Heartbeat frames carry no data and only
// prove the connection is alive.
type Frame struct {
	Event     string
	Data      string
	Heartbeat bool
}

// Stream is one open connection to the gateway. Frames is closed when the
// connection ends; Err then reports why (nil for a clean close).
type Stream interface {
	Frames() <-chan Frame
	Err() error
	Close() error
}

// Transport opens gateway connections. Rejections before the stream starts
// are reported as *httpx.StatusError.
type Transport interface {
	Open(ctx context.Context, messageID string) (Stream, error)
}

// maxRetryAfter caps how long a server hint may stall a reconnect.
const maxRetryAfter = time.Minute

// HTTPTransport connects to the gateway's SSE endpoint.
type HTTPTransport struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (t *HTTPTransport) streamURL(messageID string) string {
	return strings.TrimRight(t.BaseURL, "/") + "/api/chat/messages/" + url.PathEscape(messageID) + "/stream"
}

func (t *HTTPTransport) Open(ctx context.Context, messageID string) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.streamURL(messageID), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		se := httpx.NewStatusError(resp, maxRetryAfter)
		_ = resp.Body.Close()
		cancel()
		return nil, se
	}

	s := &httpStream{frames: make(chan Frame, 16), body: resp.Body, cancel: cancel}
	go s.read(ctx)
	return s, nil
}

type httpStream struct {
	frames chan Frame
	body   io.ReadCloser
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *httpStream) Frames() <-chan Frame { return s.frames }

func (s *httpStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *httpStream) Close() error {
	s.cancel()
	return s.body.Close()
}

func (s *httpStream) read(ctx context.Context) {
	defer close(s.frames)
	err := parseSSE(s.body, func(f Frame) error {
		select {
		case s.frames <- f:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// parseSSE reads event-stream frames from r until EOF. Comment lines are
// reported as heartbeats.
func parseSSE(r io.Reader, onFrame func(Frame) error) error {
	br := bufio.NewReader(r)
	var (
		eventName string
		dataLines []string
	)

	flush := func() error {
		if len(dataLines) == 0 {
			eventName = ""
			return nil
		}
		f := Frame{Event: eventName, Data: strings.Join(dataLines, "\n")}
		eventName, dataLines = "", nil
		return onFrame(f)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := err != nil
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if ferr := flush(); ferr != nil {
				return ferr
			}
		case strings.HasPrefix(line, ":"):
			if ferr := onFrame(Frame{Heartbeat: true}); ferr != nil {
				return ferr
			}
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if eof {
			return flush()
		}
	}
}
