package streamclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/chatstream-backend/internal/pkg/httpx"
)

func collectFrames(t *testing.T, raw string) []Frame {
	t.Helper()
	var out []Frame
	if err := parseSSE(strings.NewReader(raw), func(f Frame) error {
		out = append(out, f)
		return nil
	}); err != nil {
		t.Fatalf("parseSSE: %v", err)
	}
	return out
}

func TestParseSSE(t *testing.T) {
	raw := "event:initial\ndata:{\"a\":1}\n\n" +
		": ping\n\n" +
		"event: delta\r\ndata: line one\r\ndata: line two\r\n\r\n" +
		"data:tail"
	frames := collectFrames(t, raw)
	want := []Frame{
		{Event: "initial", Data: `{"a":1}`},
		{Heartbeat: true},
		{Event: "delta", Data: "line one\nline two"},
		{Data: "tail"},
	}
	if len(frames) != len(want) {
		t.Fatalf("frames: %+v", frames)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("frame %d: got %+v want %+v", i, frames[i], want[i])
		}
	}
}

func TestParseSSEStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := parseSSE(strings.NewReader("data:a\n\ndata:b\n\n"), func(Frame) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestHTTPTransportStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/chat/messages/m1/stream" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:initial\ndata:{\"type\":\"initial\",\"messageId\":\"m1\"}\n\n: ping\n\n")
	}))
	defer srv.Close()

	tr := &HTTPTransport{BaseURL: srv.URL + "/", Token: "tok"}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := tr.Open(ctx, "m1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var frames []Frame
	for f := range s.Frames() {
		frames = append(frames, f)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if len(frames) != 2 || frames[0].Event != "initial" || !frames[1].Heartbeat {
		t.Fatalf("frames: %+v", frames)
	}
}

func TestHTTPTransportRejections(t *testing.T) {
	tests := []struct {
		code      int
		permanent bool
	}{
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusNotFound, true},
		{http.StatusTooManyRequests, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"code":"x"}}`, tc.code)
			}))
			defer srv.Close()

			_, err := (&HTTPTransport{BaseURL: srv.URL}).Open(context.Background(), "m1")
			var se *httpx.StatusError
			if !errors.As(err, &se) || se.Code != tc.code {
				t.Fatalf("err = %v", err)
			}
			if httpx.IsPermanent(err) != tc.permanent {
				t.Fatalf("permanent = %v, want %v", httpx.IsPermanent(err), tc.permanent)
			}
		})
	}
}
