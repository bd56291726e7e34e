package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/streamclient"
)

func TestRendererWritesSuffixes(t *testing.T) {
	var out, status bytes.Buffer
	r := &renderer{out: &out, status: &status}
	r.Update(streamclient.View{State: streamclient.StateConnected, Content: "He"})
	r.Update(streamclient.View{State: streamclient.StateConnected, Content: "Hello"})
	r.Update(streamclient.View{State: streamclient.StateConnected, Content: "Hello"})
	r.Update(streamclient.View{State: streamclient.StateComplete, Content: "Hello world"})
	if out.String() != "Hello world" {
		t.Fatalf("out = %q", out.String())
	}
	if status.Len() != 0 {
		t.Fatalf("status = %q", status.String())
	}
}

func TestRendererReprintsOnDivergence(t *testing.T) {
	var out, status bytes.Buffer
	r := &renderer{out: &out, status: &status}
	r.Update(streamclient.View{State: streamclient.StateConnected, Content: "Hello"})
	r.Update(streamclient.View{State: streamclient.StateReconnecting, Content: "Hello", Attempt: 0})
	r.Update(streamclient.View{State: streamclient.StateConnected, Content: "Help me"})
	if !strings.HasSuffix(out.String(), "[resynced]\nHelp me") {
		t.Fatalf("out = %q", out.String())
	}
	if !strings.Contains(status.String(), "reconnecting (attempt 1)") {
		t.Fatalf("status = %q", status.String())
	}
}

func TestSummary(t *testing.T) {
	v := streamclient.View{State: streamclient.StateError, Content: strings.Repeat("a", 1500), Error: "boom"}
	got := summary(v, 1500*time.Millisecond)
	for _, want := range []string{"error", "1.5 kB", "1,500 chars", "1.5s", "error: boom"} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary %q missing %q", got, want)
		}
	}
}

func TestSendMessage(t *testing.T) {
	threadID := uuid.New()
	messageID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat/messages" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body sendRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Prompt != "hi" || body.ThreadID == nil || *body.ThreadID != threadID {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"bad body","code":"invalid"}}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(sendResponse{ThreadID: threadID, MessageID: messageID})
	}))
	defer srv.Close()

	opts = globalOptions{server: srv.URL, token: "tok"}
	res, err := sendMessage(context.Background(), sendOptions{prompt: "hi", thread: threadID.String()})
	if err != nil {
		t.Fatalf("sendMessage: %v", err)
	}
	if res.ThreadID != threadID || res.MessageID != messageID {
		t.Fatalf("res = %+v", res)
	}

	_, err = sendMessage(context.Background(), sendOptions{prompt: "other", thread: threadID.String()})
	if err == nil || !strings.Contains(err.Error(), "bad body") {
		t.Fatalf("err = %v", err)
	}

	if _, err := sendMessage(context.Background(), sendOptions{prompt: "hi", thread: "nope"}); err == nil {
		t.Fatal("invalid thread id accepted")
	}
}
