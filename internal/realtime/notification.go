package realtime

import (
	"encoding/json"
	"fmt"
)

type NotificationType string

const (
	NotificationInitial  NotificationType = "initial"
	NotificationDelta    NotificationType = "delta"
	NotificationComplete NotificationType = "complete"
	NotificationError    NotificationType = "error"
)

const (
	StatusStreaming = "streaming"
	StatusComplete  = "complete"
	StatusError     = "error"
)

// Notification is the payload carried on a message topic and relayed to
// viewers as one SSE event. Content and FullContent always hold the whole
// text so far; Delta is the newest fragment only and is informational.
type Notification struct {
	Type        NotificationType `json:"type"`
	MessageID   string           `json:"messageId"`
	Status      string           `json:"status,omitempty"`
	Content     string           `json:"content,omitempty"`
	FullContent string           `json:"fullContent,omitempty"`
	Delta       string           `json:"delta,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Topic names the per-message channel.
func Topic(messageID string) string { return "message:" + messageID }

func Initial(messageID, status, content, errDetail string) Notification {
	return Notification{Type: NotificationInitial, MessageID: messageID, Status: status, Content: content, Error: errDetail}
}

func Delta(messageID, fragment, fullContent string) Notification {
	return Notification{Type: NotificationDelta, MessageID: messageID, Status: StatusStreaming, Delta: fragment, FullContent: fullContent}
}

func Complete(messageID, content string) Notification {
	return Notification{Type: NotificationComplete, MessageID: messageID, Status: StatusComplete, Content: content}
}

func Failed(messageID, content, errDetail string) Notification {
	return Notification{Type: NotificationError, MessageID: messageID, Status: StatusError, Content: content, Error: errDetail}
}

// Text returns the cumulative content carried by n.
func (n Notification) Text() string {
	if n.Type == NotificationDelta {
		return n.FullContent
	}
	return n.Content
}

// IsTerminal reports whether n ends the stream: a complete or error
// notification, or an initial snapshot of a message that already finished.
func (n Notification) IsTerminal() bool {
	switch n.Type {
	case NotificationComplete, NotificationError:
		return true
	case NotificationInitial:
		return n.Status == StatusComplete || n.Status == StatusError
	default:
		return false
	}
}

func Encode(n Notification) ([]byte, error) {
	return json.Marshal(n)
}

func Decode(raw []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.Type == "" || n.MessageID == "" {
		return Notification{}, fmt.Errorf("decode notification: missing type or messageId")
	}
	return n, nil
}
