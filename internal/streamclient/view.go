package streamclient

import "github.com/yungbote/chatstream-backend/internal/realtime"

// View is what a UI renders for one message.
type View struct {
	MessageID string
	// Status is the server-side message status: streaming, complete or error.
	Status  string
	Content string
	Error   string

	// State is the controller state. Failure is set when the controller gave
	// up locally, which is distinct from a server-reported error.
	State   State
	Attempt int
	Failure string
}

// Terminal reports whether the server has finished the message.
func (v View) Terminal() bool {
	return v.Status == realtime.StatusComplete || v.Status == realtime.StatusError
}

// Apply folds one notification into v. Content is always replaced, never
// appended, so applying the same notification twice is a no-op and overlapping
// windows after a reconnect converge. Once terminal, v no longer changes.
func Apply(v View, n realtime.Notification) View {
	if v.MessageID != "" && n.MessageID != v.MessageID {
		return v
	}
	if v.Terminal() {
		return v
	}
	v.MessageID = n.MessageID
	switch n.Type {
	case realtime.NotificationInitial:
		v.Status = n.Status
		v.Content = n.Content
		v.Error = n.Error
	case realtime.NotificationDelta:
		v.Status = realtime.StatusStreaming
		v.Content = n.FullContent
	case realtime.NotificationComplete:
		v.Status = realtime.StatusComplete
		v.Content = n.Content
		v.Error = ""
	case realtime.NotificationError:
		v.Status = realtime.StatusError
		if n.Content != "" {
			v.Content = n.Content
		}
		v.Error = n.Error
	}
	return v
}
