package realtime

import (
	"strings"
	"sync"

	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

// Hub fans notifications out to in-process subscriptions by topic.
type Hub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	buffer        int
	subscriptions map[string]map[*Subscription]struct{}
}

func NewHub(log *logger.Logger, buffer int) *Hub {
	return &Hub{
		logger:        log.With("component", "RealtimeHub"),
		buffer:        buffer,
		subscriptions: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscription that is active on return.
func (h *Hub) Subscribe(topic string) *Subscription {
	topic = strings.TrimSpace(topic)
	var sub *Subscription
	sub = NewSubscription(topic, h.buffer, func() { h.remove(sub) })

	h.mu.Lock()
	subs, ok := h.subscriptions[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.subscriptions[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("Hub subscription added", "topic", topic)
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscriptions[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subscriptions, sub.topic)
		}
	}
}

// Publish delivers n to every current subscriber of topic and returns how
// many accepted it.
func (h *Hub) Publish(topic string, n Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subscriptions[topic] {
		if sub.Deliver(n) {
			delivered++
			continue
		}
		h.logger.Warn("Dropping notification; subscriber buffer full", "topic", topic, "type", n.Type)
	}
	return delivered
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[topic])
}

// CloseAll closes every subscription, ending their consumers.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var all []*Subscription
	for _, subs := range h.subscriptions {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range all {
		_ = sub.Close()
	}
}
