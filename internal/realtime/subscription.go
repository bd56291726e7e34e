package realtime

import (
	"sync"
	"sync/atomic"
)

const DefaultSubscriptionBuffer = 64

// Subscription is one consumer's view of a topic. Delivery never blocks the
// publisher: when the buffer is full the notification is dropped and Lagged
// fires so the consumer can resynchronize from the store.
type Subscription struct {
	topic   string
	ch      chan Notification
	lagged  chan struct{}
	done    chan struct{}
	dropped atomic.Uint64

	closeOnce sync.Once
	onClose   func()
}

func NewSubscription(topic string, buffer int, onClose func()) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	return &Subscription{
		topic:   topic,
		ch:      make(chan Notification, buffer),
		lagged:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) C() <-chan Notification { return s.ch }

func (s *Subscription) Lagged() <-chan struct{} { return s.lagged }

// Done is closed once the subscription is closed, either by its owner or
// because the underlying transport went away.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Deliver enqueues n without blocking and reports whether it was accepted.
func (s *Subscription) Deliver(n Notification) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- n:
		return true
	default:
		s.dropped.Add(1)
		select {
		case s.lagged <- struct{}{}:
		default:
		}
		return false
	}
}

func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}
