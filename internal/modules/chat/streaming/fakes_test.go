package streaming

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/realtime"
)

// journal records store writes and publishes in the order they happened.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeStore struct {
	j  *journal
	mu sync.Mutex

	snap Snapshot
	// Errors returned by the next calls, consumed in order.
	contentErrs  []error
	terminalErr  error
	renewErr     error
	readErr      error
	// onRead runs at the start of every Read, before the snapshot is taken.
	onRead       func()
	renewals     int
	terminalCall int
}

func newFakeStore(j *journal, id uuid.UUID) *fakeStore {
	return &fakeStore{j: j, snap: Snapshot{ID: id, Status: realtime.StatusStreaming}}
}

func (s *fakeStore) Read(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	if s.onRead != nil {
		s.onRead()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return Snapshot{}, s.readErr
	}
	if id != s.snap.ID {
		return Snapshot{}, ErrNotFound
	}
	return s.snap, nil
}

func (s *fakeStore) set(status, content, errDetail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Status, s.snap.Content, s.snap.Error = status, content, errDetail
}

func (s *fakeStore) WriteContent(ctx context.Context, id, leaseID uuid.UUID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.contentErrs) > 0 {
		err := s.contentErrs[0]
		s.contentErrs = s.contentErrs[1:]
		if err != nil {
			s.j.add("write-failed:%s", content)
			return err
		}
	}
	s.snap.Content = content
	s.j.add("write:%s", content)
	return nil
}

func (s *fakeStore) WriteTerminal(ctx context.Context, id, leaseID uuid.UUID, status, content, errDetail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminalCall++
	if s.terminalErr != nil {
		return s.terminalErr
	}
	s.snap.Status, s.snap.Content, s.snap.Error = status, content, errDetail
	s.j.add("terminal:%s:%s", status, content)
	return nil
}

func (s *fakeStore) RenewLease(ctx context.Context, id, leaseID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renewals++
	return s.renewErr
}

type fakePublisher struct {
	j   *journal
	mu  sync.Mutex
	got []realtime.Notification
	err error
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, n realtime.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.got = append(p.got, n)
	if p.j != nil {
		p.j.add("publish:%s:%s", n.Type, n.Text())
	}
	return nil
}

func (p *fakePublisher) notifications() []realtime.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Notification(nil), p.got...)
}

func seq(fn iter.Seq2[string, error]) Source {
	return func(context.Context) iter.Seq2[string, error] { return fn }
}

func fragments(frags ...string) Source {
	return seq(func(yield func(string, error) bool) {
		for _, f := range frags {
			if !yield(f, nil) {
				return
			}
		}
	})
}

func failingAfter(err error, frags ...string) Source {
	return seq(func(yield func(string, error) bool) {
		for _, f := range frags {
			if !yield(f, nil) {
				return
			}
		}
		yield("", err)
	})
}

// blockingSource yields frags and then waits for release to be closed.
func blockingSource(release <-chan struct{}, frags ...string) Source {
	return seq(func(yield func(string, error) bool) {
		for _, f := range frags {
			if !yield(f, nil) {
				return
			}
		}
		<-release
	})
}

var errBoom = errors.New("boom")

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
