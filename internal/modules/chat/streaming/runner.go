package streaming

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

var (
	ErrSaturated = errors.New("stream runner saturated")
	ErrStopped   = errors.New("stream runner stopped")
)

// Runner executes producer jobs in the background with bounded concurrency.
type Runner struct {
	log      *logger.Logger
	producer *Producer

	mu        sync.RWMutex
	accepting bool
	g         *errgroup.Group
	baseCtx   context.Context
	cancel    context.CancelFunc
	active    atomic.Int64
	onDone    func(Job, Result)
}

// NewRunner allows at most limit producers at once; limit <= 0 means
// unbounded.
func NewRunner(log *logger.Logger, producer *Producer, limit int) *Runner {
	g := &errgroup.Group{}
	if limit > 0 {
		g.SetLimit(limit)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		log:       log.With("component", "StreamRunner"),
		producer:  producer,
		accepting: true,
		g:         g,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// OnDone registers a callback invoked after every job. It must be set before
// the first Submit.
func (r *Runner) OnDone(fn func(Job, Result)) { r.onDone = fn }

// Submit starts job in the background. Jobs are detached from the caller's
// request; they end when their source ends or the runner is force-stopped.
func (r *Runner) Submit(job Job) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.accepting {
		return ErrStopped
	}
	ok := r.g.TryGo(func() error {
		r.active.Add(1)
		defer r.active.Add(-1)
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("Producer panic", "message_id", job.MessageID.String(), "panic", rec)
			}
		}()
		res := r.producer.Run(r.baseCtx, job)
		if r.onDone != nil {
			r.onDone(job, res)
		}
		return nil
	})
	if !ok {
		return ErrSaturated
	}
	return nil
}

func (r *Runner) Active() int { return int(r.active.Load()) }

// Shutdown stops accepting jobs and waits for running ones. When ctx ends
// first, remaining generations are cancelled and recorded as errors.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.accepting = false
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = r.g.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.log.Warn("Shutdown grace elapsed; cancelling producers", "active", r.Active())
		r.cancel()
		<-done
		return ctx.Err()
	}
}
