package streaming

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/chatstream-backend/internal/observability"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

const (
	OutcomeComplete  = "complete"
	OutcomeError     = "error"
	OutcomeAbandoned = "abandoned"
)

type ProducerConfig struct {
	// FlushInterval coalesces fragments into one persist+publish per
	// interval. Zero flushes on every fragment.
	FlushInterval time.Duration `yaml:"flush_interval"`
	// FlushBytes forces a flush once this many unflushed bytes accumulate.
	FlushBytes int `yaml:"flush_bytes"`
	// LeaseTTL is how long a lease lives without renewal. Zero disables
	// renewal.
	LeaseTTL time.Duration `yaml:"lease_ttl"`
	// WriteTimeout bounds each store write and publish.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func (c ProducerConfig) withDefaults() ProducerConfig {
	if c.FlushBytes <= 0 {
		c.FlushBytes = 512
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Source opens the generation for a job. The returned sequence is consumed
// once; ctx ends when the producer stops reading.
type Source func(ctx context.Context) iter.Seq2[string, error]

// Job is one assistant message to generate. The message must already exist
// in streaming status and be leased to LeaseID.
type Job struct {
	MessageID uuid.UUID
	LeaseID   uuid.UUID
	Source    Source
}

type Result struct {
	Outcome   string
	Content   string
	Fragments int
	Err       error
}

// Producer drives one generation source into the store and onto the bus.
// Every flush persists the cumulative content before publishing it, so a
// viewer never sees a notification the store cannot reproduce.
type Producer struct {
	log     *logger.Logger
	store   Store
	pub     Publisher
	metrics *observability.Metrics
	cfg     ProducerConfig
}

func NewProducer(log *logger.Logger, store Store, pub Publisher, metrics *observability.Metrics, cfg ProducerConfig) *Producer {
	return &Producer{
		log:     log.With("component", "StreamProducer"),
		store:   store,
		pub:     pub,
		metrics: metrics,
		cfg:     cfg.withDefaults(),
	}
}

type sourceEvent struct {
	frag string
	err  error
}

func (p *Producer) Run(ctx context.Context, job Job) Result {
	ctx, span := observability.Tracer("chatstream/streaming").Start(ctx, "chat.produce")
	defer span.End()
	span.SetAttributes(attribute.String("message_id", job.MessageID.String()))

	started := time.Now()
	p.metrics.StreamStarted()

	run := &producerRun{
		p:     p,
		job:   job,
		id:    job.MessageID.String(),
		topic: realtime.Topic(job.MessageID.String()),
		log:   p.log.With("message_id", job.MessageID.String()),
	}
	res := run.loop(ctx)

	p.metrics.StreamFinished(res.Outcome, time.Since(started))
	p.metrics.AddFragments(res.Fragments)
	span.SetAttributes(attribute.String("outcome", res.Outcome), attribute.Int("fragments", res.Fragments))
	if res.Err != nil {
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

// Abort terminates a leased message without running a source, for jobs that
// could not be scheduled.
func (p *Producer) Abort(ctx context.Context, job Job, cause error) Result {
	run := &producerRun{
		p:     p,
		job:   job,
		id:    job.MessageID.String(),
		topic: realtime.Topic(job.MessageID.String()),
		log:   p.log.With("message_id", job.MessageID.String()),
	}
	return run.finish(ctx, cause)
}

type producerRun struct {
	p     *Producer
	job   Job
	id    string
	topic string
	log   *logger.Logger

	content      strings.Builder
	flushed      int
	fragments    int
	// writeFailing holds size-triggered flushes back to the ticker until a
	// content write succeeds again.
	writeFailing bool
}

func (r *producerRun) loop(ctx context.Context) Result {
	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()
	events := make(chan sourceEvent)
	go pump(pumpCtx, r.job.Source, events)

	var flushC <-chan time.Time
	if r.p.cfg.FlushInterval > 0 {
		t := time.NewTicker(r.p.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	var renewC <-chan time.Time
	if r.p.cfg.LeaseTTL > 0 {
		t := time.NewTicker(r.p.cfg.LeaseTTL / 3)
		defer t.Stop()
		renewC = t.C
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return r.finish(ctx, nil)
			}
			if ev.err != nil {
				return r.finish(ctx, ev.err)
			}
			if ev.frag == "" {
				continue
			}
			r.content.WriteString(ev.frag)
			r.fragments++
			if r.flushDue() {
				if err := r.flush(ctx); errors.Is(err, ErrLeaseLost) {
					return r.abandon(err)
				}
			}
		case <-flushC:
			if err := r.flush(ctx); errors.Is(err, ErrLeaseLost) {
				return r.abandon(err)
			}
		case <-renewC:
			if err := r.renew(ctx); errors.Is(err, ErrLeaseLost) {
				return r.abandon(err)
			}
		case <-ctx.Done():
			return r.finish(ctx, fmt.Errorf("generation cancelled: %w", ctx.Err()))
		}
	}
}

func (r *producerRun) flushDue() bool {
	if r.p.cfg.FlushInterval <= 0 {
		return true
	}
	return !r.writeFailing && r.content.Len()-r.flushed >= r.p.cfg.FlushBytes
}

// flush persists the cumulative content and then publishes it. A failed
// write leaves the bytes pending so the next flush carries them.
func (r *producerRun) flush(ctx context.Context) error {
	full := r.content.String()
	if len(full) == r.flushed {
		return nil
	}
	wctx, cancel := r.writeCtx(ctx)
	defer cancel()
	if err := r.p.store.WriteContent(wctx, r.job.MessageID, r.job.LeaseID, full); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			return err
		}
		r.writeFailing = true
		r.p.metrics.IncPersistFailure("content")
		r.log.Warn("Persist content failed; continuing", "content_len", len(full), "error", err)
		return err
	}
	r.writeFailing = false
	fragment := full[r.flushed:]
	r.flushed = len(full)
	r.p.metrics.IncFlush()
	r.publish(ctx, realtime.Delta(r.id, fragment, full))
	return nil
}

func (r *producerRun) renew(ctx context.Context) error {
	wctx, cancel := r.writeCtx(ctx)
	defer cancel()
	if err := r.p.store.RenewLease(wctx, r.job.MessageID, r.job.LeaseID, r.p.cfg.LeaseTTL); err != nil {
		if !errors.Is(err, ErrLeaseLost) {
			r.p.metrics.IncPersistFailure("lease")
			r.log.Warn("Lease renewal failed", "error", err)
		}
		return err
	}
	return nil
}

// finish records the terminal state. genErr nil means the source completed.
func (r *producerRun) finish(ctx context.Context, genErr error) Result {
	full := r.content.String()
	status, outcome, detail := realtime.StatusComplete, OutcomeComplete, ""
	if genErr != nil {
		status, outcome, detail = realtime.StatusError, OutcomeError, genErr.Error()
	}

	wctx, cancel := r.writeCtx(ctx)
	defer cancel()
	err := r.p.store.WriteTerminal(wctx, r.job.MessageID, r.job.LeaseID, status, full, detail)
	switch {
	case errors.Is(err, ErrLeaseLost):
		return r.abandon(err)
	case err != nil:
		// Viewers still need to stop waiting; the lease expires and the
		// reaper settles the stored row.
		r.p.metrics.IncPersistFailure("terminal")
		r.log.Error("Persist terminal state failed", "status", status, "error", err)
		r.publish(ctx, realtime.Failed(r.id, full, fmt.Sprintf("failed to save message: %v", err)))
		return Result{Outcome: OutcomeError, Content: full, Fragments: r.fragments, Err: err}
	}

	if genErr != nil {
		r.log.Warn("Generation failed", "content_len", len(full), "error", genErr)
		r.publish(ctx, realtime.Failed(r.id, full, detail))
		return Result{Outcome: outcome, Content: full, Fragments: r.fragments, Err: genErr}
	}
	r.log.Debug("Generation complete", "content_len", len(full), "fragments", r.fragments)
	r.publish(ctx, realtime.Complete(r.id, full))
	return Result{Outcome: outcome, Content: full, Fragments: r.fragments}
}

// abandon stops without further writes: another actor owns the message.
func (r *producerRun) abandon(err error) Result {
	r.log.Warn("Producer lease lost; abandoning stream", "error", err)
	return Result{Outcome: OutcomeAbandoned, Content: r.content.String(), Fragments: r.fragments, Err: err}
}

func (r *producerRun) publish(ctx context.Context, n realtime.Notification) {
	wctx, cancel := r.writeCtx(ctx)
	defer cancel()
	if err := r.p.pub.Publish(wctx, r.topic, n); err != nil {
		r.p.metrics.IncPublishFailure()
		r.log.Warn("Publish notification failed", "type", n.Type, "error", err)
	}
}

// writeCtx detaches from cancellation so a cancelled generation can still
// record its outcome.
func (r *producerRun) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.p.cfg.WriteTimeout)
}

func pump(ctx context.Context, src Source, out chan<- sourceEvent) {
	defer close(out)
	send := func(ev sourceEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	defer func() {
		if rec := recover(); rec != nil {
			send(sourceEvent{err: fmt.Errorf("generation source panic: %v", rec)})
		}
	}()
	if src == nil {
		return
	}
	for frag, err := range src(ctx) {
		if !send(sourceEvent{frag: frag, err: err}) || err != nil {
			return
		}
	}
}
