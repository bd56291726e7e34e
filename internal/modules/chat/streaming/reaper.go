package streaming

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/yungbote/chatstream-backend/internal/data/repos"
	"github.com/yungbote/chatstream-backend/internal/observability"
	"github.com/yungbote/chatstream-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

const (
	DefaultReaperCron = "* * * * *"
	reapBatch         = 100
	reapDetail        = "generation interrupted"
)

// Reaper terminates streaming messages whose producer stopped renewing its
// lease, so viewers of a crashed generation still reach a terminal state.
type Reaper struct {
	log      *logger.Logger
	messages repos.ChatMessageRepo
	pub      Publisher
	metrics  *observability.Metrics
	cron     string
	now      func() time.Time
}

func NewReaper(log *logger.Logger, messages repos.ChatMessageRepo, pub Publisher, metrics *observability.Metrics, cron string) (*Reaper, error) {
	if cron == "" {
		cron = DefaultReaperCron
	}
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid reaper cron expression: %s", cron)
	}
	return &Reaper{
		log:      log.With("component", "LeaseReaper"),
		messages: messages,
		pub:      pub,
		metrics:  metrics,
		cron:     cron,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run sweeps on every cron tick until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	r.log.Info("Lease reaper started", "cron", r.cron)
	for {
		next, err := gronx.NextTickAfter(r.cron, r.now(), false)
		wait := time.Until(next)
		if err != nil {
			r.log.Error("Reaper next tick failed", "cron", r.cron, "error", err)
			wait = 30 * time.Second
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			r.log.Info("Lease reaper stopping")
			return
		case <-t.C:
		}
		if err == nil {
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Warn("Lease sweep failed", "error", err)
			}
		}
	}
}

// Sweep fails every expired streaming message and announces it. It returns
// how many messages it terminated.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := r.messages.ListExpiredStreaming(dbc, now, reapBatch)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, m := range rows {
		ok, err := r.messages.FailExpired(dbc, m.ID, now, reapDetail)
		if err != nil {
			r.log.Warn("Fail expired message", "message_id", m.ID.String(), "error", err)
			continue
		}
		if !ok {
			// Renewed or finished since the listing.
			continue
		}
		reaped++
		id := m.ID.String()
		if err := r.pub.Publish(ctx, realtime.Topic(id), realtime.Failed(id, m.Content, reapDetail)); err != nil {
			r.metrics.IncPublishFailure()
			r.log.Warn("Publish reaped message failed", "message_id", id, "error", err)
		}
	}
	if reaped > 0 {
		r.metrics.AddLeasesReaped(reaped)
		r.log.Info("Reaped expired streams", "count", reaped)
	}
	return reaped, nil
}
