package streaming

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/chatstream-backend/internal/observability"
	"github.com/yungbote/chatstream-backend/internal/platform/apierr"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

// EventStream is the viewer side of one gateway session.
type EventStream interface {
	// Open commits the stream; errors returned by Serve before Open can
	// still be reported to the viewer as a normal response.
	Open() error
	Send(n realtime.Notification) error
	Heartbeat() error
}

type Authorizer interface {
	AuthorizeMessage(ctx context.Context, viewerID, messageID uuid.UUID) error
}

type GatewayConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SubscribeTimeout  time.Duration `yaml:"subscribe_timeout"`
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = 5 * time.Second
	}
	return c
}

// Gateway serves a message's stream to one viewer: the current persisted
// state first, then every change until the message is terminal.
type Gateway struct {
	log     *logger.Logger
	auth    Authorizer
	store   Store
	sub     Subscriber
	metrics *observability.Metrics
	cfg     GatewayConfig
}

func NewGateway(log *logger.Logger, auth Authorizer, store Store, sub Subscriber, metrics *observability.Metrics, cfg GatewayConfig) *Gateway {
	return &Gateway{
		log:     log.With("component", "StreamGateway"),
		auth:    auth,
		store:   store,
		sub:     sub,
		metrics: metrics,
		cfg:     cfg.withDefaults(),
	}
}

// Serve runs one session until the message is terminal, the viewer goes
// away (ctx), or the subscription fails. The subscription is established
// before the store is read, so any change persisted after the read is also
// delivered as a notification.
func (g *Gateway) Serve(ctx context.Context, viewerID, messageID uuid.UUID, out EventStream) error {
	ctx, span := observability.Tracer("chatstream/streaming").Start(ctx, "chat.gateway")
	defer span.End()
	span.SetAttributes(attribute.String("message_id", messageID.String()))

	if err := g.auth.AuthorizeMessage(ctx, viewerID, messageID); err != nil {
		return err
	}

	id := messageID.String()
	log := g.log.With("message_id", id, "viewer_id", viewerID.String())

	subCtx, cancel := context.WithTimeout(ctx, g.cfg.SubscribeTimeout)
	sub, err := g.sub.Subscribe(subCtx, realtime.Topic(id))
	cancel()
	if err != nil {
		log.Error("Subscribe failed", "error", err)
		return apierr.New(http.StatusServiceUnavailable, "stream_unavailable", fmt.Errorf("subscribe: %w", err))
	}
	defer sub.Close()

	snap, err := g.store.Read(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apierr.New(http.StatusNotFound, "message_not_found", errors.New("message not found"))
		}
		return apierr.New(http.StatusInternalServerError, "store_read_failed", err)
	}

	if err := out.Open(); err != nil {
		return err
	}
	g.metrics.GatewayOpened()
	end := "disconnect"
	defer func() {
		g.metrics.GatewayClosed(end)
		log.Debug("Stream session closed", "end", end)
	}()

	s := &session{out: out, sentLen: -1}
	initial := realtime.Initial(id, snap.Status, snap.Content, snap.Error)
	if err := s.send(initial); err != nil {
		return nil
	}
	if initial.IsTerminal() {
		end = "terminal"
		return nil
	}

	heartbeat := time.NewTicker(g.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-sub.C():
			if done, err := g.relay(s, n); err != nil || done {
				if done {
					end = "terminal"
				}
				return nil
			}
		case <-sub.Lagged():
			// Some notifications were dropped; the store has everything
			// they carried.
			g.metrics.IncGatewayResync()
			drain(sub)
			snap, err := g.store.Read(ctx, messageID)
			if err != nil {
				log.Warn("Resync read failed; closing stream", "error", err)
				end = "error"
				return nil
			}
			n := realtime.Initial(id, snap.Status, snap.Content, snap.Error)
			if err := s.send(n); err != nil {
				return nil
			}
			if n.IsTerminal() {
				end = "terminal"
				return nil
			}
		case <-sub.Done():
			// Relay whatever arrived before the transport went away; the
			// viewer reconnects for the rest.
			for {
				select {
				case n := <-sub.C():
					if done, err := g.relay(s, n); err != nil || done {
						if done {
							end = "terminal"
						}
						return nil
					}
				default:
					log.Warn("Subscription ended; closing stream")
					end = "bus"
					return nil
				}
			}
		case <-heartbeat.C:
			if err := out.Heartbeat(); err != nil {
				return nil
			}
		}
	}
}

// relay forwards n and reports whether the session is finished.
func (g *Gateway) relay(s *session, n realtime.Notification) (bool, error) {
	// Content only grows while streaming; a shorter delta was overtaken by
	// what the viewer already has.
	if n.Type == realtime.NotificationDelta && len(n.FullContent) < s.sentLen {
		g.metrics.IncGatewayStaleDrop()
		return false, nil
	}
	if err := s.send(n); err != nil {
		return false, err
	}
	return n.IsTerminal(), nil
}

type session struct {
	out     EventStream
	sentLen int
}

func (s *session) send(n realtime.Notification) error {
	if err := s.out.Send(n); err != nil {
		return err
	}
	s.sentLen = len(n.Text())
	return nil
}

func drain(sub *realtime.Subscription) {
	for {
		select {
		case <-sub.C():
		default:
			return
		}
	}
}
