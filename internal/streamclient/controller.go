package streamclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/yungbote/chatstream-backend/internal/pkg/httpx"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime"
)

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateComplete     State = "complete"
	StateError        State = "error"
	StateFailed       State = "failed"
)

const (
	evConnect        = "connect"
	evOpen           = "open"
	evTransportError = "transport_error"
	evTimeout        = "timeout"
	evComplete       = "complete"
	evServerError    = "server_error"
	evGiveUp         = "give_up"
	evRetry          = "retry"
)

// ErrGaveUp is returned by Run when the controller stopped retrying. The
// message itself may still be streaming on the server.
var ErrGaveUp = errors.New("stream controller gave up")

type Config struct {
	Backoff Backoff `yaml:"backoff"`
	// LivenessTimeout is how long a connection may stay silent, heartbeats
	// included, before it is treated as dead.
	LivenessTimeout time.Duration `yaml:"liveness_timeout"`
}

func (c Config) withDefaults() Config {
	c.Backoff = c.Backoff.withDefaults()
	if c.LivenessTimeout <= 0 {
		c.LivenessTimeout = 45 * time.Second
	}
	return c
}

func newMachine() *fsm.FSM {
	live := []string{string(StateConnecting), string(StateConnected)}
	return fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: evConnect, Src: []string{string(StateIdle), string(StateReconnecting)}, Dst: string(StateConnecting)},
			{Name: evOpen, Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
			{Name: evTransportError, Src: live, Dst: string(StateReconnecting)},
			{Name: evTimeout, Src: live, Dst: string(StateReconnecting)},
			{Name: evComplete, Src: live, Dst: string(StateComplete)},
			{Name: evServerError, Src: live, Dst: string(StateError)},
			{Name: evGiveUp, Src: append(live, string(StateReconnecting)), Dst: string(StateFailed)},
			{Name: evRetry, Src: []string{string(StateFailed)}, Dst: string(StateIdle)},
		},
		fsm.Callbacks{},
	)
}

// Controller keeps one message's View converged with the server across
// dropped connections. It holds at most one connection at a time.
type Controller struct {
	log       *logger.Logger
	messageID string
	transport Transport
	cfg       Config
	machine   *fsm.FSM
	wake      chan struct{}

	mu       sync.Mutex
	view     View
	attempt  int
	hint     time.Duration
	visible  bool
	onUpdate func(View)
}

func NewController(log *logger.Logger, transport Transport, messageID string, cfg Config) *Controller {
	c := &Controller{
		log:       log.With("component", "StreamController", "message_id", messageID),
		messageID: messageID,
		transport: transport,
		cfg:       cfg.withDefaults(),
		machine:   newMachine(),
		wake:      make(chan struct{}, 1),
		visible:   true,
	}
	c.view = View{MessageID: messageID, State: StateIdle}
	return c
}

// OnUpdate registers fn to receive every new View. fn runs on the
// controller goroutine and must not block.
func (c *Controller) OnUpdate(fn func(View)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *Controller) State() State { return State(c.machine.Current()) }

// SetVisible gates connection attempts. A hidden viewer never starts a new
// attempt; becoming visible again skips any pending backoff.
func (c *Controller) SetVisible(visible bool) {
	c.mu.Lock()
	was := c.visible
	c.visible = visible
	c.mu.Unlock()
	if visible && !was {
		c.signal()
	}
}

// Reconnect resets the retry budget and skips any pending backoff. After
// Run returned ErrGaveUp, call Run again to resume.
func (c *Controller) Reconnect() {
	c.mu.Lock()
	c.attempt = 0
	c.view.Attempt = 0
	c.view.Failure = ""
	c.mu.Unlock()
	if c.State() == StateFailed {
		c.fire(evRetry)
	}
	c.signal()
}

// Run drives the controller until the message is terminal, the controller
// gives up, or ctx ends.
func (c *Controller) Run(ctx context.Context) (View, error) {
	for {
		if err := ctx.Err(); err != nil {
			return c.View(), err
		}
		switch c.State() {
		case StateComplete, StateError:
			return c.View(), nil
		case StateFailed:
			v := c.View()
			return v, fmt.Errorf("%w: %s", ErrGaveUp, v.Failure)
		case StateIdle:
			if !c.waitVisible(ctx) {
				continue
			}
			c.connect(ctx)
		case StateReconnecting:
			n, ok := c.nextAttempt()
			if !ok {
				c.giveUp(fmt.Sprintf("no connection after %d retries", c.cfg.Backoff.MaxRetries))
				continue
			}
			delay := c.delay(n)
			c.log.Debug("Reconnecting", "attempt", n+1, "delay", delay)
			if !c.sleep(ctx, delay) || !c.waitVisible(ctx) {
				continue
			}
			c.connect(ctx)
		default:
			// Connecting or connected only while connect runs; reaching here
			// means ctx ended mid-attempt.
			if ctx.Err() == nil {
				c.fire(evTransportError)
			}
		}
	}
}

func (c *Controller) nextAttempt() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt >= c.cfg.Backoff.MaxRetries {
		return c.attempt, false
	}
	n := c.attempt
	c.attempt++
	c.view.Attempt = c.attempt
	return n, true
}

// delay is the backoff for retry n, stretched to honour a Retry-After hint
// from the last rejection.
func (c *Controller) delay(n int) time.Duration {
	d := c.cfg.Backoff.Delay(n)
	c.mu.Lock()
	hint := c.hint
	c.hint = 0
	c.mu.Unlock()
	if hint > d {
		d = min(hint, c.cfg.Backoff.Max)
	}
	return d
}

func (c *Controller) connect(ctx context.Context) {
	c.fire(evConnect)

	stream, err := c.transport.Open(ctx, c.messageID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if httpx.IsPermanent(err) {
			c.giveUp(err.Error())
			return
		}
		c.mu.Lock()
		c.hint = httpx.RetryAfter(err)
		c.mu.Unlock()
		c.log.Debug("Stream open failed", "error", err)
		c.fire(evTransportError)
		return
	}
	defer stream.Close()

	liveness := time.NewTimer(c.cfg.LivenessTimeout)
	defer liveness.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-liveness.C:
			c.log.Debug("Stream silent past liveness timeout")
			c.fire(evTimeout)
			return
		case f, ok := <-stream.Frames():
			if !ok {
				if ctx.Err() != nil {
					return
				}
				c.log.Debug("Stream closed before terminal notification", "error", stream.Err())
				c.fire(evTransportError)
				return
			}
			if !liveness.Stop() {
				select {
				case <-liveness.C:
				default:
				}
			}
			liveness.Reset(c.cfg.LivenessTimeout)
			if f.Heartbeat {
				continue
			}
			n, err := realtime.Decode([]byte(f.Data))
			if err != nil {
				c.log.Warn("Ignoring undecodable frame", "event", f.Event, "error", err)
				continue
			}
			if c.State() == StateConnecting {
				c.fire(evOpen)
			}
			if n.Type == realtime.NotificationInitial {
				c.resetAttempts()
			}
			v := c.apply(n)
			if v.Terminal() {
				if v.Status == realtime.StatusComplete {
					c.fire(evComplete)
				} else {
					c.fire(evServerError)
				}
				return
			}
		}
	}
}

func (c *Controller) resetAttempts() {
	c.mu.Lock()
	c.attempt = 0
	c.view.Attempt = 0
	c.mu.Unlock()
}

func (c *Controller) apply(n realtime.Notification) View {
	c.mu.Lock()
	next := Apply(c.view, n)
	changed := next != c.view
	c.view = next
	fn := c.onUpdate
	c.mu.Unlock()
	if changed && fn != nil {
		fn(next)
	}
	return next
}

func (c *Controller) giveUp(reason string) {
	c.mu.Lock()
	c.view.Failure = reason
	c.mu.Unlock()
	c.log.Warn("Stream controller giving up", "reason", reason)
	c.fire(evGiveUp)
}

func (c *Controller) fire(event string) {
	if err := c.machine.Event(context.Background(), event); err != nil {
		c.log.Debug("Ignored state event", "event", event, "state", c.machine.Current(), "error", err)
		return
	}
	c.mu.Lock()
	c.view.State = State(c.machine.Current())
	v := c.view
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// sleep waits d or until woken. It reports false when ctx ended.
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	case <-c.wake:
		return true
	}
}

func (c *Controller) waitVisible(ctx context.Context) bool {
	for {
		c.mu.Lock()
		visible := c.visible
		c.mu.Unlock()
		if visible {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-c.wake:
		}
	}
}
