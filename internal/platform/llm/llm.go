package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/chatstream-backend/internal/pkg/httpx"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrUnknownProvider = errors.New("unknown provider")

type Turn struct {
	Role    string
	Content string
}

type Request struct {
	Model   string
	System  string
	History []Turn
	Prompt  string
}

// Provider produces the text of one assistant reply as a finite sequence of
// fragments. A non-nil error ends the sequence.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

type Registry struct {
	providers   map[string]Provider
	defaultName string
}

func NewRegistry(defaultName string, providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers)), defaultName: strings.ToLower(defaultName)}
	for _, p := range providers {
		if p != nil {
			r.providers[strings.ToLower(p.Name())] = p
		}
	}
	return r
}

// Get resolves name, falling back to the default provider when name is empty.
func (r *Registry) Get(name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.defaultName
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Retrying re-opens the stream up to retries more times when it fails with a
// retryable error before yielding anything. Once a fragment has been produced
// errors are passed through, since replaying would duplicate text. With
// retries <= 0 p is returned unchanged and every failure is terminal.
func Retrying(p Provider, retries int, base time.Duration, log *logger.Logger) Provider {
	if retries <= 0 {
		return p
	}
	return &retryingProvider{inner: p, attempts: retries + 1, base: base, log: log.With("provider", p.Name())}
}

type retryingProvider struct {
	inner    Provider
	attempts int
	base     time.Duration
	log      *logger.Logger
}

func (r *retryingProvider) Name() string { return r.inner.Name() }

func (r *retryingProvider) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for attempt := 1; ; attempt++ {
			produced := false
			var failure error
			for frag, err := range r.inner.Stream(ctx, req) {
				if err != nil {
					failure = err
					break
				}
				produced = true
				if !yield(frag, nil) {
					return
				}
			}
			if failure == nil {
				return
			}
			if produced || attempt >= r.attempts || ctx.Err() != nil || !httpx.IsRetryableError(failure) {
				yield("", failure)
				return
			}
			wait := httpx.JitterSleep(r.base * time.Duration(attempt))
			r.log.Warn("Provider stream failed before output; retrying", "attempt", attempt, "wait", wait, "error", failure)
			select {
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			case <-time.After(wait):
			}
		}
	}
}
