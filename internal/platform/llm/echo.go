package llm

import (
	"context"
	"iter"
	"strings"
	"time"
)

// EchoProvider streams the prompt back word by word. It needs no credentials
// and is meant for local development and load testing of the stream path.
type EchoProvider struct {
	Delay time.Duration
}

func (p *EchoProvider) Name() string { return "echo" }

func (p *EchoProvider) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		words := strings.Fields(req.Prompt)
		for i, w := range words {
			if i > 0 {
				w = " " + w
			}
			if p.Delay > 0 {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				case <-time.After(p.Delay):
				}
			} else if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(w, nil) {
				return
			}
		}
	}
}
