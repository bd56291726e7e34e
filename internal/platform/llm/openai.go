package llm

import (
	"context"
	"errors"
	"iter"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/yungbote/chatstream-backend/internal/pkg/httpx"
)

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// MaxRetries is handed to the SDK for the initial request.
	MaxRetries int `yaml:"max_retries"`
}

// OpenAIProvider streams chat completions. BaseURL allows any
// OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: model}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model := req.Model
		if model == "" {
			model = p.model
		}
		stream := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model:    model,
			Messages: openAIMessages(req),
		})
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", classifyOpenAIError(err))
		}
	}
}

func openAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, t := range req.History {
		switch t.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	return append(msgs, openai.UserMessage(req.Prompt))
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return errors.Join(err, &httpx.StatusError{Code: apiErr.StatusCode})
	}
	return err
}
