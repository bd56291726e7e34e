package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/yungbote/chatstream-backend/internal/pkg/httpx"
)

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// Vertex AI is used when Project is set.
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
}

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Project != "" {
		clientCfg.Project = cfg.Project
		clientCfg.Location = cfg.Location
		clientCfg.Backend = genai.BackendVertexAI
		clientCfg.APIKey = ""
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model := req.Model
		if model == "" {
			model = p.model
		}
		var cfg *genai.GenerateContentConfig
		if req.System != "" {
			cfg = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
			}
		}
		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, geminiContents(req), cfg) {
			if err != nil {
				yield("", classifyGeminiError(err))
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func geminiContents(req Request) []*genai.Content {
	out := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		role := genai.Role(genai.RoleUser)
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(t.Content, role))
	}
	return append(out, genai.NewContentFromText(req.Prompt, genai.RoleUser))
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return errors.Join(err, &httpx.StatusError{Code: apiErr.Code})
	}
	return err
}
