package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type sendOptions struct {
	prompt   string
	thread   string
	provider string
	model    string
	detach   bool
}

var sendOpts sendOptions

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendOpts.prompt, "prompt", "p", "", "message text (required)")
	sendCmd.Flags().StringVar(&sendOpts.thread, "thread", "", "existing thread id; a new thread is created when empty")
	sendCmd.Flags().StringVar(&sendOpts.provider, "provider", "", "generation provider (openai, gemini, echo)")
	sendCmd.Flags().StringVar(&sendOpts.model, "model", "", "model name")
	sendCmd.Flags().BoolVar(&sendOpts.detach, "detach", false, "print the ids and exit without watching")
	_ = sendCmd.MarkFlagRequired("prompt")
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Create a message and watch the response",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := sendMessage(cmd.Context(), sendOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "thread %s  message %s\n", res.ThreadID, res.MessageID)
		if sendOpts.detach {
			return nil
		}
		return watch(cmd.Context(), res.MessageID.String())
	},
}

type sendRequest struct {
	ThreadID *uuid.UUID `json:"threadId,omitempty"`
	Prompt   string     `json:"prompt"`
	Model    string     `json:"model,omitempty"`
	Provider string     `json:"provider,omitempty"`
}

type sendResponse struct {
	ThreadID  uuid.UUID `json:"threadId"`
	MessageID uuid.UUID `json:"messageId"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func sendMessage(ctx context.Context, o sendOptions) (*sendResponse, error) {
	body := sendRequest{Prompt: o.prompt, Model: o.model, Provider: o.provider}
	if t := strings.TrimSpace(o.thread); t != "" {
		id, err := uuid.Parse(t)
		if err != nil {
			return nil, fmt.Errorf("invalid thread id: %w", err)
		}
		body.ThreadID = &id
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(opts.server, "/")+"/api/chat/messages", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	resp, err := apiClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusAccepted {
		var env errorEnvelope
		if json.Unmarshal(payload, &env) == nil && env.Error.Message != "" {
			return nil, fmt.Errorf("send failed (%d %s): %s", resp.StatusCode, env.Error.Code, env.Error.Message)
		}
		return nil, fmt.Errorf("send failed: %s", resp.Status)
	}
	var out sendResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode send response: %w", err)
	}
	if out.MessageID == uuid.Nil {
		return nil, errors.New("send response carried no message id")
	}
	return &out, nil
}
