package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/chatstream-backend/internal/streamclient"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [message-id]",
	Short: "Attach to a message and print it as it streams",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watch(cmd.Context(), args[0])
	},
}

func watch(ctx context.Context, messageID string) error {
	transport := &streamclient.HTTPTransport{BaseURL: opts.server, Token: opts.token, Client: apiClient}
	ctrl := streamclient.NewController(cliLogger(), transport, messageID, streamclient.Config{
		Backoff:         streamclient.DefaultBackoff(),
		LivenessTimeout: opts.liveness,
	})
	r := &renderer{out: os.Stdout, status: os.Stderr}
	ctrl.OnUpdate(r.Update)

	start := time.Now()
	v, err := ctrl.Run(ctx)
	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stderr, summary(v, time.Since(start)))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if v.State == streamclient.StateError {
		return fmt.Errorf("generation failed: %s", v.Error)
	}
	return nil
}
