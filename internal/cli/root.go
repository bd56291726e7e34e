package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/chatstream-backend/internal/platform/envutil"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

type globalOptions struct {
	server   string
	token    string
	verbose  bool
	liveness time.Duration
}

var opts globalOptions

var rootCmd = &cobra.Command{
	Use:   "chatstream",
	Short: "Send chat messages and watch their responses stream",
	Long: `chatstream talks to a chatstream server. It creates messages and
follows their generation, reconnecting and resuming when the connection drops.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envutil.String("CHATSTREAM_SERVER", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", envutil.String("CHATSTREAM_TOKEN", ""), "bearer token")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log connection state changes")
	rootCmd.PersistentFlags().DurationVar(&opts.liveness, "liveness", 45*time.Second, "treat a silent stream as dead after this long")
}

func cliLogger() *logger.Logger {
	if !opts.verbose {
		return logger.Nop()
	}
	log, err := logger.New("development")
	if err != nil {
		return logger.Nop()
	}
	return log
}

// apiClient has no overall timeout because stream responses stay open.
var apiClient = &http.Client{}
