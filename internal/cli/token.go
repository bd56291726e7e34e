package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/chatstream-backend/internal/platform/envutil"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/services"
)

var tokenOpts struct {
	secret string
	issuer string
	user   string
	ttl    time.Duration
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenOpts.secret, "secret", envutil.String("JWT_SECRET_KEY", ""), "HS256 signing secret shared with the server")
	tokenCmd.Flags().StringVar(&tokenOpts.issuer, "issuer", envutil.String("JWT_ISSUER", ""), "token issuer")
	tokenCmd.Flags().StringVar(&tokenOpts.user, "user", "", "user id (random when empty)")
	tokenCmd.Flags().DurationVar(&tokenOpts.ttl, "ttl", 24*time.Hour, "token lifetime")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := uuid.New()
		if tokenOpts.user != "" {
			id, err := uuid.Parse(tokenOpts.user)
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			userID = id
		}
		auth := services.NewAuthService(logger.Nop(), tokenOpts.secret, tokenOpts.issuer)
		tok, err := auth.IssueToken(userID, tokenOpts.ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}
