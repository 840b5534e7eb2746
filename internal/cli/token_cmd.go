package cli

import (
	"fmt"
	"time"

	"github.com/soyeahso/voicesquad/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage console session tokens",
	}

	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a session token signed with auth.jwtSecret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwtSecret is not set; the gateway could not verify this token")
			}
			if userID == "" {
				userID = email
			}
			if ttl <= 0 {
				ttl = cfg.Auth.SessionTTL()
			}

			s, err := auth.NewVerifier([]byte(cfg.Auth.JWTSecret)).Issue(auth.User{ID: userID, Email: email}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", s.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "user email (required)")
	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to the email)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.sessionTtlMinutes)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
