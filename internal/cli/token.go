package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"samaquiz-service/internal/auth"
	"samaquiz-service/internal/config"
	"samaquiz-service/internal/domain"
)

// NewTokenCmd issues a bearer token signed with the configured secret. It is
// meant for local development against a running server.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		admin  bool
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("jwt secret not configured")
			}
			role := domain.RoleUser
			if admin {
				role = domain.RoleAdmin
			}
			token, err := auth.NewVerifier(cfg.Auth.JWTSecret).Sign(userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id placed in the sub claim")
	cmd.Flags().BoolVar(&admin, "admin", false, "issue an Admin token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
