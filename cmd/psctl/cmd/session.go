package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pilab-dev/partner-sso/domain"
	"github.com/pilab-dev/partner-sso/mongodb"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Short:   "Inspect and revoke minted sessions",
	Aliases: []string{"sessions"},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <token-id>",
	Short: "Show the session recorded for a token id (jti)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, closeDB, err := openSessions(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		s, err := sessions.GetSessionByTokenID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printYAML(cmd.OutOrStdout(), map[string]any{
			"id":         s.ID,
			"user_id":    s.UserID,
			"token_id":   s.TokenID,
			"source":     string(s.Source),
			"created_at": s.CreatedAt.Format(time.RFC3339),
			"expires_at": s.ExpiresAt.Format(time.RFC3339),
			"revoked":    s.IsRevoked,
		})
	},
}

var sessionRevokeCmd = &cobra.Command{
	Use:   "revoke <token-id>",
	Short: "Revoke the session of a token id (jti)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, closeDB, err := openSessions(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		s, err := sessions.GetSessionByTokenID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := sessions.RevokeSession(cmd.Context(), s.ID); err != nil {
			return err
		}
		appLogger.Info(cmd.Context(), "session revoked", map[string]any{"user_id": s.UserID, "token_id": s.TokenID})
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Session %s of user %s revoked.\n", s.TokenID, s.UserID)
		return err
	},
}

func openSessions(ctx context.Context) (domain.SessionRepository, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := mongodb.InitMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database); err != nil {
		return nil, nil, err
	}
	closeDB := func() { mongodb.CloseMongoDB(context.Background()) }

	repos, err := mongodb.NewRepositories(ctx, mongodb.GetDB())
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return repos.SessionRepository(ctx), closeDB, nil
}

func init() {
	sessionCmd.AddCommand(sessionGetCmd, sessionRevokeCmd)
}
