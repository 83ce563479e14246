package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agentdesk/agentdesk/internal/service"
)

func newSessionCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage login sessions",
	}

	cmd.AddCommand(newSessionRevokeCommand(g))
	cmd.AddCommand(newSessionPruneCommand(g))

	return cmd
}

func newSessionRevokeCommand(g *globals) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke every active session of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			repo, err := g.openRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			cfg := service.AuthServiceConfig{
				Users:    repo,
				Sessions: repo,
				Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			}
			cacheClient, err := g.openCache(ctx)
			if err != nil {
				return err
			}
			if cacheClient != nil {
				defer cacheClient.Close()
				cfg.Cache = cacheClient
			}

			revoked, err := service.NewAuthService(cfg).RevokeUserSessions(ctx, userID)
			if err != nil {
				return err
			}

			return g.render(cmd.OutOrStdout(), map[string]any{
				"user_id":       userID,
				"revoked":       revoked,
				"cache_evicted": cacheClient != nil,
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID whose sessions are revoked")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newSessionPruneCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions that expired or were revoked more than a week ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			repo, err := g.openRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			deleted, err := repo.DeleteStaleSessions(ctx)
			if err != nil {
				return fmt.Errorf("prune sessions: %w", err)
			}

			return g.render(cmd.OutOrStdout(), map[string]any{"deleted": deleted})
		},
	}
}
