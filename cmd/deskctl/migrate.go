package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentdesk/agentdesk/internal/repository"
	"github.com/agentdesk/agentdesk/migrations"
)

func newMigrateCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert schema migrations",
	}

	cmd.AddCommand(newMigrateUpCommand(g))
	cmd.AddCommand(newMigrateDownCommand(g))

	return cmd
}

func newMigrateUpCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			all, err := repository.LoadMigrations(migrations.FS)
			if err != nil {
				return err
			}

			repo, err := g.openRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			applied, err := repo.MigrateUp(ctx, all)
			if err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			return g.render(cmd.OutOrStdout(), map[string]any{
				"applied": applied,
				"count":   len(applied),
			})
		},
	}
}

func newMigrateDownCommand(g *globals) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			all, err := repository.LoadMigrations(migrations.FS)
			if err != nil {
				return err
			}

			repo, err := g.openRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			reverted, err := repo.MigrateDown(ctx, all, steps)
			if err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			return g.render(cmd.OutOrStdout(), map[string]any{
				"reverted": reverted,
				"count":    len(reverted),
			})
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to revert")

	return cmd
}
