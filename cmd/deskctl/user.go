package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agentdesk/agentdesk/internal/service"
)

func newUserCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	cmd.AddCommand(newUserCreateCommand(g))

	return cmd
}

func newUserCreateCommand(g *globals) *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user with an email and password account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			repo, err := g.openRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			svc := service.NewAuthService(service.AuthServiceConfig{
				Users:    repo,
				Sessions: repo,
				Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			})

			user, err := svc.CreateUser(ctx, service.RegisterInput{
				Email:    email,
				Name:     name,
				Password: password,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			return g.render(cmd.OutOrStdout(), map[string]any{
				"user_id": user.ID,
				"email":   user.Email,
				"name":    user.Name,
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&password, "password", "", "Initial password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
