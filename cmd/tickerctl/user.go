package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/app"
	"github.com/ManuelReschke/TickerFox/internal/pkg/entitlements"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API users",
	}
	cmd.AddCommand(userCreateCmd())
	cmd.AddCommand(userRotateKeyCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user and print its API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			phone, _ := cmd.Flags().GetString("phone")
			plan, _ := cmd.Flags().GetString("plan")

			user := &models.User{
				Name:   strings.TrimSpace(name),
				Email:  strings.TrimSpace(email),
				Phone:  strings.TrimSpace(phone),
				Plan:   string(entitlements.NormalizePlan(plan)),
				Status: models.STATUS_ACTIVE,
			}
			if err := user.Validate(); err != nil {
				return err
			}
			rawKey, err := user.IssueAPIKey()
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Repos.User.Create(user); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created user %d (%s, plan %s)\n", user.ID, user.Email, user.Plan)
				fmt.Fprintf(out, "API key: %s\n", rawKey)
				return nil
			})
		},
	}

	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("email", "", "Email address for alerts")
	cmd.Flags().String("phone", "", "E.164 phone number for SMS alerts")
	cmd.Flags().String("plan", string(entitlements.PlanFree), "Plan (free, premium, premium_max)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func userRotateKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key <email>",
		Short: "Replace a user's API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				user, err := a.Repos.User.GetByEmail(args[0])
				if err != nil {
					return fmt.Errorf("find user %s: %w", args[0], err)
				}
				rawKey, err := user.IssueAPIKey()
				if err != nil {
					return err
				}
				if err := a.Repos.User.Update(user); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "API key: %s\n", rawKey)
				return nil
			})
		},
	}
}
