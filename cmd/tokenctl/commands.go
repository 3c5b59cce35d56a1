package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
)

func newStoreCmd(open opener) *cobra.Command {
	var (
		accessToken string
		secret      string
		expiresAt   string
	)

	cmd := &cobra.Command{
		Use:   "store <environment>",
		Short: "Store a renewed credential set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := model.ParseEnvironment(args[0])
			if err != nil {
				return err
			}

			var expiry time.Time
			if expiresAt != "" {
				expiry, err = time.Parse(time.RFC3339, expiresAt)
				if err != nil {
					return fmt.Errorf("--expires-at must be RFC 3339: %w", err)
				}
			}

			return withApp(cmd, open, func(ctx context.Context, a *app) error {
				if err := a.creds.Store(ctx, env, accessToken, secret, expiry); err != nil {
					return err
				}
				status, err := a.creds.Status(ctx, env)
				if err != nil {
					return err
				}
				printStatus(cmd, status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&accessToken, "access-token", "", "OAuth access token (required)")
	cmd.Flags().StringVar(&secret, "secret", "", "OAuth access token secret (required)")
	cmd.Flags().StringVar(&expiresAt, "expires-at", "", "Expiry reported by the brokerage, RFC 3339")
	_ = cmd.MarkFlagRequired("access-token")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}

func newStatusCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "status <environment>",
		Short: "Show the validity of an environment's credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := model.ParseEnvironment(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, a *app) error {
				status, err := a.creds.Status(ctx, env)
				if err != nil {
					return err
				}
				printStatus(cmd, status)
				return nil
			})
		},
	}
}

func newListCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every environment with stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app) error {
				statuses, err := a.creds.ListStatuses(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					printStatus(cmd, s)
				}
				return nil
			})
		},
	}
}

func newDeleteCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <environment>",
		Short: "Delete an environment's credentials and all versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := model.ParseEnvironment(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, a *app) error {
				if err := a.creds.Delete(ctx, env); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tdeleted\n", env)
				return nil
			})
		},
	}
}

func newCheckCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run both alert checks once and print the report as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app) error {
				report := a.alerts.RunAlertChecks(ctx)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}
}
