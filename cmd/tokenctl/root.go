package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/tokenkeeper/internal/application"
	"github.com/ericfisherdev/tokenkeeper/internal/config"
	"github.com/ericfisherdev/tokenkeeper/internal/wiring"
)

// app holds the services a subcommand needs for a single invocation.
type app struct {
	creds  *application.CredentialService
	alerts *application.AlertService
	close  func() error
}

// opener builds an app from the process environment.
type opener func(ctx context.Context) (*app, error)

// openApp opens the same backend and notifier the daemon would, so a
// credential written here is what the daemon reads next.
func openApp(ctx context.Context) (*app, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := wiring.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	backend, err := wiring.OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	notifier, err := wiring.BuildNotifier(cfg, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	opts := []application.AlertOption{
		application.WithCheckTimeout(cfg.CheckTimeout),
		application.WithMarketOpen(cfg.MarketOpen),
		application.WithFallbackCheckpoint(cfg.FallbackCheckpoint),
		application.WithCatchUp(cfg.AlertCatchUp),
	}
	if backend.AlertState != nil {
		opts = append(opts, application.WithAlertStateStore(backend.AlertState))
	}

	return &app{
		creds:  application.NewCredentialService(backend.Store, cfg.ExchangeLocation, time.Now, nil),
		alerts: application.NewAlertService(backend.Store, notifier, cfg.ExchangeLocation, opts...),
		close:  backend.Close,
	}, nil
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "tokenctl",
		Short: "Operate the brokerage credential store",
		Long: `tokenctl reads and writes the credential store used by tokenkeeper.
It is configured with the same TOKENKEEPER_* variables as the daemon.

Examples:
  tokenctl store prod --access-token abc --secret xyz --expires-at 2025-01-06T23:59:59-05:00
  tokenctl status prod
  tokenctl list
  tokenctl check`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newStoreCmd(open),
		newStatusCmd(open),
		newListCmd(open),
		newDeleteCmd(open),
		newCheckCmd(open),
	)
	return root
}

// withApp opens the app, runs fn, and closes the backend afterwards.
func withApp(cmd *cobra.Command, open opener, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if a.close == nil {
			return
		}
		if err := a.close(); err != nil {
			slog.Error("error closing credential store", "error", err)
		}
	}()

	return fn(ctx, a)
}

func printStatus(cmd *cobra.Command, s application.CredentialStatus) {
	out := cmd.OutOrStdout()
	if !s.Present {
		fmt.Fprintf(out, "%s\tabsent\n", s.Environment)
		return
	}
	state := "invalid"
	if s.Valid {
		state = "valid"
	}
	expires := s.ExpiresAt
	if expires == "" {
		expires = "-"
	}
	fmt.Fprintf(out, "%s\t%s\t%s\tstored=%s\texpires=%s\tversions=%d\n",
		s.Environment, state, s.Reason, s.StoredAt, expires, s.Versions)
}
