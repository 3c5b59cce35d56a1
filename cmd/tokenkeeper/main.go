package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // Exchange time zones on minimal images

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	httphandler "github.com/ericfisherdev/tokenkeeper/internal/adapter/driving/http"
	"github.com/ericfisherdev/tokenkeeper/internal/adapter/driving/scheduler"
	"github.com/ericfisherdev/tokenkeeper/internal/application"
	"github.com/ericfisherdev/tokenkeeper/internal/config"
	"github.com/ericfisherdev/tokenkeeper/internal/observability/metrics"
	"github.com/ericfisherdev/tokenkeeper/internal/wiring"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := wiring.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"store_backend", cfg.StoreBackend,
		"environments", cfg.Environments,
		"exchange_tz", cfg.ExchangeLocation.String(),
		"keepalive_interval", cfg.KeepAliveInterval,
		"alert_poll_interval", cfg.AlertPollInterval,
		"alert_catch_up", cfg.AlertCatchUp,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the credential store.
	backend, err := wiring.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			slog.Error("error closing credential store", "error", closeErr)
		}
	}()

	// 4. Wire notifier and services.
	notifier, err := wiring.BuildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	m := metrics.New()

	credSvc := application.NewCredentialService(backend.Store, cfg.ExchangeLocation, time.Now, m)

	alertOpts := []application.AlertOption{
		application.WithCheckTimeout(cfg.CheckTimeout),
		application.WithMarketOpen(cfg.MarketOpen),
		application.WithFallbackCheckpoint(cfg.FallbackCheckpoint),
		application.WithCatchUp(cfg.AlertCatchUp),
		application.WithAlertMetrics(m),
	}
	if backend.AlertState != nil {
		alertOpts = append(alertOpts, application.WithAlertStateStore(backend.AlertState))
	}
	alertSvc := application.NewAlertService(backend.Store, notifier, cfg.ExchangeLocation, alertOpts...)

	keepAlive := application.NewKeepAliveService(backend.Store, cfg.Environments, cfg.KeepAliveInterval,
		application.WithKeepAliveMetrics(m),
	)

	// 5. Start keep-alive and the alert poller.
	keepAlive.Start(ctx)
	defer keepAlive.Stop()

	poller := scheduler.NewAlertPoller(alertSvc, cfg.AlertPollInterval, cfg.ExchangeLocation)
	if err := poller.Start(ctx); err != nil {
		return err
	}
	defer poller.Stop()

	// 6. Serve the HTTP API.
	apiHandler := httphandler.NewHandler(credSvc, alertSvc, keepAlive, backend.Pinger, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, m, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("tokenkeeper started")

	// 7. Serve until a shutdown signal or a listener failure. Deferred Stop
	// calls then end the poller and keep-alive before the store is closed.
	if err := serve(ctx, srv, stop); err != nil {
		return err
	}

	slog.Info("shutdown complete")
	return nil
}

// serve runs srv until ctx is done or the listener fails, then shuts it down
// gracefully. A listener failure is returned after shutdown and cancels the
// rest of the process through stop.
func serve(ctx context.Context, srv *http.Server, stop context.CancelFunc) error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case listenErr = <-serveErr:
		slog.Error("http server error", "error", listenErr)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	if listenErr != nil {
		return fmt.Errorf("http server: %w", listenErr)
	}
	return nil
}
