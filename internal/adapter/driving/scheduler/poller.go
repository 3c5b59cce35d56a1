// Package scheduler drives the alert checks on a fixed cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
)

// AlertRunner is the use case invoked on every tick.
type AlertRunner interface {
	RunAlertChecks(ctx context.Context) model.AlertReport
}

// AlertPoller calls RunAlertChecks every interval. Runs never overlap: a tick
// that fires while the previous run is still in progress is skipped.
type AlertPoller struct {
	runner   AlertRunner
	interval time.Duration
	cron     *gocron.Scheduler

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewAlertPoller creates an AlertPoller whose schedule is evaluated in loc.
func NewAlertPoller(runner AlertRunner, interval time.Duration, loc *time.Location) *AlertPoller {
	if loc == nil {
		loc = time.UTC
	}
	return &AlertPoller{
		runner:   runner,
		interval: interval,
		cron:     gocron.NewScheduler(loc),
	}
}

// Start schedules the job and returns immediately. The first run happens
// right away. Calls made after the first are ignored.
func (p *AlertPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return nil
	}
	if p.interval <= 0 {
		return errors.New("alert poller: interval must be positive")
	}

	jobCtx, cancel := context.WithCancel(ctx)

	p.cron.SingletonModeAll()
	if _, err := p.cron.Every(p.interval).Do(p.tick, jobCtx); err != nil {
		cancel()
		return fmt.Errorf("schedule alert checks: %w", err)
	}

	p.cancel = cancel
	p.cron.StartAsync()
	slog.Info("alert poller started", "interval", p.interval)
	return nil
}

// Stop cancels the in-flight run, if any, and stops the schedule.
func (p *AlertPoller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.cron.Stop()
	slog.Info("alert poller stopped")
}

func (p *AlertPoller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	report := p.runner.RunAlertChecks(ctx)
	slog.Debug("alert checks ran",
		"expiry_alert_sent", report.ExpiryAlertSent,
		"fallback_alert_sent", report.FallbackAlertSent,
		"tokens_valid", report.TokensValid,
		"errors", len(report.Errors),
	)
}
