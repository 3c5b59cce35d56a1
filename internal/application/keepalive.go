package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
	"github.com/ericfisherdev/tokenkeeper/internal/observability/metrics"
)

// DefaultKeepAliveInterval is the cadence at which the store is touched.
const DefaultKeepAliveInterval = 90 * time.Minute

// defaultTouchTimeout bounds a single environment's touch.
const defaultTouchTimeout = 30 * time.Second

// Clock returns the current time. Services default to time.Now.
type Clock func() time.Time

// KeepAliveService periodically touches the credential store for every
// configured environment so neither the store nor an upstream issuer treats
// the credentials as idle. At most one loop runs per service, and its
// iterations are strictly sequential.
type KeepAliveService struct {
	store        driven.CredentialStore
	environments []model.Environment
	interval     time.Duration
	touchTimeout time.Duration
	now          Clock
	metrics      *metrics.Metrics

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	lastRunAt time.Time
}

// KeepAliveOption configures a KeepAliveService.
type KeepAliveOption func(*KeepAliveService)

// WithKeepAliveClock overrides the clock used to stamp iterations.
func WithKeepAliveClock(now Clock) KeepAliveOption {
	return func(s *KeepAliveService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTouchTimeout bounds each environment's touch.
func WithTouchTimeout(d time.Duration) KeepAliveOption {
	return func(s *KeepAliveService) {
		if d > 0 {
			s.touchTimeout = d
		}
	}
}

// WithKeepAliveMetrics records touches into m.
func WithKeepAliveMetrics(m *metrics.Metrics) KeepAliveOption {
	return func(s *KeepAliveService) { s.metrics = m }
}

// NewKeepAliveService creates a KeepAliveService. A non-positive interval
// falls back to DefaultKeepAliveInterval.
func NewKeepAliveService(
	store driven.CredentialStore,
	environments []model.Environment,
	interval time.Duration,
	opts ...KeepAliveOption,
) *KeepAliveService {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	s := &KeepAliveService{
		store:        store,
		environments: environments,
		interval:     interval,
		touchTimeout: defaultTouchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the keep-alive loop and returns true once it is scheduled.
// Calling Start while a loop is running does nothing and also returns true.
// The loop exits when Stop is called or ctx is canceled.
func (s *KeepAliveService) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		slog.Debug("keep-alive already running")
		return true
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(loopCtx, done)

	slog.Info("keep-alive started",
		"interval", s.interval,
		"environments", s.environments,
	)
	return true
}

// Stop cancels the loop's sleep and blocks until the in-flight iteration, if
// any, has finished and the loop has exited. Stop is a no-op when not running.
func (s *KeepAliveService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}

	cancel()
	<-done
}

// Running reports whether a loop is active.
func (s *KeepAliveService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

// Status returns a snapshot of the loop state.
func (s *KeepAliveService) Status() model.KeepAliveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.KeepAliveStatus{
		Running:   s.runningLocked(),
		LastRunAt: s.lastRunAt,
		Interval:  s.interval,
	}
}

// runningLocked reports whether the current loop is alive. A loop that exited
// because its parent context was canceled counts as not running.
func (s *KeepAliveService) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// run sleeps for the interval, touches every environment, and repeats until
// ctx is canceled. Cancellation interrupts the sleep immediately.
func (s *KeepAliveService) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("keep-alive stopped")
			return
		case <-timer.C:
		}

		s.touchAll(ctx)
		timer.Reset(s.interval)
	}
}

// touchAll reads the current credentials of every environment. Reads never
// modify stored versions. Failures are logged and counted; they do not stop
// the loop.
func (s *KeepAliveService) touchAll(ctx context.Context) {
	start := s.now()
	var failures int

	for _, env := range s.environments {
		if ctx.Err() != nil {
			break
		}

		touchCtx, cancel := context.WithTimeout(ctx, s.touchTimeout)
		res := LoadCredentials(touchCtx, s.store, env)
		cancel()

		ok := res.Status != LoadFailed
		s.metrics.KeepAliveTouch(string(env), ok)
		if !ok {
			failures++
			s.metrics.StoreUnavailable()
			slog.Error("keep-alive touch failed", "environment", env, "error", res.Err)
			continue
		}
		slog.Debug("keep-alive touch", "environment", env, "status", res.Status.String())
	}

	finished := s.now()
	s.mu.Lock()
	s.lastRunAt = finished
	s.mu.Unlock()
	s.metrics.KeepAliveRun(float64(finished.Unix()))

	slog.Info("keep-alive cycle complete",
		"environments", len(s.environments),
		"errors", failures,
		"duration", finished.Sub(start).Round(time.Millisecond),
	)
}
