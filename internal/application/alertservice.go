package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
	"github.com/ericfisherdev/tokenkeeper/internal/observability/metrics"
)

// Checkpoint defaults, expressed as offsets from exchange-local midnight.
const (
	DefaultExpiryCheckpoint   = time.Duration(0)
	DefaultFallbackCheckpoint = 7*time.Hour + 30*time.Minute
	DefaultMarketOpen         = 9*time.Hour + 30*time.Minute
	DefaultCheckTimeout       = 10 * time.Second
)

// checkpointWindow covers the checkpoint minute and the one after it, so a
// checkpoint at 00:00 is active from 00:00:00 through 00:01:59.
const checkpointWindow = 2 * time.Minute

// alertEnvironment is the environment whose credentials gate trading.
const alertEnvironment = model.EnvironmentProd

// CheckResult describes what one trigger check did.
type CheckResult struct {
	Trigger model.AlertTrigger
	Date    string
	Action  model.CheckAction
}

// triggerState owns one trigger's AlertDayState. mu is held for the whole of
// a check, so evaluation and delivery are atomic with respect to Sent.
type triggerState struct {
	mu         sync.Mutex
	trigger    model.AlertTrigger
	checkpoint time.Duration
	deadline   time.Duration
	state      model.AlertDayState
	loaded     bool
}

// AlertService runs the two daily escalation checkpoints for production
// credentials. Callers poll CheckExpiry, CheckFallback, or RunAlertChecks
// frequently; each trigger notifies at most once per exchange-local day.
type AlertService struct {
	store      driven.CredentialStore
	notifier   driven.Notifier
	stateStore driven.AlertStateStore
	loc        *time.Location
	now        Clock
	timeout    time.Duration
	marketOpen time.Duration
	catchUp    bool
	metrics    *metrics.Metrics

	expiry   *triggerState
	fallback *triggerState
}

// AlertOption configures an AlertService.
type AlertOption func(*AlertService)

// WithAlertClock overrides the clock used for window checks.
func WithAlertClock(now Clock) AlertOption {
	return func(s *AlertService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAlertStateStore persists day state through store.
func WithAlertStateStore(store driven.AlertStateStore) AlertOption {
	return func(s *AlertService) { s.stateStore = store }
}

// WithCheckTimeout bounds the remote I/O of a single trigger check.
func WithCheckTimeout(d time.Duration) AlertOption {
	return func(s *AlertService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMarketOpen sets market open as an offset from exchange-local midnight.
func WithMarketOpen(offset time.Duration) AlertOption {
	return func(s *AlertService) { s.marketOpen = offset }
}

// WithFallbackCheckpoint sets Trigger B's checkpoint as an offset from
// exchange-local midnight.
func WithFallbackCheckpoint(offset time.Duration) AlertOption {
	return func(s *AlertService) { s.fallback.checkpoint = offset }
}

// WithCatchUp controls whether a trigger whose window passed unresolved is
// still evaluated on later calls, up to its deadline.
func WithCatchUp(enabled bool) AlertOption {
	return func(s *AlertService) { s.catchUp = enabled }
}

// WithAlertMetrics records checks and deliveries into m.
func WithAlertMetrics(m *metrics.Metrics) AlertOption {
	return func(s *AlertService) { s.metrics = m }
}

// NewAlertService creates an AlertService evaluating windows in loc.
func NewAlertService(
	store driven.CredentialStore,
	notifier driven.Notifier,
	loc *time.Location,
	opts ...AlertOption,
) *AlertService {
	if loc == nil {
		loc = time.UTC
	}
	s := &AlertService{
		store:      store,
		notifier:   notifier,
		loc:        loc,
		now:        time.Now,
		timeout:    DefaultCheckTimeout,
		marketOpen: DefaultMarketOpen,
		catchUp:    true,
		expiry: &triggerState{
			trigger:    model.AlertTriggerExpiry,
			checkpoint: DefaultExpiryCheckpoint,
		},
		fallback: &triggerState{
			trigger:    model.AlertTriggerFallback,
			checkpoint: DefaultFallbackCheckpoint,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	// Trigger A hands over to Trigger B at B's checkpoint; Trigger B's last
	// chance is market open.
	s.expiry.deadline = s.fallback.checkpoint
	s.fallback.deadline = s.marketOpen

	return s
}

// CheckExpiry evaluates Trigger A, the checkpoint just after local midnight.
func (s *AlertService) CheckExpiry(ctx context.Context) (CheckResult, error) {
	return s.check(ctx, s.expiry)
}

// CheckFallback evaluates Trigger B, the final warning before market open.
func (s *AlertService) CheckFallback(ctx context.Context) (CheckResult, error) {
	return s.check(ctx, s.fallback)
}

// RunAlertChecks evaluates both triggers and reads current validity. A failure
// or panic in one step is recorded in Errors and does not skip the others.
func (s *AlertService) RunAlertChecks(ctx context.Context) model.AlertReport {
	report := model.AlertReport{
		Timestamp: s.now().UTC(),
		Errors:    []string{},
	}

	if res, err := s.safeCheck(ctx, s.expiry); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", model.AlertTriggerExpiry, err))
	} else {
		report.ExpiryAlertSent = res.Action == model.CheckActionSent
	}

	if res, err := s.safeCheck(ctx, s.fallback); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", model.AlertTriggerFallback, err))
	} else {
		report.FallbackAlertSent = res.Action == model.CheckActionSent
	}

	valid, err := s.CurrentValidity(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("validity: %v", err))
	}
	report.TokensValid = valid.Valid

	if len(report.Errors) > 0 {
		slog.Warn("alert checks completed with errors", "errors", report.Errors)
	}
	return report
}

// CurrentValidity reads the production credentials and evaluates them now.
// A store failure yields an invalid result together with the error.
func (s *AlertService) CurrentValidity(ctx context.Context) (Validity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	validity, err := s.evaluate(ctx, s.now())
	s.metrics.CredentialsValid(string(alertEnvironment), validity.Valid)
	return validity, err
}

// DayState returns a copy of trigger's current day state.
func (s *AlertService) DayState(trigger model.AlertTrigger) model.AlertDayState {
	ts := s.triggerFor(trigger)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.state
}

func (s *AlertService) triggerFor(trigger model.AlertTrigger) *triggerState {
	if trigger == model.AlertTriggerFallback {
		return s.fallback
	}
	return s.expiry
}

// safeCheck runs check and converts a panic into an error.
func (s *AlertService) safeCheck(ctx context.Context, ts *triggerState) (res CheckResult, err error) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("panic recovered in alert check", "trigger", ts.trigger, "panic", v)
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return s.check(ctx, ts)
}

func (s *AlertService) check(ctx context.Context, ts *triggerState) (CheckResult, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ioCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	local := now.In(s.loc)
	date := local.Format(model.DateLayout)

	s.rollover(ioCtx, ts, date)

	res := CheckResult{Trigger: ts.trigger, Date: date}

	if !s.active(ts, local) {
		res.Action = model.CheckActionOutsideWindow
		return res, nil
	}

	if ts.state.Sent {
		res.Action = model.CheckActionAlreadySent
		s.metrics.AlertCheck(string(ts.trigger), string(res.Action))
		return res, nil
	}

	validity, err := s.evaluate(ioCtx, now)
	if err != nil {
		// Credentials are unknown: nothing is sent and Sent stays false so the
		// next call retries.
		res.Action = model.CheckActionSkipped
		s.metrics.AlertCheck(string(ts.trigger), string(res.Action))
		return res, fmt.Errorf("load %s credentials: %w", alertEnvironment, err)
	}

	if validity.Valid {
		slog.Info("credentials valid at checkpoint, alert suppressed",
			"trigger", ts.trigger,
			"date", date,
			"reason", validity.Reason,
		)
		s.markSent(ioCtx, ts, now)
		res.Action = model.CheckActionSuppressed
		s.metrics.AlertCheck(string(ts.trigger), string(res.Action))
		return res, nil
	}

	if !s.claim(ioCtx, ts, now) {
		res.Action = model.CheckActionAlreadySent
		s.metrics.AlertCheck(string(ts.trigger), string(res.Action))
		return res, nil
	}

	message := s.message(ts.trigger, local)
	if err := s.notifier.Send(ioCtx, message); err != nil {
		slog.Error("alert delivery failed", "trigger", ts.trigger, "date", date, "error", err)
		s.release(ctx, ts)
		s.metrics.AlertDelivery(string(ts.trigger), false)
		res.Action = model.CheckActionDeliveryFailed
		s.metrics.AlertCheck(string(ts.trigger), string(res.Action))
		if !errors.Is(err, driven.ErrNotifierFailure) {
			err = errors.Join(driven.ErrNotifierFailure, err)
		}
		return res, fmt.Errorf("deliver %s alert: %w", ts.trigger, err)
	}

	slog.Warn("credential alert sent",
		"trigger", ts.trigger,
		"date", date,
		"reason", validity.Reason,
	)
	s.metrics.AlertDelivery(string(ts.trigger), true)
	s.markSent(ioCtx, ts, now)
	res.Action = model.CheckActionSent
	s.metrics.AlertCheck(string(ts.trigger), string(res.Action))
	return res, nil
}

// evaluate loads production credentials and evaluates them at now.
func (s *AlertService) evaluate(ctx context.Context, now time.Time) (Validity, error) {
	res := LoadCredentials(ctx, s.store, alertEnvironment)
	if res.Status == LoadFailed {
		s.metrics.StoreUnavailable()
		return Validity{Reason: ReasonUnavailable}, res.Err
	}
	return EvaluateValidity(res.Credentials, now, s.loc), nil
}

// active reports whether local falls inside the trigger's window, or, with
// catch-up enabled, between the window start and the trigger's deadline.
func (s *AlertService) active(ts *triggerState, local time.Time) bool {
	start := atOffset(local, ts.checkpoint, s.loc)
	end := start.Add(checkpointWindow)

	if s.catchUp {
		if deadline := atOffset(local, ts.deadline, s.loc); deadline.After(end) {
			end = deadline
		}
	}

	return !local.Before(start) && local.Before(end)
}

// rollover replaces the trigger's state when date differs from the one it
// holds. The persisted state is consulted on every change of date, so an
// alert another process already resolved for date stays resolved here.
func (s *AlertService) rollover(ctx context.Context, ts *triggerState, date string) {
	if ts.loaded && ts.state.Date == date {
		return
	}

	if ts.loaded {
		slog.Info("alert day rolled over", "trigger", ts.trigger, "from", ts.state.Date, "to", date)
	}
	ts.state = model.AlertDayState{Trigger: ts.trigger, Date: date}
	ts.loaded = true

	if s.stateStore == nil {
		return
	}
	persisted, err := s.stateStore.Get(ctx, ts.trigger)
	if err != nil {
		slog.Error("load alert day state failed", "trigger", ts.trigger, "error", err)
		return
	}
	if persisted != nil && persisted.Date == date {
		ts.state = *persisted
	}
}

// claim records today's send in the shared state store before delivery and
// reports whether this service may deliver. When another process holds the
// claim, its state is adopted. A state store error does not block the alert.
func (s *AlertService) claim(ctx context.Context, ts *triggerState, now time.Time) bool {
	if s.stateStore == nil {
		return true
	}

	state := ts.state
	state.Sent = true
	state.UpdatedAt = now.UTC()

	ok, err := s.stateStore.Claim(ctx, state)
	if err != nil {
		slog.Error("claim alert day state failed", "trigger", ts.trigger, "date", state.Date, "error", err)
		return true
	}
	if !ok {
		slog.Info("alert already sent by another process", "trigger", ts.trigger, "date", state.Date)
		ts.state = state
		return false
	}
	return true
}

// release undoes a claim after a failed delivery. It runs on a fresh deadline
// since the check's own may be what expired.
func (s *AlertService) release(ctx context.Context, ts *triggerState) {
	if s.stateStore == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.stateStore.Release(ctx, ts.trigger, ts.state.Date); err != nil {
		slog.Error("release alert day state failed", "trigger", ts.trigger, "date", ts.state.Date, "error", err)
	}
}

func (s *AlertService) markSent(ctx context.Context, ts *triggerState, now time.Time) {
	ts.state.Sent = true
	ts.state.UpdatedAt = now.UTC()

	if s.stateStore == nil {
		return
	}
	if err := s.stateStore.Save(ctx, ts.state); err != nil {
		slog.Error("persist alert day state failed", "trigger", ts.trigger, "date", ts.state.Date, "error", err)
	}
}

// message returns the operator text for trigger. The fallback wording is the
// escalated one.
func (s *AlertService) message(trigger model.AlertTrigger, local time.Time) string {
	open := atOffset(local, s.marketOpen, s.loc)
	openAt := open.Format("15:04 MST")

	if trigger == model.AlertTriggerFallback {
		return fmt.Sprintf(
			"**FINAL WARNING**: %s brokerage access tokens are still not valid and the market opens at %s (in %s). "+
				"Trading will fail until the tokens are renewed. Re-authorize now.",
			alertEnvironment, openAt, open.Sub(local).Round(time.Minute),
		)
	}
	return fmt.Sprintf(
		"Brokerage access tokens for %s expired at midnight (%s) and have not been renewed. "+
			"Re-authorize before market open at %s.",
		alertEnvironment, local.Format(model.DateLayout), openAt,
	)
}

// atOffset returns the instant offset after midnight on local's calendar date
// in loc. Hours and minutes are applied as wall-clock values so DST changes
// do not shift checkpoints.
func atOffset(local time.Time, offset time.Duration, loc *time.Location) time.Time {
	hours := int(offset / time.Hour)
	minutes := int((offset % time.Hour) / time.Minute)
	return time.Date(local.Year(), local.Month(), local.Day(), hours, minutes, 0, 0, loc)
}
