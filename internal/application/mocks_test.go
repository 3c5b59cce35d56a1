package application_test

import (
	"context"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockCredentialStore struct {
	mu        sync.Mutex
	versions  map[model.Environment][]model.CredentialSet
	loadErr   error
	loadCalls int
	loadFunc  func(ctx context.Context, env model.Environment) (*model.CredentialSet, error)
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{versions: map[model.Environment][]model.CredentialSet{}}
}

// put appends a version exactly as given, bypassing Stamp, so tests control
// stored_at and expires_at directly.
func (m *mockCredentialStore) put(env model.Environment, creds model.CredentialSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	creds.Environment = env
	m.versions[env] = append(m.versions[env], creds)
}

func (m *mockCredentialStore) setLoadErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *mockCredentialStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

func (m *mockCredentialStore) Store(_ context.Context, env model.Environment, creds model.CredentialSet) error {
	stamped, err := creds.Stamp(env, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %w", driven.ErrInvalidCredentials, err)
	}
	m.put(env, stamped)
	return nil
}

func (m *mockCredentialStore) Load(ctx context.Context, env model.Environment) (*model.CredentialSet, error) {
	m.mu.Lock()
	m.loadCalls++
	loadFunc := m.loadFunc
	loadErr := m.loadErr
	versions := m.versions[env]
	m.mu.Unlock()

	if loadFunc != nil {
		return loadFunc(ctx, env)
	}
	if loadErr != nil {
		return nil, loadErr
	}
	if len(versions) == 0 {
		return nil, nil
	}
	latest := versions[len(versions)-1]
	return &latest, nil
}

func (m *mockCredentialStore) Delete(_ context.Context, env model.Environment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.versions, env)
	return nil
}

func (m *mockCredentialStore) List(_ context.Context) ([]model.Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var envs []model.Environment
	for _, env := range model.Environments {
		if _, ok := m.versions[env]; ok {
			envs = append(envs, env)
		}
	}
	return envs, nil
}

func (m *mockCredentialStore) Versions(_ context.Context, env model.Environment) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.versions[env]), nil
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
	errs     []error // consumed in order; nil entries mean delivered
	panicMsg string
}

func (m *mockNotifier) Send(_ context.Context, message string) error {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return err
		}
	}
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockNotifier) delivered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

type mockAlertStateStore struct {
	mu       sync.Mutex
	states   map[model.AlertTrigger]model.AlertDayState
	saves    int
	claims   int
	releases int
}

func newMockAlertStateStore() *mockAlertStateStore {
	return &mockAlertStateStore{states: map[model.AlertTrigger]model.AlertDayState{}}
}

func (m *mockAlertStateStore) Get(_ context.Context, trigger model.AlertTrigger) (*model.AlertDayState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[trigger]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (m *mockAlertStateStore) Save(_ context.Context, state model.AlertDayState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Trigger] = state
	m.saves++
	return nil
}

func (m *mockAlertStateStore) Claim(_ context.Context, state model.AlertDayState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.states[state.Trigger]; ok && cur.Date == state.Date && cur.Sent {
		return false, nil
	}
	state.Sent = true
	m.states[state.Trigger] = state
	m.claims++
	return true, nil
}

func (m *mockAlertStateStore) Release(_ context.Context, trigger model.AlertTrigger, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.states[trigger]; ok && cur.Date == date {
		cur.Sent = false
		m.states[trigger] = cur
		m.releases++
	}
	return nil
}

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// --- Helpers ---

func newYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}

// et builds an instant from an America/New_York wall-clock time.
func et(year int, month time.Month, day, hour, minute, sec int) time.Time {
	return time.Date(year, month, day, hour, minute, sec, 0, newYork())
}
