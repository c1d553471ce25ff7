package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/dossier/pkg/events"
	"github.com/kadirpekel/dossier/pkg/logger"
)

// ErrTooManySessions is returned when the concurrent session cap is
// reached.
var ErrTooManySessions = errors.New("too many concurrent sessions")

// Active is the live handle of a running session: its record, its
// event bus, and the cancel function terminating it.
type Active struct {
	Record Record
	Bus    *events.Bus
	cancel context.CancelFunc
}

// Manager owns the live handles of running sessions and writes their
// lifecycle transitions to the store. Records stay queryable in the
// store after the session finishes.
type Manager struct {
	store Store
	max   int
	log   *slog.Logger

	mu     sync.Mutex
	active map[string]*Active
}

// NewManager builds a manager enforcing the given concurrent session
// cap (<=0 means unbounded).
func NewManager(store Store, maxSessions int) *Manager {
	return &Manager{
		store:  store,
		max:    maxSessions,
		log:    logger.Component("session"),
		active: make(map[string]*Active),
	}
}

// Open registers a new running session: a fresh id, a persisted
// record, an event bus, and a cancellable context derived from parent.
func (m *Manager) Open(parent context.Context, topic, reportType string) (*Active, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.max > 0 && len(m.active) >= m.max {
		return nil, nil, ErrTooManySessions
	}

	now := time.Now()
	rec := Record{
		ID:         uuid.NewString(),
		Topic:      topic,
		ReportType: reportType,
		Status:     StatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Create(parent, &rec); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	a := &Active{
		Record: rec,
		Bus:    events.NewBus(rec.ID, 0),
		cancel: cancel,
	}
	m.active[rec.ID] = a

	m.log.Info("Session opened", "session_id", rec.ID, "topic", topic)
	return a, ctx, nil
}

// Finish records the terminal state of a session and releases its
// live handle.
func (m *Manager) Finish(ctx context.Context, id, status, filePath, errMsg string) {
	m.mu.Lock()
	a, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()

	if ok {
		a.cancel()
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		m.log.Warn("Finished session has no record", "session_id", id, "error", err)
		return
	}
	rec.Status = status
	rec.FilePath = filePath
	rec.Error = errMsg
	rec.UpdatedAt = time.Now()
	if err := m.store.Update(ctx, rec); err != nil {
		m.log.Warn("Failed to persist session state", "session_id", id, "error", err)
	}
	m.log.Info("Session finished", "session_id", id, "status", status)
}

// Cancel triggers cancellation of a running session. It reports
// whether a live session with the id existed; the terminal state is
// recorded by the session's own runner via Finish.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	a, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	a.cancel()
	m.log.Info("Session cancellation requested", "session_id", id)
	return true
}

// Get returns the live handle of a running session.
func (m *Manager) Get(id string) (*Active, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.active[id]
	return a, ok
}

// Status returns the stored record of a session, running or finished.
func (m *Manager) Status(ctx context.Context, id string) (*Record, error) {
	return m.store.Get(ctx, id)
}

// List returns the most recently updated session records.
func (m *Manager) List(ctx context.Context, limit int) ([]*Record, error) {
	return m.store.List(ctx, limit)
}

// Running returns the number of live sessions.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Close cancels every live session and closes the store.
func (m *Manager) Close() error {
	m.mu.Lock()
	for _, a := range m.active {
		a.cancel()
	}
	m.active = make(map[string]*Active)
	m.mu.Unlock()
	return m.store.Close()
}
