package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/exam-engine/internal/examapi"
	"github.com/terra-clan/exam-engine/internal/languages"
	"github.com/terra-clan/exam-engine/internal/runner"
	"github.com/terra-clan/exam-engine/internal/snapshot"
	"github.com/terra-clan/exam-engine/internal/workspace"
)

// Manager tracks live exam sessions by id. Session creation fetches the test
// from the upstream exam API; a fetch failure is a hard stop and no session
// is retained.
type Manager struct {
	examAPI   examapi.Client
	runner    runner.Client
	snapshots snapshot.Store
	catalog   *languages.Catalog

	mu       sync.RWMutex
	sessions map[string]*Controller

	// parent context for session timers, set by Start
	rootCtx context.Context
}

// NewManager creates a session manager
func NewManager(api examapi.Client, run runner.Client, snapshots snapshot.Store, catalog *languages.Catalog) *Manager {
	return &Manager{
		examAPI:   api,
		runner:    run,
		snapshots: snapshots,
		catalog:   catalog,
		sessions:  make(map[string]*Controller),
		rootCtx:   context.Background(),
	}
}

// Start binds session timers to the engine's lifecycle context so shutdown
// cancels all of them
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.rootCtx = ctx
	m.mu.Unlock()
}

// Create fetches the test, restores every coding question's workspace, starts
// the countdown, and registers the session
func (m *Manager) Create(ctx context.Context, testID int) (*Controller, error) {
	test, err := m.examAPI.FetchTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch test %d: %w", testID, err)
	}

	id := uuid.New().String()
	store := workspace.NewStore(m.snapshots, m.catalog)

	c := newController(id, test, store, m.runner, m.examAPI, m.catalog)
	if err := c.initWorkspaces(ctx); err != nil {
		store.Close()
		return nil, err
	}

	m.mu.Lock()
	rootCtx := m.rootCtx
	m.sessions[id] = c
	m.mu.Unlock()

	c.start(rootCtx)
	return c, nil
}

// Get retrieves a session by id
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// Delete tears a session down and removes it. Pending workspace writes are
// flushed by Close before the session goes away.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	c, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	c.Close()
	slog.Info("session deleted", "session_id", id)
	return nil
}

// ReapFinished removes submitted sessions whose submission is older than the
// retention window, plus sessions stuck mid-submission past their whole test
// budget, and returns their ids
func (m *Manager) ReapFinished(retention time.Duration) []string {
	cutoff := time.Now().Add(-retention)

	m.mu.Lock()
	var reaped []string
	var closing []*Controller
	for id, c := range m.sessions {
		if !c.reapableAt(cutoff) {
			continue
		}
		delete(m.sessions, id)
		reaped = append(reaped, id)
		closing = append(closing, c)
	}
	m.mu.Unlock()

	// Close outside the manager lock
	for _, c := range closing {
		c.Close()
	}
	return reaped
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Ping checks the snapshot backend the engine depends on
func (m *Manager) Ping(ctx context.Context) error {
	return m.snapshots.Ping(ctx)
}

// Close tears down all sessions
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Controller, 0, len(m.sessions))
	for id, c := range m.sessions {
		sessions = append(sessions, c)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
}
