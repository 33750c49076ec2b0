package server

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/argument-tutor/internal/history"
	"github.com/sells-group/argument-tutor/internal/workbook"
)

// Sessions owns the workbook sessions hosted by the server. Every session
// shares the evaluator and gets its own history log from the backend.
type Sessions struct {
	eval    workbook.Evaluator
	backend history.Backend
	opts    []workbook.Option

	mu       sync.RWMutex
	sessions map[string]*workbook.Session
}

// NewSessions creates an empty session registry.
func NewSessions(eval workbook.Evaluator, backend history.Backend, opts ...workbook.Option) *Sessions {
	return &Sessions{
		eval:     eval,
		backend:  backend,
		opts:     opts,
		sessions: make(map[string]*workbook.Session),
	}
}

// Create starts a new session and returns its ID.
func (m *Sessions) Create() (string, *workbook.Session) {
	id := uuid.New().String()
	s := workbook.New(m.eval, m.backend.ForSession(id), m.opts...)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	zap.L().Info("session created", zap.String("session_id", id))
	return id, s
}

// Get returns the session with id.
func (m *Sessions) Get(id string) (*workbook.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes a session and its history. It reports whether the session
// existed.
func (m *Sessions) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	if err := m.backend.DeleteSession(ctx, id); err != nil {
		return true, eris.Wrapf(err, "server: delete history for session %s", id)
	}
	zap.L().Info("session deleted", zap.String("session_id", id))
	return true, nil
}

// Len returns the number of live sessions.
func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
