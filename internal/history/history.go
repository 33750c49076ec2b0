// Package history keeps the append-only log of evaluation attempts for a
// workbook session, partitioned by claim.
package history

import (
	"context"
	"slices"
	"sync"

	"github.com/sells-group/argument-tutor/internal/model"
)

// Log records attempts for one session.
type Log interface {
	// Append stores rec. Records are never modified afterwards.
	Append(ctx context.Context, rec model.AttemptRecord) error
	// Query returns the records for claim, newest first. It never fails;
	// an unreadable backend yields an empty result.
	Query(ctx context.Context, claim model.Claim) []model.AttemptRecord
}

// MemoryLog is a process-lifetime Log. It is safe for concurrent use.
type MemoryLog struct {
	mu      sync.RWMutex
	byClaim map[model.Claim][]model.AttemptRecord
}

// NewMemoryLog creates an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{byClaim: make(map[model.Claim][]model.AttemptRecord)}
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, rec model.AttemptRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byClaim[rec.Claim] = append(l.byClaim[rec.Claim], rec)
	return nil
}

// Query implements Log.
func (l *MemoryLog) Query(_ context.Context, claim model.Claim) []model.AttemptRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	recs := l.byClaim[claim]
	out := make([]model.AttemptRecord, len(recs))
	copy(out, recs)
	slices.Reverse(out)
	return out
}

// All returns every record in log across claims, newest first within each
// claim and claims in declaration order.
func All(ctx context.Context, log Log) []model.AttemptRecord {
	var out []model.AttemptRecord
	for _, c := range model.Claims {
		out = append(out, log.Query(ctx, c)...)
	}
	return out
}

// Backend hands out the Log of each session.
type Backend interface {
	ForSession(sessionID string) Log
	// DeleteSession drops every record of a session.
	DeleteSession(ctx context.Context, sessionID string) error
}

// MemoryBackend keeps one MemoryLog per session.
type MemoryBackend struct {
	mu   sync.Mutex
	logs map[string]*MemoryLog
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{logs: make(map[string]*MemoryLog)}
}

// ForSession implements Backend.
func (b *MemoryBackend) ForSession(sessionID string) Log {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.logs[sessionID]
	if !ok {
		l = NewMemoryLog()
		b.logs[sessionID] = l
	}
	return l
}

// DeleteSession implements Backend.
func (b *MemoryBackend) DeleteSession(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.logs, sessionID)
	return nil
}
