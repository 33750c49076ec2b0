package history

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/argument-tutor/internal/model"
)

// SQLiteStore keeps attempt history for many sessions in one SQLite
// database. The default DSN is a shared in-memory database, so history
// lives as long as the process.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS attempts (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL,
	claim      TEXT NOT NULL,
	step       TEXT NOT NULL,
	text       TEXT NOT NULL,
	label      TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	feedback   TEXT NOT NULL,
	passed     INTEGER NOT NULL,
	evidence   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_session_claim ON attempts(session_id, claim);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ForSession implements Backend.
func (s *SQLiteStore) ForSession(sessionID string) Log {
	return &SessionLog{store: s, sessionID: sessionID}
}

// DeleteSession implements Backend.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE session_id = ?`, sessionID)
	return eris.Wrapf(err, "sqlite: delete session %s", sessionID)
}

// SessionLog is a Log scoped to one session of a SQLiteStore.
type SessionLog struct {
	store     *SQLiteStore
	sessionID string
}

// Append implements Log.
func (l *SessionLog) Append(ctx context.Context, rec model.AttemptRecord) error {
	_, err := l.store.db.ExecContext(ctx,
		`INSERT INTO attempts (id, session_id, claim, step, text, label, confidence, feedback, passed, evidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, l.sessionID, string(rec.Claim), string(rec.Step), rec.Text, rec.Label,
		rec.Confidence, rec.Feedback, rec.Passed, rec.Evidence, rec.Timestamp.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert attempt %s", rec.ID)
}

// Query implements Log.
func (l *SessionLog) Query(ctx context.Context, claim model.Claim) []model.AttemptRecord {
	recs, err := l.query(ctx, claim)
	if err != nil {
		zap.L().Warn("history: query failed",
			zap.String("session_id", l.sessionID),
			zap.String("claim", string(claim)),
			zap.Error(err),
		)
		return nil
	}
	return recs
}

func (l *SessionLog) query(ctx context.Context, claim model.Claim) ([]model.AttemptRecord, error) {
	rows, err := l.store.db.QueryContext(ctx,
		`SELECT id, claim, step, text, label, confidence, feedback, passed, evidence, created_at
		 FROM attempts WHERE session_id = ? AND claim = ? ORDER BY seq DESC`,
		l.sessionID, string(claim),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query attempts")
	}
	defer rows.Close() //nolint:errcheck

	var recs []model.AttemptRecord
	for rows.Next() {
		r, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: query attempts iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAttempt(row scannable) (*model.AttemptRecord, error) {
	var r model.AttemptRecord
	var claim, step string
	err := row.Scan(&r.ID, &claim, &step, &r.Text, &r.Label, &r.Confidence,
		&r.Feedback, &r.Passed, &r.Evidence, &r.Timestamp)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan attempt")
	}
	r.Claim = model.Claim(claim)
	r.Step = model.Step(step)
	return &r, nil
}
