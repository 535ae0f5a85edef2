// Package store persists refinement sessions. The ledger is SQLite in WAL
// mode; writes are append-only and iteration-atomic, so a failure partway
// through a run never corrupts previously committed iterations.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"moveforge/internal/classify"
	"moveforge/internal/refine"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id     TEXT PRIMARY KEY,
	prompt_id      TEXT NOT NULL,
	max_iterations INTEGER NOT NULL,
	status         TEXT NOT NULL,
	generated_test TEXT,
	started_at     INTEGER NOT NULL,
	completed_at   INTEGER
);

CREATE TABLE IF NOT EXISTS iterations (
	session_id      TEXT NOT NULL REFERENCES sessions(session_id),
	idx             INTEGER NOT NULL,
	source_code     TEXT NOT NULL,
	raw_diagnostics TEXT NOT NULL,
	errors_json     TEXT NOT NULL,
	error_count     INTEGER NOT NULL,
	success         INTEGER NOT NULL,
	created_at      INTEGER NOT NULL,
	PRIMARY KEY (session_id, idx)
);

CREATE TABLE IF NOT EXISTS generation_usage (
	usage_id          TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL,
	operation         TEXT NOT NULL,
	model             TEXT NOT NULL,
	prompt_tokens     INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	latency_ms        INTEGER NOT NULL,
	created_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_iterations_session ON iterations(session_id);
CREATE INDEX IF NOT EXISTS idx_usage_session ON generation_usage(session_id);
`

// Store is a SQLite-backed iteration ledger. One writer is active per
// session at a time; SQLite's record atomicity is the only concurrency
// control required.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Store, error) {
	connString := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger %s: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	s.db.Exec("PRAGMA wal_checkpoint(RESTART)")
	return s.db.Close()
}

// CreateSession records a new session in IN_PROGRESS state.
func (s *Store) CreateSession(session *refine.Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, prompt_id, max_iterations, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, session.PromptID, session.MaxIterations, string(session.Status), session.StartedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.ID, err)
	}
	return nil
}

// AppendIteration appends one iteration record. The write is a single
// transaction: it either lands whole or not at all.
func (s *Store) AppendIteration(sessionID string, iter refine.Iteration) error {
	errorsJSON, err := json.Marshal(iter.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO iterations
		(session_id, idx, source_code, raw_diagnostics, errors_json, error_count, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, iter.Index, iter.SourceCode, iter.RawDiagnostics, string(errorsJSON),
		iter.ErrorCount, boolToInt(iter.Success), iter.CreatedAt.Unix())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to append iteration %d: %w", iter.Index, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit iteration %d: %w", iter.Index, err)
	}
	return nil
}

// Finalize stamps the session's terminal status and completion time.
// Iterations are never touched.
func (s *Store) Finalize(sessionID string, status refine.Status) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET status = ?, completed_at = ? WHERE session_id = ?
	`, string(status), time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to finalize session %s: %w", sessionID, err)
	}
	return nil
}

// SaveGeneratedTest stores the companion test module for a session.
func (s *Store) SaveGeneratedTest(sessionID, testSource string) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET generated_test = ? WHERE session_id = ?
	`, testSource, sessionID)
	return err
}

// RecordUsage books one generation call's token and latency accounting.
func (s *Store) RecordUsage(usageID, sessionID, operation, model string, promptTokens, completionTokens, latencyMs int) error {
	_, err := s.db.Exec(`
		INSERT INTO generation_usage
		(usage_id, session_id, operation, model, prompt_tokens, completion_tokens, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, usageID, sessionID, operation, model, promptTokens, completionTokens, latencyMs, time.Now().Unix())
	return err
}

// UsageSummary aggregates a session's generation accounting.
type UsageSummary struct {
	Calls            int `json:"calls"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalLatencyMs   int `json:"total_latency_ms"`
}

// SessionUsage sums the recorded generation usage for one session.
func (s *Store) SessionUsage(sessionID string) (UsageSummary, error) {
	var u UsageSummary
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(latency_ms), 0)
		FROM generation_usage WHERE session_id = ?
	`, sessionID).Scan(&u.Calls, &u.PromptTokens, &u.CompletionTokens, &u.TotalLatencyMs)
	if err != nil {
		return UsageSummary{}, fmt.Errorf("failed to sum usage for %s: %w", sessionID, err)
	}
	return u, nil
}

// Load reconstructs a session and all its iterations, in index order.
func (s *Store) Load(sessionID string) (*refine.Session, error) {
	var (
		promptID      string
		maxIterations int
		status        string
		generatedTest sql.NullString
		startedAt     int64
		completedAt   sql.NullInt64
	)

	err := s.db.QueryRow(`
		SELECT prompt_id, max_iterations, status, generated_test, started_at, completed_at
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&promptID, &maxIterations, &status, &generatedTest, &startedAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	session := &refine.Session{
		ID:            sessionID,
		PromptID:      promptID,
		MaxIterations: maxIterations,
		Status:        refine.Status(status),
		GeneratedTest: generatedTest.String,
		StartedAt:     time.Unix(startedAt, 0).UTC(),
	}
	if completedAt.Valid {
		session.CompletedAt = time.Unix(completedAt.Int64, 0).UTC()
	}

	rows, err := s.db.Query(`
		SELECT idx, source_code, raw_diagnostics, errors_json, error_count, success, created_at
		FROM iterations WHERE session_id = ? ORDER BY idx ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load iterations for %s: %w", sessionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			iter       refine.Iteration
			errorsJSON string
			success    int
			createdAt  int64
		)
		if err := rows.Scan(&iter.Index, &iter.SourceCode, &iter.RawDiagnostics,
			&errorsJSON, &iter.ErrorCount, &success, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		if err := json.Unmarshal([]byte(errorsJSON), &iter.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors for iteration %d: %w", iter.Index, err)
		}
		iter.Success = success != 0
		iter.CreatedAt = time.Unix(createdAt, 0).UTC()
		session.Iterations = append(session.Iterations, iter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return session, nil
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	ID          string    `json:"id"`
	PromptID    string    `json:"prompt_id"`
	Status      string    `json:"status"`
	Iterations  int       `json:"iterations"`
	FinalErrors int       `json:"final_errors"`
	StartedAt   time.Time `json:"started_at"`
}

// ListSessions returns summaries of all sessions, newest first.
func (s *Store) ListSessions() ([]SessionSummary, error) {
	rows, err := s.db.Query(`
		SELECT s.session_id, s.prompt_id, s.status, s.started_at,
		       COUNT(i.idx), COALESCE(MAX(CASE WHEN i.idx = sub.max_idx THEN i.error_count END), 0)
		FROM sessions s
		LEFT JOIN iterations i ON i.session_id = s.session_id
		LEFT JOIN (SELECT session_id, MAX(idx) AS max_idx FROM iterations GROUP BY session_id) sub
		  ON sub.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum       SessionSummary
			startedAt int64
		)
		if err := rows.Scan(&sum.ID, &sum.PromptID, &sum.Status, &startedAt, &sum.Iterations, &sum.FinalErrors); err != nil {
			return nil, err
		}
		sum.StartedAt = time.Unix(startedAt, 0).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// CategoryTotals sums error counts per category across a session, for the
// fine-tuning export and dashboard rollups.
func (s *Store) CategoryTotals(sessionID string) (map[classify.Category]int, error) {
	session, err := s.Load(sessionID)
	if err != nil {
		return nil, err
	}
	totals := make(map[classify.Category]int)
	for _, iter := range session.Iterations {
		for cat, n := range iter.CategoryCounts() {
			totals[cat] += n
		}
	}
	return totals, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
