package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store keeps a local record of completed quiz attempts so the dashboards
// can show results and stats without a backend round trip. It never touches
// session state.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS attempt (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	quiz_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	score INTEGER NOT NULL,
	total_questions INTEGER NOT NULL,
	warnings INTEGER NOT NULL DEFAULT 0,
	submitted_at TIMESTAMP NOT NULL
);
`

// Open opens (and if needed creates) the attempt store at path. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Attempt is one completed quiz run.
type Attempt struct {
	ID             string
	SessionID      string
	QuizID         string
	Title          string
	Subject        string
	Score          int
	TotalQuestions int
	Warnings       int
	SubmittedAt    time.Time
}

// RecordAttempt inserts an attempt, assigning an id when the caller did not.
func (s *Store) RecordAttempt(ctx context.Context, a Attempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempt (id, session_id, quiz_id, title, subject, score, total_questions, warnings, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.QuizID, a.Title, a.Subject, a.Score, a.TotalQuestions, a.Warnings, a.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// RecentAttempts lists attempts newest-first, up to limit.
func (s *Store) RecentAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, quiz_id, title, subject, score, total_questions, warnings, submitted_at
		FROM attempt ORDER BY submitted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuizID, &a.Title, &a.Subject,
			&a.Score, &a.TotalQuestions, &a.Warnings, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats are the dashboard aggregates over recorded attempts.
type Stats struct {
	Completed       int
	AverageScorePct float64
	TotalWarnings   int
}

// Stats aggregates all recorded attempts. AverageScorePct is 0 when nothing
// has been recorded yet.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       AVG(CASE WHEN total_questions > 0 THEN 100.0 * score / total_questions END),
		       COALESCE(SUM(warnings), 0)
		FROM attempt`).Scan(&st.Completed, &avg, &st.TotalWarnings)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate attempts: %w", err)
	}
	if avg.Valid {
		st.AverageScorePct = avg.Float64
	}
	return st, nil
}
