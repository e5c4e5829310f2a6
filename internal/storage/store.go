package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tatianab/casefile/internal/models"
)

// ErrCaseNotFound is returned for an unknown case ID.
var ErrCaseNotFound = errors.New("case not found")

// CaseSummary is one row of the case archive.
type CaseSummary struct {
	ID         string
	Case       models.CaseFile
	MaxScore   int
	Status     models.Status
	Score      int
	Turns      int
	StartedAt  time.Time
	FinishedAt *time.Time
	Ending     string
	Fallback   bool
}

// Store is the SQLite case archive. Cases are opened once, turns are
// appended in order and never rewritten, and a case is closed once.
type Store struct {
	db *sql.DB
}

// New returns a Store bound to an existing database handle.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// OpenCase records the start of a case.
func (s *Store) OpenCase(ctx context.Context, id string, c models.CaseFile, maxScore int, at time.Time) error {
	if id == "" {
		return fmt.Errorf("open case: id is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cases (id, detective, threat, location, objective, max_score, status, score, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		id, c.Detective, c.Threat, c.Location, c.Objective, maxScore, string(models.StatusPlaying), formatTime(at))
	if err != nil {
		return fmt.Errorf("open case: insert: %w", err)
	}
	return nil
}

// AppendTurn records a completed turn and moves the case score with it.
func (s *Store) AppendTurn(ctx context.Context, id string, rec models.TurnRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append turn: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var illustration any
	if rec.Illustration != "" {
		illustration = rec.Illustration
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (case_id, turn, narrative, illustration, choice_label, choice_text, points, outcome, score_before, score_after, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.Index, rec.Narrative, illustration, rec.Choice.Label, rec.Choice.Text, rec.Choice.Points,
		rec.Choice.Outcome, rec.ScoreBefore, rec.ScoreAfter, formatTime(rec.At))
	if err != nil {
		return fmt.Errorf("append turn %d: insert: %w", rec.Index, err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE cases SET score = ? WHERE id = ?`, rec.ScoreAfter, id)
	if err != nil {
		return fmt.Errorf("append turn %d: update case: %w", rec.Index, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("append turn %d: %w", rec.Index, ErrCaseNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append turn %d: commit: %w", rec.Index, err)
	}
	return nil
}

// CloseCase records the outcome and ending of a finished case. Closing a
// case twice keeps the first ending.
func (s *Store) CloseCase(ctx context.Context, id string, status models.Status, score int, e models.Ending, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cases SET status = ?, score = ?, finished_at = ?, ending = ?, ending_fallback = ?
		 WHERE id = ? AND finished_at IS NULL`,
		string(status), score, formatTime(at), e.Text, e.Fallback, id)
	if err != nil {
		return fmt.Errorf("close case: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("close case: lookup: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("close case: %w", ErrCaseNotFound)
		}
	}
	return nil
}

// ListCases returns the most recent cases first.
func (s *Store) ListCases(ctx context.Context, limit int) ([]CaseSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.detective, c.threat, c.location, c.objective, c.max_score, c.status, c.score,
		        c.started_at, c.finished_at, c.ending, c.ending_fallback,
		        (SELECT COUNT(*) FROM turns t WHERE t.case_id = c.id)
		 FROM cases c ORDER BY c.started_at DESC, c.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cases: query: %w", err)
	}
	defer rows.Close()

	var cases []CaseSummary
	for rows.Next() {
		var (
			cs         CaseSummary
			status     string
			startedAt  string
			finishedAt sql.NullString
			ending     sql.NullString
		)
		err := rows.Scan(&cs.ID, &cs.Case.Detective, &cs.Case.Threat, &cs.Case.Location, &cs.Case.Objective,
			&cs.MaxScore, &status, &cs.Score, &startedAt, &finishedAt, &ending, &cs.Fallback, &cs.Turns)
		if err != nil {
			return nil, fmt.Errorf("list cases: scan: %w", err)
		}
		cs.Status = models.Status(status)
		if cs.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("list cases: %w", err)
		}
		if finishedAt.Valid {
			t, err := parseTime(finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("list cases: %w", err)
			}
			cs.FinishedAt = &t
		}
		cs.Ending = ending.String
		cases = append(cases, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cases: rows: %w", err)
	}
	return cases, nil
}

// CaseTurns returns the recorded turns of a case in order.
func (s *Store) CaseTurns(ctx context.Context, id string) ([]models.TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn, narrative, illustration, choice_label, choice_text, points, outcome, score_before, score_after, at
		 FROM turns WHERE case_id = ? ORDER BY turn`, id)
	if err != nil {
		return nil, fmt.Errorf("case turns: query: %w", err)
	}
	defer rows.Close()

	var turns []models.TurnRecord
	for rows.Next() {
		var (
			rec          models.TurnRecord
			illustration sql.NullString
			at           string
		)
		err := rows.Scan(&rec.Index, &rec.Narrative, &illustration, &rec.Choice.Label, &rec.Choice.Text,
			&rec.Choice.Points, &rec.Choice.Outcome, &rec.ScoreBefore, &rec.ScoreAfter, &at)
		if err != nil {
			return nil, fmt.Errorf("case turns: scan: %w", err)
		}
		rec.Illustration = illustration.String
		if rec.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("case turns: %w", err)
		}
		turns = append(turns, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("case turns: rows: %w", err)
	}
	return turns, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
