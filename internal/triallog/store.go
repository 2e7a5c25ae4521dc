package triallog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/danielpatrickdp/reach-controller/internal/machine"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS trials (
	trial_id      TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	ended_at      TEXT,
	outcome       TEXT,
	n_overshoots  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS transitions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	trial_id      TEXT NOT NULL,
	type          TEXT NOT NULL,
	prev          TEXT,
	cur           TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (trial_id) REFERENCES trials(trial_id)
);
`
// #endregion schema

// #region store-struct

// Store persists the trial log in SQLite. It implements machine.Sink for the
// live controller and serves the inspect/replay queries.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region sink

// BeginTrial inserts an open trial row.
func (s *Store) BeginTrial(trialID string, startedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO trials (trial_id, started_at) VALUES (?, ?)`,
		trialID, startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("begin trial: %w", err)
	}
	return nil
}

// EndTrial records a trial's outcome, end time, and final overshoot count.
func (s *Store) EndTrial(trialID string, outcome string, overshoots int, endedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE trials SET ended_at = ?, outcome = ?, n_overshoots = ? WHERE trial_id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano), outcome, overshoots, trialID,
	)
	if err != nil {
		return fmt.Errorf("end trial: %w", err)
	}
	return nil
}

// RecordTransition appends one transition row.
func (s *Store) RecordTransition(rec machine.TransitionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO transitions (trial_id, type, prev, cur, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.TrialID, rec.Type, nullIfEmpty(rec.Prev), rec.Cur,
		rec.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion sink

// #region queries

// RecentTrials returns the most recent trials, newest first.
func (s *Store) RecentTrials(limit int) ([]TrialRow, error) {
	rows, err := s.db.Query(
		`SELECT trial_id, started_at, ended_at, outcome, n_overshoots
		 FROM trials ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var trials []TrialRow
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		trials = append(trials, t)
	}
	return trials, rows.Err()
}

// Trial returns a single trial by ID.
func (s *Store) Trial(trialID string) (TrialRow, error) {
	row := s.db.QueryRow(
		`SELECT trial_id, started_at, ended_at, outcome, n_overshoots
		 FROM trials WHERE trial_id = ?`, trialID,
	)
	t, err := scanTrial(row)
	if err != nil {
		return TrialRow{}, fmt.Errorf("trial %s: %w", trialID, err)
	}
	return t, nil
}

// Transitions returns a trial's transition records in order.
func (s *Store) Transitions(trialID string) ([]machine.TransitionRecord, error) {
	rows, err := s.db.Query(
		`SELECT trial_id, type, prev, cur, created_at
		 FROM transitions WHERE trial_id = ? ORDER BY id ASC`, trialID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var recs []machine.TransitionRecord
	for rows.Next() {
		var rec machine.TransitionRecord
		var prev sql.NullString
		var createdStr string
		if err := rows.Scan(&rec.TrialID, &rec.Type, &prev, &rec.Cur, &createdStr); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		if prev.Valid {
			rec.Prev = prev.String
		}
		rec.At, _ = time.Parse(time.RFC3339Nano, createdStr)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Summary aggregates outcomes across all closed trials.
func (s *Store) Summary() (SessionSummary, error) {
	var sum SessionSummary
	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END), 0)
		 FROM trials WHERE outcome IS NOT NULL`,
	).Scan(&sum.Trials, &sum.Successes, &sum.Failures)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("summary counts: %w", err)
	}

	if sum.Trials > 0 {
		sum.SuccessRate = float64(sum.Successes) / float64(sum.Trials)
		err = s.db.QueryRow(
			`SELECT COALESCE(AVG((julianday(ended_at) - julianday(started_at)) * 86400.0), 0)
			 FROM trials WHERE outcome IS NOT NULL`,
		).Scan(&sum.MeanTrialSeconds)
		if err != nil {
			return SessionSummary{}, fmt.Errorf("summary durations: %w", err)
		}
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM transitions`).Scan(&sum.Transitions); err != nil {
		return SessionSummary{}, fmt.Errorf("summary transitions: %w", err)
	}
	return sum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrial(r rowScanner) (TrialRow, error) {
	var t TrialRow
	var startedStr string
	var endedStr sql.NullString
	var outcome sql.NullString
	if err := r.Scan(&t.TrialID, &startedStr, &endedStr, &outcome, &t.NOvershoots); err != nil {
		return TrialRow{}, fmt.Errorf("scan trial: %w", err)
	}
	t.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
	if endedStr.Valid {
		t.EndedAt, _ = time.Parse(time.RFC3339Nano, endedStr.String)
	}
	if outcome.Valid {
		t.Outcome = outcome.String
	}
	return t, nil
}

// #endregion queries
