// Package study persists a calibration search: a named study, its
// trials, and the parameters sampled for each trial, in a SQLite file
// shared by concurrent workers.
package study

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Trial states.
const (
	StateRunning  = "RUNNING"
	StateComplete = "COMPLETE"
	StateFailed   = "FAILED"
)

var ErrNotFound = errors.New("study not found")

// Bounds describes one searched parameter and its uniform sampling
// range.
type Bounds struct {
	Name      string
	Low, High float64
}

type Trial struct {
	ID       int64
	Number   int
	State    string
	Value    float64
	Params   map[string]float64
	Started  time.Time
	Finished time.Time
	Error    string
}

type Study struct {
	db   *sql.DB
	id   int64
	name string
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open study db: %w", err)
	}
	// Single writer per process; SQLite serializes the rest.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Create makes a new named study in the database at path. It fails if
// the name already exists.
func Create(ctx context.Context, path, name string) (*Study, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO studies (name, created_at) VALUES (?, ?)`,
		name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		db.Close()
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("study %q already exists", name)
		}
		return nil, fmt.Errorf("create study: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Study{db: db, id: id, name: name}, nil
}

// Load opens an existing named study.
func Load(ctx context.Context, path, name string) (*Study, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	var id int64
	err = db.QueryRowContext(ctx, `SELECT id FROM studies WHERE name = ?`, name).Scan(&id)
	if err != nil {
		db.Close()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("load study: %w", err)
	}
	return &Study{db: db, id: id, name: name}, nil
}

func (s *Study) Close() error { return s.db.Close() }

func (s *Study) Name() string { return s.name }

// StartTrial claims the next free trial number and records uniformly
// sampled parameters for it. Number collisions with concurrent workers
// are resolved by retrying on the UNIQUE constraint.
func (s *Study) StartTrial(ctx context.Context, rng *rand.Rand, bounds []Bounds) (*Trial, error) {
	params := make(map[string]float64, len(bounds))
	for _, b := range bounds {
		if b.High < b.Low {
			return nil, fmt.Errorf("bounds for %s: high %f below low %f", b.Name, b.High, b.Low)
		}
		params[b.Name] = b.Low + rng.Float64()*(b.High-b.Low)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var next int
		err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(number), -1) + 1 FROM trials WHERE study_id = ?`, s.id).Scan(&next)
		if err != nil {
			return nil, fmt.Errorf("next trial number: %w", err)
		}

		res, err := s.db.ExecContext(ctx,
			`INSERT INTO trials (study_id, number, state, started_at) VALUES (?, ?, ?, ?)`,
			s.id, next, StateRunning, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				continue // another worker took this number
			}
			return nil, fmt.Errorf("start trial: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}

		for _, b := range bounds {
			_, err := s.db.ExecContext(ctx,
				`INSERT INTO trial_params (trial_id, name, value, low, high) VALUES (?, ?, ?, ?, ?)`,
				id, b.Name, params[b.Name], b.Low, b.High)
			if err != nil {
				return nil, fmt.Errorf("record param %s: %w", b.Name, err)
			}
		}

		return &Trial{ID: id, Number: next, State: StateRunning, Params: params}, nil
	}
}

func (s *Study) CompleteTrial(ctx context.Context, t *Trial, value float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trials SET state = ?, value = ?, finished_at = ? WHERE id = ?`,
		StateComplete, value, time.Now().UTC().Format(time.RFC3339), t.ID)
	if err != nil {
		return fmt.Errorf("complete trial %d: %w", t.Number, err)
	}
	t.State = StateComplete
	t.Value = value
	return nil
}

func (s *Study) FailTrial(ctx context.Context, t *Trial, cause error) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trials SET state = ?, error = ?, finished_at = ? WHERE id = ?`,
		StateFailed, cause.Error(), time.Now().UTC().Format(time.RFC3339), t.ID)
	if err != nil {
		return fmt.Errorf("fail trial %d: %w", t.Number, err)
	}
	t.State = StateFailed
	t.Error = cause.Error()
	return nil
}

// BestTrial returns the completed trial with the lowest value.
func (s *Study) BestTrial(ctx context.Context) (*Trial, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, number, value FROM trials
		 WHERE study_id = ? AND state = ? AND value IS NOT NULL
		 ORDER BY value ASC, number ASC LIMIT 1`, s.id, StateComplete)

	t := &Trial{State: StateComplete, Params: make(map[string]float64)}
	if err := row.Scan(&t.ID, &t.Number, &t.Value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("study %q has no completed trials", s.name)
		}
		return nil, fmt.Errorf("best trial: %w", err)
	}

	if err := s.loadParams(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// BestParams is the parameter set of the best trial.
func (s *Study) BestParams(ctx context.Context) (map[string]float64, error) {
	t, err := s.BestTrial(ctx)
	if err != nil {
		return nil, err
	}
	return t.Params, nil
}

// Trials lists all trials in number order.
func (s *Study) Trials(ctx context.Context) ([]*Trial, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, number, state, COALESCE(value, 0), COALESCE(error, '') FROM trials
		 WHERE study_id = ? ORDER BY number ASC`, s.id)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	trials := make([]*Trial, 0)
	for rows.Next() {
		t := &Trial{Params: make(map[string]float64)}
		if err := rows.Scan(&t.ID, &t.Number, &t.State, &t.Value, &t.Error); err != nil {
			return nil, err
		}
		trials = append(trials, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range trials {
		if err := s.loadParams(ctx, t); err != nil {
			return nil, err
		}
	}
	return trials, nil
}

// CountCompleted reports how many trials have finished successfully.
func (s *Study) CountCompleted(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trials WHERE study_id = ? AND state = ?`, s.id, StateComplete).Scan(&n)
	return n, err
}

func (s *Study) loadParams(ctx context.Context, t *Trial) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM trial_params WHERE trial_id = ?`, t.ID)
	if err != nil {
		return fmt.Errorf("load params for trial %d: %w", t.Number, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return err
		}
		t.Params[name] = value
	}
	return rows.Err()
}
