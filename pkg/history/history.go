// Package history records training runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"k8s.io/klog/v2"
	_ "modernc.org/sqlite"

	"k8s.io/examples/AI/scalargrad/pkg/train"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	parameters INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS steps(
	run_id INTEGER NOT NULL REFERENCES runs(id),
	step INTEGER NOT NULL,
	loss REAL NOT NULL,
	accuracy REAL NOT NULL,
	learning_rate REAL NOT NULL,
	grad_norm REAL NOT NULL,
	PRIMARY KEY (run_id, step)
);
`

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database %q: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type RunInfo struct {
	ID         int64
	Name       string
	StartedAt  time.Time
	Parameters int
}

// Run records the steps of one training run.
type Run struct {
	store *Store
	id    int64
}

var _ train.Recorder = &Run{}

func (s *Store) StartRun(ctx context.Context, name string, parameters int) (*Run, error) {
	log := klog.FromContext(ctx)

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(name, started_at, parameters) VALUES (?, ?, ?)`,
		name, time.Now().UnixMilli(), parameters)
	if err != nil {
		return nil, fmt.Errorf("inserting run %q: %w", name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting run id: %w", err)
	}

	log.Info("started run", "run", id, "name", name)
	return &Run{store: s, id: id}, nil
}

func (r *Run) ID() int64 {
	return r.id
}

func (r *Run) RecordStep(ctx context.Context, result train.StepResult) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO steps(run_id, step, loss, accuracy, learning_rate, grad_norm) VALUES (?, ?, ?, ?, ?, ?)`,
		r.id, result.Step, result.Loss, result.Accuracy, result.LearningRate, result.GradNorm)
	if err != nil {
		return fmt.Errorf("inserting step %d of run %d: %w", result.Step, r.id, err)
	}
	return nil
}

func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, started_at, parameters FROM runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		var startedAt int64
		if err := rows.Scan(&info.ID, &info.Name, &startedAt, &info.Parameters); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		info.StartedAt = time.UnixMilli(startedAt)
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// Steps returns the recorded steps of a run in step order.
func (s *Store) Steps(ctx context.Context, runID int64) ([]train.StepResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, loss, accuracy, learning_rate, grad_norm FROM steps WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying steps of run %d: %w", runID, err)
	}
	defer rows.Close()

	var steps []train.StepResult
	for rows.Next() {
		var step train.StepResult
		if err := rows.Scan(&step.Step, &step.Loss, &step.Accuracy, &step.LearningRate, &step.GradNorm); err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
