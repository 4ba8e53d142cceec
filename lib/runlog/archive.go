// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/conveyor-foundation/conveyor/lib/codec"
	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// ErrNotFound is returned by Get when no archived run exists for the
// given ID.
var ErrNotFound = errors.New("archived run not found")

// Config holds the parameters for opening a run archive.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. Use ":memory:" with PoolSize 1 for
	// tests.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Archive is the persistent store of terminal run snapshots.
//
// Archive is safe for concurrent use. Rows are written once when a
// run completes; Record is idempotent so the engine may retry after
// a failure.
type Archive struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	pipeline_id  TEXT NOT NULL,
	number       INTEGER NOT NULL,
	git_ref      TEXT NOT NULL,
	status       TEXT NOT NULL,
	queued_at    INTEGER NOT NULL,
	started_at   INTEGER,
	completed_at INTEGER NOT NULL,
	duration_ms  INTEGER NOT NULL,
	wait_ms      INTEGER NOT NULL,
	snapshot     BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS runs_pipeline_queued
	ON runs(pipeline_id, queued_at);
`

// Open creates a run archive backed by SQLite. The database file is
// created if it does not exist, and the schema is applied on every
// connection (CREATE IF NOT EXISTS, so reopening an existing archive
// is cheap).
func Open(cfg Config) (*Archive, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("runlog: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("runlog: opening %s: %w", cfg.Path, err)
	}

	logger.Info("run archive opened", "path", cfg.Path, "pool_size", poolSize)
	return &Archive{pool: pool, logger: logger, path: cfg.Path}, nil
}

// prepareConnection applies the standard pragmas and the archive
// schema. Runs once per connection, on first use.
func prepareConnection(conn *sqlite.Conn) error {
	// WAL mode: concurrent readers, single writer, no reader
	// blocking.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("runlog: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, archiveSchema, nil); err != nil {
		return fmt.Errorf("runlog: applying schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (a *Archive) Close() error {
	if err := a.pool.Close(); err != nil {
		return fmt.Errorf("runlog: closing %s: %w", a.path, err)
	}
	return nil
}

// Record archives a terminal run. The snapshot must belong to a run
// whose status is terminal; recording an active run is an error.
// Recording the same run twice replaces the row, so retries after a
// partial failure are safe.
func (a *Archive) Record(ctx context.Context, snapshot *schema.RunSnapshot) error {
	run := &snapshot.Run
	if !run.Status.Terminal() {
		return fmt.Errorf("runlog: run %s has non-terminal status %s", run.ID, run.Status)
	}
	if run.Timing.CompletedAt == nil {
		return fmt.Errorf("runlog: run %s is terminal but has no completion time", run.ID)
	}

	blob, err := codec.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("runlog: encoding snapshot of %s: %w", run.ID, err)
	}

	var startedAt any
	if run.Timing.StartedAt != nil {
		startedAt = run.Timing.StartedAt.UnixMilli()
	}

	conn, err := a.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("runlog: record %s: %w", run.ID, err)
	}
	defer a.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT OR REPLACE INTO runs
			(id, pipeline_id, number, git_ref, status, queued_at,
			 started_at, completed_at, duration_ms, wait_ms, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				run.ID,
				run.PipelineID,
				run.Number,
				run.Trigger.Ref,
				string(run.Status),
				run.Timing.QueuedAt.UnixMilli(),
				startedAt,
				run.Timing.CompletedAt.UnixMilli(),
				run.Timing.Duration().Milliseconds(),
				run.Timing.Wait().Milliseconds(),
				blob,
			},
		})
	if err != nil {
		return fmt.Errorf("runlog: inserting run %s: %w", run.ID, err)
	}
	return nil
}

// Get retrieves the full snapshot of an archived run.
func (a *Archive) Get(ctx context.Context, runID string) (*schema.RunSnapshot, error) {
	conn, err := a.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("runlog: get %s: %w", runID, err)
	}
	defer a.pool.Put(conn)

	var blob []byte
	err = sqlitex.Execute(conn, `SELECT snapshot FROM runs WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{runID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blob = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, blob)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("runlog: querying run %s: %w", runID, err)
	}
	if blob == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	var snapshot schema.RunSnapshot
	if err := codec.Unmarshal(blob, &snapshot); err != nil {
		return nil, fmt.Errorf("runlog: decoding snapshot of %s: %w", runID, err)
	}
	return &snapshot, nil
}

// Summary is the indexed view of one archived run, sufficient for
// metrics aggregation without decoding snapshots.
type Summary struct {
	ID       string
	Number   int64
	Status   schema.Status
	QueuedAt time.Time
	Duration time.Duration
	Wait     time.Duration

	// Started reports whether the run ever left the queue. Runs
	// cancelled while pending have no recorded duration or wait.
	Started bool
}

// Query returns summaries of archived runs for a pipeline whose queue
// time falls in [since, until), ordered by queue time ascending. A
// zero until means no upper bound.
func (a *Archive) Query(ctx context.Context, pipelineID string, since, until time.Time) ([]Summary, error) {
	untilMilli := int64(1<<63 - 1)
	if !until.IsZero() {
		untilMilli = until.UnixMilli()
	}

	conn, err := a.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("runlog: query %s: %w", pipelineID, err)
	}
	defer a.pool.Put(conn)

	var summaries []Summary
	err = sqlitex.Execute(conn, `
		SELECT id, number, status, queued_at, duration_ms, wait_ms,
		       started_at IS NOT NULL
		FROM runs
		WHERE pipeline_id = ? AND queued_at >= ? AND queued_at < ?
		ORDER BY queued_at ASC`,
		&sqlitex.ExecOptions{
			Args: []any{pipelineID, since.UnixMilli(), untilMilli},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				summaries = append(summaries, Summary{
					ID:       stmt.ColumnText(0),
					Number:   stmt.ColumnInt64(1),
					Status:   schema.Status(stmt.ColumnText(2)),
					QueuedAt: time.UnixMilli(stmt.ColumnInt64(3)).UTC(),
					Duration: time.Duration(stmt.ColumnInt64(4)) * time.Millisecond,
					Wait:     time.Duration(stmt.ColumnInt64(5)) * time.Millisecond,
					Started:  stmt.ColumnInt64(6) != 0,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("runlog: querying pipeline %s: %w", pipelineID, err)
	}
	return summaries, nil
}
