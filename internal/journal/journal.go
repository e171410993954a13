// Package journal records transcode jobs in SQLite so that jobs cut short by
// a crash can be found and resolved on the next start.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"github.com/darbyjahn/smallphot0-backend/internal/logging"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// State is a job's lifecycle position.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// ErrJobNotFound is returned when a job id is unknown.
var ErrJobNotFound = errors.New("job not found")

// Job is one journal row.
type Job struct {
	ID         int64      `json:"id"`
	GalleryID  string     `json:"gallery"`
	StoredName string     `json:"stored"`
	OutputName string     `json:"output,omitempty"`
	State      State      `json:"state"`
	Error      string     `json:"error,omitempty"`
	QueuedAt   time.Time  `json:"queuedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Journal is the SQLite-backed job log.
type Journal struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close journal after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	// SQLite serializes writers anyway; one connection avoids busy errors.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, path: path, now: time.Now}
	if err := j.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close journal after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	logging.Info("Transcode journal opened at %s", path)
	return j, nil
}

func (j *Journal) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcode_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		gallery_id TEXT NOT NULL,
		stored_name TEXT NOT NULL,
		output_name TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		queued_at INTEGER NOT NULL,
		started_at INTEGER,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_transcode_jobs_state ON transcode_jobs(state);
	CREATE INDEX IF NOT EXISTS idx_transcode_jobs_gallery ON transcode_jobs(gallery_id);
	`

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := j.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Ping checks that the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return j.db.PingContext(ctx)
}

// Queue inserts a new queued job and returns its id.
func (j *Journal) Queue(ctx context.Context, galleryID, storedName string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO transcode_jobs (gallery_id, stored_name, state, queued_at) VALUES (?, ?, ?, ?)`,
		galleryID, storedName, StateQueued, j.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("queue job for %s/%s: %w", galleryID, storedName, err)
	}
	return res.LastInsertId()
}

// Start marks a job as running.
func (j *Journal) Start(ctx context.Context, id int64) error {
	return j.exec(ctx, id,
		`UPDATE transcode_jobs SET state = ?, started_at = ? WHERE id = ?`,
		StateRunning, j.now().UnixMilli(), id)
}

// Finish marks a job done, or failed when jobErr is non-nil.
func (j *Journal) Finish(ctx context.Context, id int64, outputName string, jobErr error) error {
	state, msg := StateDone, ""
	if jobErr != nil {
		state, msg = StateFailed, jobErr.Error()
	}
	return j.exec(ctx, id,
		`UPDATE transcode_jobs SET state = ?, output_name = ?, error = ?, finished_at = ? WHERE id = ?`,
		state, outputName, msg, j.now().UnixMilli(), id)
}

func (j *Journal) exec(ctx context.Context, id int64, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	return nil
}

// Get returns one job.
func (j *Journal) Get(ctx context.Context, id int64) (*Job, error) {
	jobs, err := j.query(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	return &jobs[0], nil
}

// Recent returns up to limit jobs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return j.query(ctx, `ORDER BY id DESC LIMIT ?`, limit)
}

// Interrupted returns jobs left queued or running, oldest first.
func (j *Journal) Interrupted(ctx context.Context) ([]Job, error) {
	return j.query(ctx, `WHERE state IN (?, ?) ORDER BY id`, StateQueued, StateRunning)
}

// Counts returns the number of jobs in each state.
func (j *Journal) Counts(ctx context.Context) (map[State]int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := j.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM transcode_jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[State]int)
	for rows.Next() {
		var s State
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

// Prune deletes finished jobs older than the cutoff and returns how many
// rows were removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := j.db.ExecContext(ctx,
		`DELETE FROM transcode_jobs WHERE state IN (?, ?) AND finished_at < ?`,
		StateDone, StateFailed, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func (j *Journal) query(ctx context.Context, clause string, args ...interface{}) ([]Job, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, gallery_id, stored_name, output_name, state, error, queued_at, started_at, finished_at
		FROM transcode_jobs `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := []Job{}
	for rows.Next() {
		var job Job
		var queued int64
		var started, finished sql.NullInt64
		if err := rows.Scan(&job.ID, &job.GalleryID, &job.StoredName, &job.OutputName,
			&job.State, &job.Error, &queued, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.QueuedAt = time.UnixMilli(queued)
		job.StartedAt = nullTime(started)
		job.FinishedAt = nullTime(finished)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
