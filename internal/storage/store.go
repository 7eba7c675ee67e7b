package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS workouts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	session_name TEXT NOT NULL,
	duration_target_minutes REAL NOT NULL DEFAULT 0,
	intensity_target TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	matched_activity_id INTEGER,
	is_manually_linked INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS workouts_date ON workouts (date);
CREATE TABLE IF NOT EXISTS activities (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	start_date_local INTEGER NOT NULL,
	start_day TEXT NOT NULL,
	moving_time INTEGER NOT NULL,
	elapsed_time INTEGER NOT NULL,
	distance REAL NOT NULL,
	average_heartrate REAL NOT NULL,
	average_watts REAL NOT NULL,
	weighted_average_watts REAL NOT NULL,
	stale INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS activities_start_day ON activities (start_day);
CREATE TABLE IF NOT EXISTS activity_laps (
	activity_id INTEGER NOT NULL,
	lap_index INTEGER NOT NULL,
	elapsed_time INTEGER NOT NULL,
	moving_time INTEGER NOT NULL,
	average_heartrate REAL NOT NULL,
	average_watts REAL NOT NULL,
	PRIMARY KEY (activity_id, lap_index)
);
CREATE TABLE IF NOT EXISTS activity_streams (
	activity_id INTEGER PRIMARY KEY,
	time_json TEXT NOT NULL,
	heartrate_json TEXT NOT NULL,
	watts_json TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS activity_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	activity_id INTEGER NOT NULL,
	enqueued_at INTEGER NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	next_attempt_at INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	processed_at INTEGER
);
CREATE TABLE IF NOT EXISTS compliance_results (
	workout_id INTEGER PRIMARY KEY,
	activity_id INTEGER,
	score INTEGER NOT NULL,
	breakdown_json TEXT NOT NULL,
	run_id TEXT NOT NULL,
	computed_at INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	// databases created before retries and refreshes were tracked
	for _, col := range []struct{ table, name, def string }{
		{"activities", "stale", "INTEGER NOT NULL DEFAULT 0"},
		{"activity_queue", "attempts", "INTEGER NOT NULL DEFAULT 0"},
		{"activity_queue", "next_attempt_at", "INTEGER NOT NULL DEFAULT 0"},
		{"activity_queue", "last_error", "TEXT NOT NULL DEFAULT ''"},
	} {
		if err := s.ensureColumn(ctx, col.table, col.name, col.def); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureColumn(ctx context.Context, table, column, def string) error {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column)
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	if count > 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, def))
	return err
}

func (s *Store) EnqueueActivity(ctx context.Context, activityID int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO activity_queue (activity_id, enqueued_at)
VALUES (?, ?)
`, activityID, time.Now().Unix())
	return err
}

func (s *Store) CountQueue(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM activity_queue
WHERE processed_at IS NULL
`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DequeueActivity returns the oldest item that is due, or sql.ErrNoRows when
// nothing is. Items waiting out a retry delay do not block later ones.
func (s *Store) DequeueActivity(ctx context.Context) (queueID int64, activityID int64, err error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, activity_id
FROM activity_queue
WHERE processed_at IS NULL AND next_attempt_at <= ?
ORDER BY id
LIMIT 1
`, time.Now().Unix())
	if err := row.Scan(&queueID, &activityID); err != nil {
		return 0, 0, err
	}
	return queueID, activityID, nil
}

func (s *Store) MarkProcessed(ctx context.Context, queueID int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE activity_queue
SET processed_at = ?
WHERE id = ?
`, time.Now().Unix(), queueID)
	return err
}

// RetryActivity records a failed attempt and hides the item until next. It
// returns the number of attempts made so far.
func (s *Store) RetryActivity(ctx context.Context, queueID int64, next time.Time, cause string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE activity_queue
SET attempts = attempts + 1, next_attempt_at = ?, last_error = ?
WHERE id = ?
RETURNING attempts
`, next.Unix(), cause, queueID)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("queue item %d: %w", queueID, ErrNotFound)
		}
		return 0, err
	}
	return attempts, nil
}

// DropActivity closes an item that will never succeed, keeping the reason.
func (s *Store) DropActivity(ctx context.Context, queueID int64, cause string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE activity_queue
SET processed_at = ?, last_error = ?
WHERE id = ?
`, time.Now().Unix(), cause, queueID)
	return err
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
