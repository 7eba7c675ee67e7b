package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
)

const workoutColumns = `id, date, session_name, duration_target_minutes, intensity_target, notes, matched_activity_id, is_manually_linked`

// UpsertWorkout stores a plan entry. Re-importing an existing workout keeps its
// match and manual-link state.
func (s *Store) UpsertWorkout(ctx context.Context, w training.Workout) (int64, error) {
	if w.Date.IsZero() {
		return 0, errors.New("workout date required")
	}
	if w.SessionName == "" {
		return 0, errors.New("workout session name required")
	}

	now := time.Now().Unix()
	if w.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
INSERT INTO workouts (date, session_name, duration_target_minutes, intensity_target, notes, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, training.DateKey(w.Date), w.SessionName, w.DurationTargetMinutes, w.IntensityTarget, w.Notes, now)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO workouts (id, date, session_name, duration_target_minutes, intensity_target, notes, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	date = excluded.date,
	session_name = excluded.session_name,
	duration_target_minutes = excluded.duration_target_minutes,
	intensity_target = excluded.intensity_target,
	notes = excluded.notes,
	updated_at = excluded.updated_at
`, w.ID, training.DateKey(w.Date), w.SessionName, w.DurationTargetMinutes, w.IntensityTarget, w.Notes, now)
	if err != nil {
		return 0, err
	}
	return w.ID, nil
}

func (s *Store) GetWorkout(ctx context.Context, id int64) (training.Workout, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workoutColumns+` FROM workouts WHERE id = ?`, id)
	w, err := scanWorkout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return training.Workout{}, fmt.Errorf("workout %d: %w", id, ErrNotFound)
	}
	return w, err
}

// ListWorkouts returns workouts dated within [from, to] by calendar day.
func (s *Store) ListWorkouts(ctx context.Context, from, to time.Time) ([]training.Workout, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+workoutColumns+`
FROM workouts
WHERE date BETWEEN ? AND ?
ORDER BY date, id
`, training.DateKey(from), training.DateKey(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workouts []training.Workout
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}

// SetWorkoutMatch records an automatic match. Manually linked workouts are left alone.
func (s *Store) SetWorkoutMatch(ctx context.Context, workoutID, activityID int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE workouts
SET matched_activity_id = ?, updated_at = ?
WHERE id = ? AND is_manually_linked = 0
`, nullableID(activityID), time.Now().Unix(), workoutID)
	return err
}

func (s *Store) LinkWorkout(ctx context.Context, workoutID, activityID int64) error {
	if activityID == 0 {
		return errors.New("activity id required")
	}
	return s.updateLink(ctx, workoutID, nullableID(activityID), true)
}

func (s *Store) UnlinkWorkout(ctx context.Context, workoutID int64) error {
	return s.updateLink(ctx, workoutID, sql.NullInt64{}, false)
}

func (s *Store) updateLink(ctx context.Context, workoutID int64, activityID sql.NullInt64, manual bool) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE workouts
SET matched_activity_id = ?, is_manually_linked = ?, updated_at = ?
WHERE id = ?
`, activityID, manual, time.Now().Unix(), workoutID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("workout %d: %w", workoutID, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkout(row scanner) (training.Workout, error) {
	var w training.Workout
	var date string
	var matched sql.NullInt64
	if err := row.Scan(&w.ID, &date, &w.SessionName, &w.DurationTargetMinutes, &w.IntensityTarget, &w.Notes, &matched, &w.IsManuallyLinked); err != nil {
		return training.Workout{}, err
	}
	parsed, err := training.ParseDateKey(date)
	if err != nil {
		return training.Workout{}, fmt.Errorf("workout %d date %q: %w", w.ID, date, err)
	}
	w.Date = parsed
	w.MatchedActivityID = matched.Int64
	return w, nil
}
