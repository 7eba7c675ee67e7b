package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
)

const activityColumns = `id, name, type, start_date_local, moving_time, elapsed_time, distance, average_heartrate, average_watts, weighted_average_watts`

// start_date_local is stored as the wall-clock time read as UTC, so the
// calendar day survives the round trip regardless of server zone.
func (s *Store) UpsertActivity(ctx context.Context, a training.Activity) error {
	if a.ID == 0 {
		return errors.New("activity id required")
	}
	if a.StartDateLocal.IsZero() {
		return errors.New("activity start time required")
	}
	if a.Type == "" {
		return errors.New("activity type required")
	}

	wall := wallClock(a.StartDateLocal)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO activities (id, name, type, start_date_local, start_day, moving_time, elapsed_time, distance, average_heartrate, average_watts, weighted_average_watts, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	type = excluded.type,
	start_date_local = excluded.start_date_local,
	start_day = excluded.start_day,
	moving_time = excluded.moving_time,
	elapsed_time = excluded.elapsed_time,
	distance = excluded.distance,
	average_heartrate = excluded.average_heartrate,
	average_watts = excluded.average_watts,
	weighted_average_watts = excluded.weighted_average_watts,
	stale = 0,
	updated_at = excluded.updated_at
`, a.ID, a.Name, a.Type, wall.Unix(), training.DateKey(wall), a.MovingTime, a.ElapsedTime, a.Distance,
		a.AverageHeartrate, a.AverageWatts, a.WeightedAverageWatts, time.Now().Unix())
	return err
}

func (s *Store) GetActivity(ctx context.Context, id int64) (training.Activity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return training.Activity{}, fmt.Errorf("activity %d: %w", id, ErrNotFound)
	}
	return a, err
}

// MarkActivityStale flags a stored activity for refetching. Unknown ids are
// ignored; they are fetched anyway.
func (s *Store) MarkActivityStale(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE activities SET stale = 1 WHERE id = ?`, id)
	return err
}

// ActivityNeedsRefresh reports whether a stored activity was flagged stale or
// has neither laps nor streams. It returns ErrNotFound for unknown ids.
func (s *Store) ActivityNeedsRefresh(ctx context.Context, id int64) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT a.stale,
	EXISTS (SELECT 1 FROM activity_laps l WHERE l.activity_id = a.id),
	EXISTS (SELECT 1 FROM activity_streams st WHERE st.activity_id = a.id)
FROM activities a
WHERE a.id = ?
`, id)
	var stale, hasLaps, hasStreams bool
	if err := row.Scan(&stale, &hasLaps, &hasStreams); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("activity %d: %w", id, ErrNotFound)
		}
		return false, err
	}
	return stale || (!hasLaps && !hasStreams), nil
}

// ListActivities returns activities whose local start day falls within [from, to].
func (s *Store) ListActivities(ctx context.Context, from, to time.Time) ([]training.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+activityColumns+`
FROM activities
WHERE start_day BETWEEN ? AND ?
ORDER BY start_date_local, id
`, training.DateKey(from), training.DateKey(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []training.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (s *Store) ReplaceLaps(ctx context.Context, activityID int64, laps []training.Lap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_laps WHERE activity_id = ?`, activityID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO activity_laps (activity_id, lap_index, elapsed_time, moving_time, average_heartrate, average_watts)
VALUES (?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, lap := range laps {
		idx := lap.LapIndex
		if idx == 0 && i > 0 {
			idx = i
		}
		if _, err := stmt.ExecContext(ctx, activityID, idx, lap.ElapsedTime, lap.MovingTime, lap.AverageHeartrate, lap.AverageWatts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Laps returns an activity's laps in order; no laps is not an error.
func (s *Store) Laps(ctx context.Context, activityID int64) ([]training.Lap, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT lap_index, elapsed_time, moving_time, average_heartrate, average_watts
FROM activity_laps
WHERE activity_id = ?
ORDER BY lap_index
`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var laps []training.Lap
	for rows.Next() {
		var lap training.Lap
		if err := rows.Scan(&lap.LapIndex, &lap.ElapsedTime, &lap.MovingTime, &lap.AverageHeartrate, &lap.AverageWatts); err != nil {
			return nil, err
		}
		laps = append(laps, lap)
	}
	return laps, rows.Err()
}

func (s *Store) ReplaceStreams(ctx context.Context, activityID int64, streams training.StreamSet) error {
	timeJSON, err := json.Marshal(nonNilInts(streams.Time))
	if err != nil {
		return err
	}
	hrJSON, err := json.Marshal(nonNilFloats(streams.Heartrate))
	if err != nil {
		return err
	}
	wattsJSON, err := json.Marshal(nonNilFloats(streams.Watts))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO activity_streams (activity_id, time_json, heartrate_json, watts_json, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(activity_id) DO UPDATE SET
	time_json = excluded.time_json,
	heartrate_json = excluded.heartrate_json,
	watts_json = excluded.watts_json,
	updated_at = excluded.updated_at
`, activityID, string(timeJSON), string(hrJSON), string(wattsJSON), time.Now().Unix())
	return err
}

// Streams returns an empty set when nothing was stored for the activity.
func (s *Store) Streams(ctx context.Context, activityID int64) (training.StreamSet, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT time_json, heartrate_json, watts_json
FROM activity_streams
WHERE activity_id = ?
`, activityID)
	var timeJSON, hrJSON, wattsJSON string
	if err := row.Scan(&timeJSON, &hrJSON, &wattsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return training.StreamSet{}, nil
		}
		return training.StreamSet{}, err
	}

	var streams training.StreamSet
	if err := json.Unmarshal([]byte(timeJSON), &streams.Time); err != nil {
		return training.StreamSet{}, fmt.Errorf("decode time stream: %w", err)
	}
	if err := json.Unmarshal([]byte(hrJSON), &streams.Heartrate); err != nil {
		return training.StreamSet{}, fmt.Errorf("decode heartrate stream: %w", err)
	}
	if err := json.Unmarshal([]byte(wattsJSON), &streams.Watts); err != nil {
		return training.StreamSet{}, fmt.Errorf("decode watts stream: %w", err)
	}
	if len(streams.Heartrate) == 0 {
		streams.Heartrate = nil
	}
	if len(streams.Watts) == 0 {
		streams.Watts = nil
	}
	return streams, nil
}

func scanActivity(row scanner) (training.Activity, error) {
	var a training.Activity
	var start int64
	if err := row.Scan(&a.ID, &a.Name, &a.Type, &start, &a.MovingTime, &a.ElapsedTime, &a.Distance,
		&a.AverageHeartrate, &a.AverageWatts, &a.WeightedAverageWatts); err != nil {
		return training.Activity{}, err
	}
	a.StartDateLocal = time.Unix(start, 0).UTC()
	return a, nil
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

func nonNilInts(values []int) []int {
	if values == nil {
		return []int{}
	}
	return values
}

func nonNilFloats(values []float64) []float64 {
	if values == nil {
		return []float64{}
	}
	return values
}
