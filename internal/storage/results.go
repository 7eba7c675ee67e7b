package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ComplianceRecord is a persisted compliance result. Breakdown holds the JSON
// encoding produced by the caller.
type ComplianceRecord struct {
	WorkoutID  int64
	ActivityID int64
	Score      int
	Breakdown  string
	RunID      string
	ComputedAt time.Time
}

func (s *Store) UpsertComplianceResult(ctx context.Context, rec ComplianceRecord) error {
	if rec.WorkoutID == 0 {
		return errors.New("workout id required")
	}
	if rec.ComputedAt.IsZero() {
		rec.ComputedAt = time.Now()
	}
	if rec.Breakdown == "" {
		rec.Breakdown = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO compliance_results (workout_id, activity_id, score, breakdown_json, run_id, computed_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(workout_id) DO UPDATE SET
	activity_id = excluded.activity_id,
	score = excluded.score,
	breakdown_json = excluded.breakdown_json,
	run_id = excluded.run_id,
	computed_at = excluded.computed_at
`, rec.WorkoutID, nullableID(rec.ActivityID), rec.Score, rec.Breakdown, rec.RunID, rec.ComputedAt.Unix())
	return err
}

func (s *Store) GetComplianceResult(ctx context.Context, workoutID int64) (ComplianceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT activity_id, score, breakdown_json, run_id, computed_at
FROM compliance_results
WHERE workout_id = ?
`, workoutID)
	rec := ComplianceRecord{WorkoutID: workoutID}
	var activityID sql.NullInt64
	var computedAt int64
	if err := row.Scan(&activityID, &rec.Score, &rec.Breakdown, &rec.RunID, &computedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ComplianceRecord{}, fmt.Errorf("compliance result for workout %d: %w", workoutID, ErrNotFound)
		}
		return ComplianceRecord{}, err
	}
	rec.ActivityID = activityID.Int64
	rec.ComputedAt = time.Unix(computedAt, 0)
	return rec, nil
}
