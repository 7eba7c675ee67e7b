package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/compliance"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/matcher"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/observability"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/storage"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/zones"
)

// ComplianceProcessor re-matches the workouts of a date window and stores a
// fresh compliance result for each of them.
type ComplianceProcessor struct {
	Store   *storage.Store
	Engine  *compliance.Engine
	Athlete zones.Athlete
}

// Process recomputes the day the activity started on.
func (p *ComplianceProcessor) Process(ctx context.Context, activityID int64) error {
	activity, err := p.Store.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}
	day := activity.StartDateLocal
	_, err = p.ProcessWindow(ctx, day, day)
	return err
}

// ProcessWindow returns the number of workouts scored. All results written by
// one call share a run id.
func (p *ComplianceProcessor) ProcessWindow(ctx context.Context, from, to time.Time) (int, error) {
	workouts, err := p.Store.ListWorkouts(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list workouts: %w", err)
	}
	if len(workouts) == 0 {
		return 0, nil
	}
	activities, err := p.Store.ListActivities(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list activities: %w", err)
	}
	activities, err = p.withManualLinks(ctx, workouts, activities)
	if err != nil {
		return 0, err
	}

	byID := make(map[int64]training.Activity, len(activities))
	for _, a := range activities {
		byID[a.ID] = a
	}
	workoutByID := make(map[int64]training.Workout, len(workouts))
	for _, w := range workouts {
		workoutByID[w.ID] = w
	}

	engine := p.Engine
	if engine == nil {
		engine = &compliance.Engine{Evidence: p.Store}
	}

	runID := uuid.NewString()
	scored := 0
	for _, assignment := range matcher.Match(workouts, activities) {
		observability.MatchOutcomes.WithLabelValues(outcome(assignment)).Inc()
		if !assignment.Manual {
			if err := p.Store.SetWorkoutMatch(ctx, assignment.WorkoutID, assignment.ActivityID); err != nil {
				return scored, fmt.Errorf("workout %d: set match: %w", assignment.WorkoutID, err)
			}
		}

		var activity *training.Activity
		if assignment.Matched {
			a := byID[assignment.ActivityID]
			activity = &a
		}
		result := engine.Evaluate(ctx, workoutByID[assignment.WorkoutID], activity, p.Athlete)

		breakdown, err := json.Marshal(result.Breakdown)
		if err != nil {
			return scored, fmt.Errorf("workout %d: encode breakdown: %w", assignment.WorkoutID, err)
		}
		if err := p.Store.UpsertComplianceResult(ctx, storage.ComplianceRecord{
			WorkoutID:  assignment.WorkoutID,
			ActivityID: assignment.ActivityID,
			Score:      result.Score,
			Breakdown:  string(breakdown),
			RunID:      runID,
		}); err != nil {
			return scored, fmt.Errorf("workout %d: store result: %w", assignment.WorkoutID, err)
		}
		if activity != nil {
			observability.RecordCompliance(result.IntervalSource(), result.Score)
		}
		scored++
	}

	log.Printf("compliance run %s: scored %d workouts between %s and %s", runID, scored, training.DateKey(from), training.DateKey(to))
	return scored, nil
}

// withManualLinks adds manually linked activities that started outside the window.
func (p *ComplianceProcessor) withManualLinks(ctx context.Context, workouts []training.Workout, activities []training.Activity) ([]training.Activity, error) {
	seen := make(map[int64]bool, len(activities))
	for _, a := range activities {
		seen[a.ID] = true
	}
	for _, w := range workouts {
		if !w.IsManuallyLinked || w.MatchedActivityID == 0 || seen[w.MatchedActivityID] {
			continue
		}
		a, err := p.Store.GetActivity(ctx, w.MatchedActivityID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		seen[a.ID] = true
		activities = append(activities, a)
	}
	return activities, nil
}

func outcome(a matcher.Assignment) string {
	switch {
	case a.Manual:
		return "manual"
	case a.Matched:
		return "matched"
	default:
		return "unmatched"
	}
}
