package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return store
}

func TestWorkoutRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	id, err := store.UpsertWorkout(ctx, training.Workout{
		Date:                  day,
		SessionName:           "3x10min tempo",
		DurationTargetMinutes: 60,
		IntensityTarget:       "Z3",
	})
	if err != nil {
		t.Fatalf("upsert workout: %v", err)
	}

	if err := store.SetWorkoutMatch(ctx, id, 77); err != nil {
		t.Fatalf("set match: %v", err)
	}
	// re-import must not drop the match
	if _, err := store.UpsertWorkout(ctx, training.Workout{ID: id, Date: day, SessionName: "3x10min tempo", Notes: "hills"}); err != nil {
		t.Fatalf("re-upsert workout: %v", err)
	}

	got, err := store.GetWorkout(ctx, id)
	if err != nil {
		t.Fatalf("get workout: %v", err)
	}
	if got.MatchedActivityID != 77 || got.Notes != "hills" || !got.Date.Equal(day) {
		t.Fatalf("unexpected workout: %+v", got)
	}

	list, err := store.ListWorkouts(ctx, day.AddDate(0, 0, -1), day)
	if err != nil {
		t.Fatalf("list workouts: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 workout, got %d", len(list))
	}

	if _, err := store.GetWorkout(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManualLinkBlocksAutomaticMatch(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.UpsertWorkout(ctx, training.Workout{Date: time.Now(), SessionName: "Run"})
	if err != nil {
		t.Fatalf("upsert workout: %v", err)
	}
	if err := store.LinkWorkout(ctx, id, 5); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := store.SetWorkoutMatch(ctx, id, 6); err != nil {
		t.Fatalf("set match: %v", err)
	}
	got, _ := store.GetWorkout(ctx, id)
	if got.MatchedActivityID != 5 || !got.IsManuallyLinked {
		t.Fatalf("expected manual link to 5, got %+v", got)
	}

	if err := store.UnlinkWorkout(ctx, id); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	got, _ = store.GetWorkout(ctx, id)
	if got.MatchedActivityID != 0 || got.IsManuallyLinked {
		t.Fatalf("expected unlinked workout, got %+v", got)
	}

	if err := store.LinkWorkout(ctx, 12345, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActivityLapsAndStreams(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	start := time.Date(2024, 6, 3, 23, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	activity := training.Activity{
		ID:               42,
		Name:             "Late tempo",
		Type:             "Run",
		StartDateLocal:   start,
		MovingTime:       3000,
		ElapsedTime:      3100,
		AverageHeartrate: 155,
	}
	if err := store.UpsertActivity(ctx, activity); err != nil {
		t.Fatalf("upsert activity: %v", err)
	}

	got, err := store.GetActivity(ctx, 42)
	if err != nil {
		t.Fatalf("get activity: %v", err)
	}
	if training.DateKey(got.StartDateLocal) != "2024-06-03" {
		t.Fatalf("expected local day preserved, got %s", got.StartDateLocal)
	}

	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	list, err := store.ListActivities(ctx, day, day)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(list) != 1 || list[0].AverageHeartrate != 155 {
		t.Fatalf("unexpected activities: %+v", list)
	}

	laps := []training.Lap{
		{LapIndex: 0, ElapsedTime: 600, MovingTime: 600, AverageHeartrate: 160},
		{LapIndex: 1, ElapsedTime: 120, MovingTime: 118, AverageHeartrate: 130},
	}
	if err := store.ReplaceLaps(ctx, 42, laps); err != nil {
		t.Fatalf("replace laps: %v", err)
	}
	if err := store.ReplaceLaps(ctx, 42, laps[:1]); err != nil {
		t.Fatalf("replace laps again: %v", err)
	}
	stored, err := store.Laps(ctx, 42)
	if err != nil {
		t.Fatalf("laps: %v", err)
	}
	if len(stored) != 1 || stored[0].ElapsedTime != 600 {
		t.Fatalf("unexpected laps: %+v", stored)
	}

	empty, err := store.Streams(ctx, 42)
	if err != nil {
		t.Fatalf("streams before insert: %v", err)
	}
	if !empty.Empty() {
		t.Fatalf("expected no streams, got %+v", empty)
	}

	streams := training.StreamSet{Time: []int{0, 1, 2}, Heartrate: []float64{120, 121, 122}}
	if err := store.ReplaceStreams(ctx, 42, streams); err != nil {
		t.Fatalf("replace streams: %v", err)
	}
	loaded, err := store.Streams(ctx, 42)
	if err != nil {
		t.Fatalf("streams: %v", err)
	}
	if !loaded.HasHeartrate() || loaded.HasWatts() || loaded.Heartrate[2] != 122 {
		t.Fatalf("unexpected streams: %+v", loaded)
	}
}

func TestComplianceResultUpsert(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if err := store.UpsertComplianceResult(ctx, ComplianceRecord{WorkoutID: 1, Score: 40, RunID: "a"}); err != nil {
		t.Fatalf("upsert result: %v", err)
	}
	if err := store.UpsertComplianceResult(ctx, ComplianceRecord{WorkoutID: 1, ActivityID: 9, Score: 90, Breakdown: `{"activityDone":100}`, RunID: "b"}); err != nil {
		t.Fatalf("upsert result again: %v", err)
	}
	rec, err := store.GetComplianceResult(ctx, 1)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if rec.Score != 90 || rec.ActivityID != 9 || rec.RunID != "b" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, err := store.GetComplianceResult(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, _, err := store.DequeueActivity(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected empty queue, got %v", err)
	}
	for _, id := range []int64{3, 4} {
		if err := store.EnqueueActivity(ctx, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	queueID, activityID, err := store.DequeueActivity(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if activityID != 3 {
		t.Fatalf("expected activity 3 first, got %d", activityID)
	}
	if err := store.MarkProcessed(ctx, queueID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	count, err := store.CountQueue(ctx)
	if err != nil {
		t.Fatalf("count queue: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 pending item, got %d", count)
	}
}

func TestQueueRetryAndDrop(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, id := range []int64{3, 4} {
		if err := store.EnqueueActivity(ctx, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	queueID, _, err := store.DequeueActivity(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	attempts, err := store.RetryActivity(ctx, queueID, time.Now().Add(time.Hour), "boom")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}

	// the deferred item no longer hides the one behind it
	nextID, activityID, err := store.DequeueActivity(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if activityID != 4 {
		t.Fatalf("expected activity 4 while 3 waits, got %d", activityID)
	}
	if err := store.DropActivity(ctx, nextID, "gone"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, _, err := store.DequeueActivity(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected nothing due, got %v", err)
	}
	count, err := store.CountQueue(ctx)
	if err != nil {
		t.Fatalf("count queue: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the deferred item still pending, got %d", count)
	}
	if _, err := store.RetryActivity(ctx, 999, time.Now(), "boom"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown item, got %v", err)
	}
}

func TestActivityNeedsRefresh(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.ActivityNeedsRefresh(ctx, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	start := time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC)
	if err := store.UpsertActivity(ctx, training.Activity{ID: 5, Type: "Ride", StartDateLocal: start}); err != nil {
		t.Fatalf("upsert activity: %v", err)
	}
	if refresh, err := store.ActivityNeedsRefresh(ctx, 5); err != nil || !refresh {
		t.Fatalf("expected activity without evidence to need refresh, got %v %v", refresh, err)
	}
	if err := store.ReplaceLaps(ctx, 5, []training.Lap{{LapIndex: 1, ElapsedTime: 600}}); err != nil {
		t.Fatalf("replace laps: %v", err)
	}
	if refresh, err := store.ActivityNeedsRefresh(ctx, 5); err != nil || refresh {
		t.Fatalf("expected activity with laps to be usable, got %v %v", refresh, err)
	}
	if err := store.MarkActivityStale(ctx, 5); err != nil {
		t.Fatalf("mark stale: %v", err)
	}
	if refresh, err := store.ActivityNeedsRefresh(ctx, 5); err != nil || !refresh {
		t.Fatalf("expected stale activity to need refresh, got %v %v", refresh, err)
	}
	if err := store.UpsertActivity(ctx, training.Activity{ID: 5, Type: "Ride", StartDateLocal: start}); err != nil {
		t.Fatalf("upsert activity: %v", err)
	}
	if refresh, err := store.ActivityNeedsRefresh(ctx, 5); err != nil || refresh {
		t.Fatalf("expected upsert to clear the stale flag, got %v %v", refresh, err)
	}
}
