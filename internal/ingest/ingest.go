package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/observability"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/storage"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/strava"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
)

const perPage = 100

type Ingestor struct {
	Store  *storage.Store
	Strava *strava.Client
}

// EnsureActivity fetches an activity and its evidence from Strava unless a
// usable copy is stored. A copy flagged stale, or one with neither laps nor
// streams, is fetched again.
func (i *Ingestor) EnsureActivity(ctx context.Context, activityID int64) error {
	refresh, err := i.Store.ActivityNeedsRefresh(ctx, activityID)
	if err == nil && !refresh {
		return nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if i.Strava == nil {
		return fmt.Errorf("strava client not configured")
	}

	activity, err := i.Strava.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}
	return i.store(ctx, activity)
}

// SyncWindow pulls every activity that started in [after, before), stores it
// with its laps and streams and queues it for compliance processing.
func (i *Ingestor) SyncWindow(ctx context.Context, after, before time.Time) (int, error) {
	if i.Strava == nil {
		return 0, fmt.Errorf("strava client not configured")
	}

	var all []training.Activity
	for page := 1; ; page++ {
		activities, err := i.Strava.ListActivities(ctx, after, before, page, perPage)
		if err != nil {
			return 0, fmt.Errorf("list page %d: %w", page, err)
		}
		all = append(all, activities...)
		if len(activities) < perPage {
			break
		}
	}

	synced := 0
	for _, activity := range all {
		if err := i.store(ctx, activity); err != nil {
			return synced, fmt.Errorf("activity %d: %w", activity.ID, err)
		}
		if err := i.Store.EnqueueActivity(ctx, activity.ID); err != nil {
			return synced, fmt.Errorf("enqueue %d: %w", activity.ID, err)
		}
		synced++
	}

	observability.RecordSync(time.Now())
	log.Printf("synced %d activities between %s and %s", synced, training.DateKey(after), training.DateKey(before))
	return synced, nil
}

// store saves the activity, then its laps and streams. Evidence failures are
// logged and skipped; compliance treats them as missing.
func (i *Ingestor) store(ctx context.Context, activity training.Activity) error {
	if err := i.Store.UpsertActivity(ctx, activity); err != nil {
		return err
	}

	laps, err := i.Strava.GetLaps(ctx, activity.ID)
	if err != nil {
		logEvidenceFailure("laps", activity.ID, err)
	} else if err := i.Store.ReplaceLaps(ctx, activity.ID, laps); err != nil {
		return fmt.Errorf("store laps: %w", err)
	}

	streams, err := i.Strava.GetStreams(ctx, activity.ID)
	if err != nil {
		logEvidenceFailure("streams", activity.ID, err)
		return nil
	}
	if streams.Empty() {
		log.Printf("activity %d (%s) has no heart rate or power streams", activity.ID, activity.Name)
		return nil
	}
	if err := i.Store.ReplaceStreams(ctx, activity.ID, streams); err != nil {
		return fmt.Errorf("store streams: %w", err)
	}
	return nil
}

func logEvidenceFailure(kind string, activityID int64, err error) {
	if strava.IsRateLimited(err) {
		log.Printf("strava rate limited fetching %s for activity %d", kind, activityID)
	} else {
		log.Printf("fetch %s for activity %d: %v", kind, activityID, err)
	}
	observability.EvidenceFetchFailures.WithLabelValues(kind).Inc()
}
