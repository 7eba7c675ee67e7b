package compliance

import (
	"context"
	"log"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/observability"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/zones"
)

// Evidence loads supplementary per-activity data. Implementations may return an
// empty result with a nil error when nothing is stored.
type Evidence interface {
	Laps(ctx context.Context, activityID int64) ([]training.Lap, error)
	Streams(ctx context.Context, activityID int64) (training.StreamSet, error)
}

type Engine struct {
	Evidence Evidence
}

// Evaluate scores one workout against its matched activity, loading laps and
// then streams only as the interval chain needs them. Load failures are logged
// and treated as missing evidence.
func (e *Engine) Evaluate(ctx context.Context, workout training.Workout, activity *training.Activity, athlete zones.Athlete) Result {
	if activity == nil {
		return Result{}
	}
	ev := &lazyEvidence{ctx: ctx, source: e.Evidence, activityID: activity.ID}
	return evaluate(workout, activity, athlete, ev)
}

type lazyEvidence struct {
	ctx        context.Context
	source     Evidence
	activityID int64

	lapsLoaded    bool
	lapData       []training.Lap
	streamsLoaded bool
	streamData    training.StreamSet
}

func (l *lazyEvidence) loadLaps() []training.Lap {
	if l.lapsLoaded || l.source == nil {
		return l.lapData
	}
	l.lapsLoaded = true
	laps, err := l.source.Laps(l.ctx, l.activityID)
	if err != nil {
		log.Printf("compliance: laps for activity %d: %v", l.activityID, err)
		observability.EvidenceFetchFailures.WithLabelValues("laps").Inc()
		return nil
	}
	l.lapData = laps
	return l.lapData
}

func (l *lazyEvidence) loadStreams() training.StreamSet {
	if l.streamsLoaded || l.source == nil {
		return l.streamData
	}
	l.streamsLoaded = true
	streams, err := l.source.Streams(l.ctx, l.activityID)
	if err != nil {
		log.Printf("compliance: streams for activity %d: %v", l.activityID, err)
		observability.EvidenceFetchFailures.WithLabelValues("streams").Inc()
		return training.StreamSet{}
	}
	l.streamData = streams
	return l.streamData
}
