package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/intervals"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/zones"
)

var (
	hrZones    = zones.Table{{Min: 100, Max: 130}, {Min: 131, Max: 150}, {Min: 151, Max: 165}, {Min: 166, Max: 178}, {Min: 179, Max: 210}}
	powerZones = zones.Table{{Min: 0, Max: 150}, {Min: 151, Max: 205}, {Min: 206, Max: 245}, {Min: 246, Max: 285}, {Min: 286, Max: 600}}
)

func constantStream(seconds int, hr, watts float64) training.StreamSet {
	s := training.StreamSet{}
	for i := 0; i < seconds; i++ {
		s.Time = append(s.Time, i)
		if hr > 0 {
			s.Heartrate = append(s.Heartrate, hr)
		}
		if watts > 0 {
			s.Watts = append(s.Watts, watts)
		}
	}
	return s
}

func TestComputeEnduranceInZone(t *testing.T) {
	result := Compute(Input{
		Workout:  training.Workout{SessionName: "Endurance ride", DurationTargetMinutes: 60, IntensityTarget: "Z2 endurance"},
		Activity: &training.Activity{ID: 1, Type: "Ride", MovingTime: 3600, AverageHeartrate: 140},
		Athlete:  zones.Athlete{HeartRate: hrZones},
	})

	require.Equal(t, 100, result.Score)
	require.NotNil(t, result.Breakdown.Duration)
	require.Equal(t, 100, *result.Breakdown.Duration)
	require.Equal(t, 1.0, *result.Breakdown.DurationRatio)
	require.NotNil(t, result.Breakdown.HRZone)
	require.Equal(t, 100, *result.Breakdown.HRZone)
	require.Equal(t, 2, result.Breakdown.HRDetails.ActualZone)
	require.Nil(t, result.Breakdown.PowerZone)
	require.Nil(t, result.Breakdown.Intervals)
	require.Equal(t, 100, result.Breakdown.ActivityDone)
}

func TestComputeIntervalsAllMissing(t *testing.T) {
	result := Compute(Input{
		Workout:  training.Workout{SessionName: "3x10min tempo", DurationTargetMinutes: 45},
		Activity: &training.Activity{ID: 2, MovingTime: 2700, AverageHeartrate: 112},
		Athlete:  zones.Athlete{HeartRate: hrZones},
		Streams:  constantStream(2700, 110, 0),
	})

	set := result.Breakdown.Intervals
	require.NotNil(t, set)
	require.Equal(t, intervals.SourceHRStream, set.Source)
	require.Equal(t, 0, set.Completed)
	require.Equal(t, 0, set.Score)
	require.Len(t, set.Intervals, 3)
	for _, slot := range set.Intervals {
		require.Equal(t, intervals.StatusMissing, slot.Status)
	}
	// 0.7*0 + 0.2*100 + 0.1*100
	require.Equal(t, 30, result.Score)
}

func TestComputeNoActivity(t *testing.T) {
	result := Compute(Input{
		Workout: training.Workout{SessionName: "Tempo", DurationTargetMinutes: 60, IntensityTarget: "Z3"},
		Athlete: zones.Athlete{HeartRate: hrZones},
	})
	require.Equal(t, 0, result.Score)
	require.Equal(t, 0, result.Breakdown.ActivityDone)

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	require.JSONEq(t, `{"score":0,"breakdown":{"duration":null,"durationRatio":null,"hrZone":null,"hrDetails":null,"powerZone":null,"powerDetails":null,"intervals":null,"activityDone":0}}`, string(raw))
}

func TestComputeSplitsZoneShare(t *testing.T) {
	result := Compute(Input{
		Workout:  training.Workout{SessionName: "Steady", DurationTargetMinutes: 60, IntensityTarget: "Z3"},
		Activity: &training.Activity{MovingTime: 3600, AverageHeartrate: 158, AverageWatts: 190},
		Athlete:  zones.Athlete{HeartRate: hrZones, Power: powerZones},
	})
	require.Equal(t, 100, *result.Breakdown.HRZone)
	require.Equal(t, 70, *result.Breakdown.PowerZone)
	// 0.4*100 + 0.2*100 + 0.2*70 + 0.2*100
	require.Equal(t, 94, result.Score)
}

func TestComputeAbsoluteRange(t *testing.T) {
	workout := training.Workout{SessionName: "Aerobic", IntensityTarget: "140-150 bpm"}
	athlete := zones.Athlete{HeartRate: hrZones}

	near := Compute(Input{Workout: workout, Activity: &training.Activity{AverageHeartrate: 155}, Athlete: athlete})
	require.Equal(t, 70, *near.Breakdown.HRZone)
	require.Nil(t, near.Breakdown.Duration)
	// (0.4*70 + 0.2*100) / 0.6
	require.Equal(t, 80, near.Score)

	far := Compute(Input{Workout: workout, Activity: &training.Activity{AverageHeartrate: 175}, Athlete: athlete})
	require.Equal(t, 30, *far.Breakdown.HRZone)
}

func TestComputeUndeterminedIntensitySkipsZones(t *testing.T) {
	result := Compute(Input{
		Workout:  training.Workout{SessionName: "Ride", DurationTargetMinutes: 60, IntensityTarget: "as you feel"},
		Activity: &training.Activity{MovingTime: 1800, AverageHeartrate: 150, AverageWatts: 200},
		Athlete:  zones.Athlete{HeartRate: hrZones, Power: powerZones},
	})
	require.Nil(t, result.Breakdown.HRZone)
	require.Nil(t, result.Breakdown.PowerZone)
	require.Equal(t, 40, *result.Breakdown.Duration)
	// (0.4*40 + 0.2*100) / 0.6
	require.Equal(t, 60, result.Score)
}

func TestComputePrefersPowerStream(t *testing.T) {
	streams := training.StreamSet{}
	for i := 0; i < 1500; i++ {
		streams.Time = append(streams.Time, i)
		w, hr := 120.0, 120.0
		if i >= 300 && i < 900 {
			w, hr = 260, 170
		}
		streams.Watts = append(streams.Watts, w)
		streams.Heartrate = append(streams.Heartrate, hr)
	}
	result := Compute(Input{
		Workout:  training.Workout{SessionName: "1x10min @ Z4"},
		Activity: &training.Activity{MovingTime: 1500},
		Athlete:  zones.Athlete{HeartRate: hrZones, Power: powerZones},
		Streams:  streams,
	})
	set := result.Breakdown.Intervals
	require.NotNil(t, set)
	require.Equal(t, intervals.SourcePowerStream, set.Source)
	require.Equal(t, 1, set.Completed)
	require.InDelta(t, 170, set.Intervals[0].AvgHR, 0.001)
	// (0.7*100 + 0.1*100) / 0.8
	require.Equal(t, 100, result.Score)
}

func TestDurationScoreBands(t *testing.T) {
	cases := map[float64]int{
		1.0:  100,
		0.8:  100,
		1.2:  100,
		0.7:  70,
		1.3:  70,
		0.5:  40,
		1.6:  40,
		0.39: 20,
		0:    20,
	}
	for ratio, want := range cases {
		require.Equal(t, want, DurationScore(ratio), "ratio %v", ratio)
	}
}

type fakeEvidence struct {
	laps        []training.Lap
	streams     training.StreamSet
	lapsErr     error
	streamsErr  error
	streamCalls int
}

func (f *fakeEvidence) Laps(context.Context, int64) ([]training.Lap, error) {
	return f.laps, f.lapsErr
}

func (f *fakeEvidence) Streams(context.Context, int64) (training.StreamSet, error) {
	f.streamCalls++
	return f.streams, f.streamsErr
}

func TestEngineUsesLapsBeforeStreams(t *testing.T) {
	ev := &fakeEvidence{laps: []training.Lap{
		{LapIndex: 0, ElapsedTime: 600, AverageHeartrate: 170},
		{LapIndex: 1, ElapsedTime: 120, AverageHeartrate: 120},
		{LapIndex: 2, ElapsedTime: 600, AverageHeartrate: 171},
	}}
	engine := &Engine{Evidence: ev}
	result := engine.Evaluate(context.Background(),
		training.Workout{SessionName: "2x10min threshold", DurationTargetMinutes: 40},
		&training.Activity{ID: 9, MovingTime: 2400},
		zones.Athlete{HeartRate: hrZones},
	)
	require.NotNil(t, result.Breakdown.Intervals)
	require.Equal(t, intervals.SourceLaps, result.Breakdown.Intervals.Source)
	require.Equal(t, 2, result.Breakdown.Intervals.Completed)
	require.Equal(t, 0, ev.streamCalls)
	require.Equal(t, 100, result.Score)
}

func TestEngineSwallowsFetchErrors(t *testing.T) {
	ev := &fakeEvidence{lapsErr: errors.New("boom"), streamsErr: errors.New("rate limited")}
	engine := &Engine{Evidence: ev}
	result := engine.Evaluate(context.Background(),
		training.Workout{SessionName: "3x10min tempo", DurationTargetMinutes: 60, IntensityTarget: "Z3"},
		&training.Activity{ID: 3, MovingTime: 3600, AverageHeartrate: 158},
		zones.Athlete{HeartRate: hrZones},
	)
	require.Nil(t, result.Breakdown.Intervals)
	require.Equal(t, 1, ev.streamCalls)
	require.Equal(t, 100, result.Score)
}

func TestEngineNoActivity(t *testing.T) {
	engine := &Engine{Evidence: &fakeEvidence{}}
	result := engine.Evaluate(context.Background(), training.Workout{SessionName: "Run"}, nil, zones.Athlete{})
	require.Equal(t, Result{}, result)
}
