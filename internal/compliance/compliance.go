// Package compliance scores how closely a recorded activity followed its planned workout.
package compliance

import (
	"math"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/intensity"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/intervals"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/structure"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/zones"
)

// Weights when an interval structure was extracted and evaluated.
const (
	intervalWeight         = 0.7
	intervalDurationWeight = 0.2
	intervalActivityWeight = 0.1
)

// Weights otherwise. The zone share is split across whichever of HR and power apply.
const (
	durationWeight  = 0.4
	zoneShareWeight = 0.4
	activityWeight  = 0.2
)

const (
	activityDoneScore = 100
	hrTolerance       = 10
	powerTolerance    = 20
)

type ZoneDetails struct {
	Metric     intensity.Metric `json:"metric"`
	Target     string           `json:"target"`
	Rule       string           `json:"rule"`
	Actual     float64          `json:"actual"`
	ActualZone int              `json:"actualZone,omitempty"`
	TargetZone int              `json:"targetZone,omitempty"`
}

// Breakdown fields are nil when the dimension could not be evaluated.
type Breakdown struct {
	Duration      *int           `json:"duration"`
	DurationRatio *float64       `json:"durationRatio"`
	HRZone        *int           `json:"hrZone"`
	HRDetails     *ZoneDetails   `json:"hrDetails"`
	PowerZone     *int           `json:"powerZone"`
	PowerDetails  *ZoneDetails   `json:"powerDetails"`
	Intervals     *intervals.Set `json:"intervals"`
	ActivityDone  int            `json:"activityDone"`
}

type Result struct {
	Score     int       `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// IntervalSource reports which evidence produced the interval set, or "".
func (r Result) IntervalSource() string {
	if r.Breakdown.Intervals == nil {
		return ""
	}
	return string(r.Breakdown.Intervals.Source)
}

// Input carries everything needed for one workout. A nil Activity means no match.
type Input struct {
	Workout  training.Workout
	Activity *training.Activity
	Athlete  zones.Athlete
	Laps     []training.Lap
	Streams  training.StreamSet
}

// Compute scores already-fetched evidence. It never fails: anything that cannot
// be evaluated is left out of the weighted sum.
func Compute(in Input) Result {
	return evaluate(in.Workout, in.Activity, in.Athlete, staticEvidence{lapData: in.Laps, streamData: in.Streams})
}

func evaluate(workout training.Workout, activity *training.Activity, athlete zones.Athlete, ev evidence) Result {
	if activity == nil {
		return Result{}
	}

	var b Breakdown
	b.ActivityDone = activityDoneScore

	if score, ratio, ok := durationScore(workout, *activity); ok {
		b.Duration = &score
		b.DurationRatio = &ratio
	}
	if score, details, ok := zoneScore(workout.IntensityTarget, intensity.HeartRate, activity.AverageHeartrate, athlete.HeartRate, hrTolerance); ok {
		b.HRZone = &score
		b.HRDetails = &details
	}
	if score, details, ok := zoneScore(workout.IntensityTarget, intensity.Power, activity.Power(), athlete.Power, powerTolerance); ok {
		b.PowerZone = &score
		b.PowerDetails = &details
	}
	if s, ok := structure.Extract(workout, athlete); ok && s.HasTargetZone() {
		if set, ok := runChain(defaultChain, ev, s, athlete); ok {
			b.Intervals = &set
		}
	}

	return Result{Score: weightedScore(b), Breakdown: b}
}

type weighted struct {
	weight float64
	score  int
}

func weightedScore(b Breakdown) int {
	var parts []weighted
	if b.Intervals != nil {
		parts = append(parts, weighted{intervalWeight, b.Intervals.Score})
		if b.Duration != nil {
			parts = append(parts, weighted{intervalDurationWeight, *b.Duration})
		}
		parts = append(parts, weighted{intervalActivityWeight, b.ActivityDone})
	} else {
		if b.Duration != nil {
			parts = append(parts, weighted{durationWeight, *b.Duration})
		}
		switch {
		case b.HRZone != nil && b.PowerZone != nil:
			parts = append(parts, weighted{zoneShareWeight / 2, *b.HRZone}, weighted{zoneShareWeight / 2, *b.PowerZone})
		case b.HRZone != nil:
			parts = append(parts, weighted{zoneShareWeight, *b.HRZone})
		case b.PowerZone != nil:
			parts = append(parts, weighted{zoneShareWeight, *b.PowerZone})
		}
		parts = append(parts, weighted{activityWeight, b.ActivityDone})
	}

	var sum, total float64
	for _, p := range parts {
		sum += p.weight * float64(p.score)
		total += p.weight
	}
	if total == 0 {
		return 0
	}
	return clamp(int(math.Round(sum / total)))
}

// DurationScore maps actual/target minutes onto the fixed bands.
func DurationScore(ratio float64) int {
	switch {
	case ratio >= 0.8 && ratio <= 1.2:
		return 100
	case ratio >= 0.6 && ratio <= 1.4:
		return 70
	case ratio >= 0.4:
		return 40
	default:
		return 20
	}
}

func durationScore(workout training.Workout, activity training.Activity) (int, float64, bool) {
	if !workout.HasDurationTarget() {
		return 0, 0, false
	}
	ratio := float64(activity.MovingTime) / 60 / workout.DurationTargetMinutes
	return DurationScore(ratio), math.Round(ratio*100) / 100, true
}

// zoneScore grades a whole-session average against the intensity target.
// In band scores 100, within tolerance of the band 70, adjacent zone 60, else 30.
func zoneScore(text string, metric intensity.Metric, actual float64, table zones.Table, tolerance float64) (int, ZoneDetails, bool) {
	if actual <= 0 {
		return 0, ZoneDetails{}, false
	}
	target, ok := intensity.Interpret(text, metric)
	if !ok {
		return 0, ZoneDetails{}, false
	}
	details := ZoneDetails{Metric: metric, Target: target.String(), Rule: target.Rule, Actual: math.Round(actual)}
	if table.Valid() {
		details.ActualZone = table.Classify(actual)
	}

	if target.Kind == intensity.KindRange {
		band := zones.Range{Min: target.Min, Max: target.Max}
		if table.Valid() {
			details.TargetZone = table.Classify(band.Mid())
		}
		return bandScore(actual, band, tolerance), details, true
	}

	if !table.Valid() {
		return 0, ZoneDetails{}, false
	}
	details.TargetZone = target.Zone
	if details.ActualZone == target.Zone {
		return 100, details, true
	}
	band, _ := table.Zone(target.Zone)
	if near(actual, band, tolerance) {
		return 70, details, true
	}
	if abs(details.ActualZone-target.Zone) == 1 {
		return 60, details, true
	}
	return 30, details, true
}

func bandScore(actual float64, band zones.Range, tolerance float64) int {
	switch {
	case band.Contains(actual):
		return 100
	case near(actual, band, tolerance):
		return 70
	default:
		return 30
	}
}

func near(actual float64, band zones.Range, tolerance float64) bool {
	return actual >= band.Min-tolerance && actual <= band.Max+tolerance
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
