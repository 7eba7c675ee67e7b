// Package intervals grades individual work intervals against their target and
// aggregates them into a fixed-size result set.
package intervals

import "math"

type Status string

const (
	StatusCompleted Status = "completed"
	StatusTooShort  Status = "too_short"
	StatusTooLong   Status = "too_long"
	StatusWrongZone Status = "wrong_zone"
	StatusMissing   Status = "missing"
)

type Source string

const (
	SourceLaps        Source = "laps"
	SourcePowerStream Source = "power_stream"
	SourceHRStream    Source = "hr_stream"
)

const (
	minRatio = 0.8
	maxRatio = 1.2
)

// Degraded scores, keyed by how far the actual zone is from the target.
const (
	scoreCompleted = 100
	scoreZoneMatch = 70
	scoreZoneClose = 50
	scoreOffZone   = 30
	scoreMissing   = 0
)

// Grade applies the per-interval table: duration ratio against target, then
// zone distance. It is a pure function of its inputs.
func Grade(ratio float64, actualZone, targetZone int) (Status, int) {
	inRange := ratio >= minRatio && ratio <= maxRatio
	match := actualZone == targetZone
	near := abs(actualZone-targetZone) == 1

	switch {
	case inRange && match:
		return StatusCompleted, scoreCompleted
	case ratio < minRatio:
		return StatusTooShort, degraded(match, near)
	case ratio > maxRatio:
		return StatusTooLong, degraded(match, near)
	case near:
		return StatusWrongZone, scoreZoneClose
	default:
		return StatusWrongZone, scoreOffZone
	}
}

func degraded(match, near bool) int {
	switch {
	case match:
		return scoreZoneMatch
	case near:
		return scoreZoneClose
	default:
		return scoreOffZone
	}
}

type Interval struct {
	Index             int     `json:"index"`
	DurationSec       int     `json:"durationSec"`
	TargetDurationSec int     `json:"targetDurationSec"`
	AvgHR             float64 `json:"avgHR"`
	AvgPower          float64 `json:"avgPower,omitempty"`
	ActualZone        int     `json:"actualZone,omitempty"`
	TargetZone        int     `json:"targetZone"`
	Status            Status  `json:"status"`
	Score             int     `json:"score"`
}

// Observation is a measured work period before grading.
type Observation struct {
	DurationSec int
	AvgHR       float64
	AvgPower    float64
	Zone        int
}

// Set is the graded outcome for one workout. Intervals always holds Expected entries.
type Set struct {
	Expected  int        `json:"expected"`
	Completed int        `json:"completed"`
	Score     int        `json:"score"`
	Source    Source     `json:"source"`
	Structure string     `json:"structure,omitempty"`
	Intervals []Interval `json:"intervals"`
}

// NewSet grades observations in order against the target. Extra observations
// are ignored and any shortfall is filled with missing slots.
func NewSet(source Source, expected, targetDurationSec, targetZone int, observed []Observation) Set {
	if expected < 0 {
		expected = 0
	}
	set := Set{
		Expected:  expected,
		Source:    source,
		Intervals: make([]Interval, 0, expected),
	}
	total := 0
	for i := 0; i < expected; i++ {
		slot := Interval{
			Index:             i + 1,
			TargetDurationSec: targetDurationSec,
			TargetZone:        targetZone,
			Status:            StatusMissing,
			Score:             scoreMissing,
		}
		if i < len(observed) {
			obs := observed[i]
			slot.DurationSec = obs.DurationSec
			slot.AvgHR = obs.AvgHR
			slot.AvgPower = obs.AvgPower
			slot.ActualZone = obs.Zone
			ratio := 0.0
			if targetDurationSec > 0 {
				ratio = float64(obs.DurationSec) / float64(targetDurationSec)
			}
			slot.Status, slot.Score = Grade(ratio, obs.Zone, targetZone)
		}
		if slot.Status == StatusCompleted {
			set.Completed++
		}
		total += slot.Score
		set.Intervals = append(set.Intervals, slot)
	}
	if expected > 0 {
		set.Score = int(math.Round(float64(total) / float64(expected)))
	}
	return set
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
