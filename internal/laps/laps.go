// Package laps aligns an activity's lap splits to an expected interval structure.
package laps

import (
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/intervals"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/structure"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/zones"
)

const (
	edgeLapFactor     = 1.5
	shortLapFactor    = 0.5
	recoveryZoneLimit = 2
	minLaps           = 2
)

// Map returns false when laps cannot stand in for intervals: too few laps, no
// target zone, or nothing left after warm-up, cool-down and recovery laps are removed.
func Map(laps []training.Lap, s structure.Structure, athlete zones.Athlete) (intervals.Set, bool) {
	if len(laps) < minLaps || s.Count <= 0 || s.DurationSec <= 0 || !s.HasTargetZone() {
		return intervals.Set{}, false
	}

	work := trimEdges(laps, s)
	kept := make([]training.Lap, 0, len(work))
	for _, lap := range work {
		if isRecovery(lap, s, athlete) {
			continue
		}
		kept = append(kept, lap)
	}
	if len(kept) == 0 {
		return intervals.Set{}, false
	}
	if len(kept) > s.Count {
		kept = kept[:s.Count]
	}

	observed := make([]intervals.Observation, 0, len(kept))
	for _, lap := range kept {
		observed = append(observed, intervals.Observation{
			DurationSec: lap.DurationSec(),
			AvgHR:       lap.AverageHeartrate,
			AvgPower:    lap.AverageWatts,
			Zone:        lapZone(lap, athlete),
		})
	}
	set := intervals.NewSet(intervals.SourceLaps, s.Count, s.DurationSec, s.TargetZone, observed)
	set.Structure = s.String()
	return set, true
}

// trimEdges drops a long first lap (warm-up) and then a long last lap
// (cool-down), each only while there are more laps than intervals.
func trimEdges(laps []training.Lap, s structure.Structure) []training.Lap {
	limit := edgeLapFactor * float64(s.DurationSec)
	out := laps
	if len(out) > s.Count && float64(out[0].DurationSec()) > limit {
		out = out[1:]
	}
	if len(out) > s.Count && float64(out[len(out)-1].DurationSec()) > limit {
		out = out[:len(out)-1]
	}
	return out
}

// isRecovery decides whether a lap sits between intervals. For zone 1-2 work the
// ceiling and two-zones-below tests cannot separate rest from work, so a short
// lap below the target zone is enough.
func isRecovery(lap training.Lap, s structure.Structure, athlete zones.Athlete) bool {
	short := float64(lap.DurationSec()) <= shortLapFactor*float64(s.DurationSec)
	if s.TargetZone <= recoveryZoneLimit {
		return short && belowTarget(lap, s.TargetZone, athlete)
	}
	hrLow := lowHeartRate(lap, s.TargetZone, athlete.HeartRate)
	powerLow := lowPower(lap, athlete.Power)
	if short && (hrLow || powerLow) {
		return true
	}
	return hrLow && powerLow
}

func lowHeartRate(lap training.Lap, targetZone int, table zones.Table) bool {
	if lap.AverageHeartrate <= 0 || !table.Valid() {
		return false
	}
	if lap.AverageHeartrate <= table[recoveryZoneLimit-1].Max {
		return true
	}
	return table.Classify(lap.AverageHeartrate) <= targetZone-2
}

func lowPower(lap training.Lap, table zones.Table) bool {
	if lap.AverageWatts <= 0 || !table.Valid() {
		return false
	}
	return lap.AverageWatts <= table[recoveryZoneLimit-1].Max
}

func belowTarget(lap training.Lap, targetZone int, athlete zones.Athlete) bool {
	zone := lapZone(lap, athlete)
	return zone > 0 && zone < targetZone
}

// lapZone prefers power when a full power table and lap power exist.
func lapZone(lap training.Lap, athlete zones.Athlete) int {
	if athlete.Power.Valid() && lap.AverageWatts > 0 {
		return athlete.Power.Classify(lap.AverageWatts)
	}
	if athlete.HeartRate.Valid() && lap.AverageHeartrate > 0 {
		return athlete.HeartRate.Classify(lap.AverageHeartrate)
	}
	return 0
}
