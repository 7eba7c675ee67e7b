package compliance

import (
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/detect"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/intervals"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/laps"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/structure"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/zones"
)

// evidence supplies laps and streams on demand so streams are only loaded
// when laps could not be used.
type evidence interface {
	loadLaps() []training.Lap
	loadStreams() training.StreamSet
}

type staticEvidence struct {
	lapData    []training.Lap
	streamData training.StreamSet
}

func (e staticEvidence) loadLaps() []training.Lap         { return e.lapData }
func (e staticEvidence) loadStreams() training.StreamSet { return e.streamData }

type outcome int

const (
	noData outcome = iota
	nothingDetected
	detected
)

type strategy struct {
	source intervals.Source
	run    func(ev evidence, s structure.Structure, athlete zones.Athlete) (intervals.Set, outcome)
}

// Laps first, then power, then heart rate.
var defaultChain = []strategy{
	{source: intervals.SourceLaps, run: fromLaps},
	{source: intervals.SourcePowerStream, run: fromPowerStream},
	{source: intervals.SourceHRStream, run: fromHRStream},
}

// runChain returns the first strategy that detected something. Failing that, the
// first strategy that had data supplies an all-missing set.
func runChain(chain []strategy, ev evidence, s structure.Structure, athlete zones.Athlete) (intervals.Set, bool) {
	var fallback *intervals.Set
	for _, st := range chain {
		set, out := st.run(ev, s, athlete)
		switch out {
		case detected:
			return set, true
		case nothingDetected:
			if fallback == nil {
				fallback = &set
			}
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return intervals.Set{}, false
}

func fromLaps(ev evidence, s structure.Structure, athlete zones.Athlete) (intervals.Set, outcome) {
	set, ok := laps.Map(ev.loadLaps(), s, athlete)
	if !ok {
		return intervals.Set{}, noData
	}
	return set, detected
}

func fromPowerStream(ev evidence, s structure.Structure, athlete zones.Athlete) (intervals.Set, outcome) {
	streams := ev.loadStreams()
	if !streams.HasWatts() || !athlete.Power.Valid() {
		return intervals.Set{}, noData
	}
	hr := streams.Heartrate
	if !streams.HasHeartrate() {
		hr = nil
	}
	segments := detect.DetectPower(streams.Time, streams.Watts, hr, athlete.Power, s.TargetZone, detect.PowerOptions(s.DurationSec))
	observed := make([]intervals.Observation, 0, len(segments))
	for _, seg := range segments {
		observed = append(observed, intervals.Observation{
			DurationSec: seg.DurationSec,
			AvgHR:       seg.AvgHR,
			AvgPower:    seg.AvgValue,
			Zone:        seg.Zone,
		})
	}
	return streamSet(intervals.SourcePowerStream, s, observed)
}

func fromHRStream(ev evidence, s structure.Structure, athlete zones.Athlete) (intervals.Set, outcome) {
	streams := ev.loadStreams()
	if !streams.HasHeartrate() || !athlete.HeartRate.Valid() {
		return intervals.Set{}, noData
	}
	segments := detect.Detect(streams.Time, streams.Heartrate, athlete.HeartRate, s.TargetZone, detect.HeartRateOptions(s.DurationSec))
	observed := make([]intervals.Observation, 0, len(segments))
	for _, seg := range segments {
		observed = append(observed, intervals.Observation{
			DurationSec: seg.DurationSec,
			AvgHR:       seg.AvgValue,
			Zone:        seg.Zone,
		})
	}
	return streamSet(intervals.SourceHRStream, s, observed)
}

func streamSet(source intervals.Source, s structure.Structure, observed []intervals.Observation) (intervals.Set, outcome) {
	set := intervals.NewSet(source, s.Count, s.DurationSec, s.TargetZone, observed)
	set.Structure = s.String()
	if len(observed) == 0 {
		return set, nothingDetected
	}
	return set, detected
}
