// Package fitfile reads activity FIT files into the records the compliance
// engine scores, for sessions that never went through Strava.
package fitfile

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/tormoder/fit"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
)

type Recording struct {
	Activity training.Activity
	Laps     []training.Lap
	Streams  training.StreamSet
}

var sportTypes = map[fit.Sport]string{
	fit.SportCycling:  "Ride",
	fit.SportRunning:  "Run",
	fit.SportSwimming: "Swim",
	fit.SportWalking:  "Walk",
	fit.SportHiking:   "Hike",
	fit.SportTraining: "WeightTraining",
}

// Decode parses an activity file. Summary values come from the first session
// and fall back to the record stream when the device left them unset.
func Decode(r io.Reader) (Recording, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return Recording{}, fmt.Errorf("decode FIT file: %w", err)
	}
	file, err := decoded.Activity()
	if err != nil {
		return Recording{}, fmt.Errorf("activity FIT expected: %w", err)
	}

	var rec Recording
	start := rec.buildStreams(file.Records)

	for idx, lap := range file.Laps {
		if lap == nil {
			continue
		}
		rec.Laps = append(rec.Laps, training.Lap{
			LapIndex:         idx + 1,
			ElapsedTime:      seconds(lap.GetTotalElapsedTimeScaled()),
			MovingTime:       seconds(lap.GetTotalTimerTimeScaled()),
			AverageHeartrate: float64(validUint8(lap.AvgHeartRate)),
			AverageWatts:     float64(validUint16(lap.AvgPower)),
		})
	}

	a := &rec.Activity
	if len(file.Sessions) > 0 && file.Sessions[0] != nil {
		session := file.Sessions[0]
		if t := validTime(session.StartTime); !t.IsZero() {
			start = t
		}
		a.Type = sportName(session.Sport)
		a.ElapsedTime = seconds(session.GetTotalElapsedTimeScaled())
		a.MovingTime = seconds(session.GetTotalTimerTimeScaled())
		a.Distance = positive(session.GetTotalDistanceScaled())
		a.AverageHeartrate = float64(validUint8(session.AvgHeartRate))
		a.AverageWatts = float64(validUint16(session.AvgPower))
		a.WeightedAverageWatts = float64(validUint16(session.NormalizedPower))
	}

	if n := len(rec.Streams.Time); n > 0 {
		span := rec.Streams.Time[n-1]
		if a.ElapsedTime == 0 {
			a.ElapsedTime = span
		}
		if a.MovingTime == 0 {
			a.MovingTime = a.ElapsedTime
		}
	}
	if a.AverageHeartrate == 0 && rec.Streams.HasHeartrate() {
		a.AverageHeartrate = mean(rec.Streams.Heartrate)
	}
	if a.AverageWatts == 0 && rec.Streams.HasWatts() {
		a.AverageWatts = mean(rec.Streams.Watts)
	}

	a.StartDateLocal = localStart(start, file.Activity)
	return rec, nil
}

// buildStreams fills the time, heart rate and power series from records and
// returns the first record time. A sample missing on one record repeats the
// previous value; a metric missing on every record is left nil.
func (rec *Recording) buildStreams(records []*fit.RecordMsg) time.Time {
	var (
		first          time.Time
		hr, watts      []float64
		lastHR, lastW  float64
		hasHR, hasWatt bool
	)
	for _, r := range records {
		if r == nil {
			continue
		}
		ts := validTime(r.Timestamp)
		if ts.IsZero() {
			continue
		}
		if first.IsZero() {
			first = ts
		}
		rec.Streams.Time = append(rec.Streams.Time, int(ts.Sub(first).Seconds()))

		if r.HeartRate != math.MaxUint8 {
			lastHR = float64(r.HeartRate)
			hasHR = true
		}
		if r.Power != math.MaxUint16 {
			lastW = float64(r.Power)
			hasWatt = true
		}
		hr = append(hr, lastHR)
		watts = append(watts, lastW)
	}
	if hasHR {
		rec.Streams.Heartrate = hr
	}
	if hasWatt {
		rec.Streams.Watts = watts
	}
	return first
}

// localStart shifts start by the device's local offset and drops the zone so
// the calendar day reads as the athlete saw it.
func localStart(start time.Time, msg *fit.ActivityMsg) time.Time {
	if start.IsZero() {
		return start
	}
	start = start.UTC()
	if msg != nil {
		ts, local := validTime(msg.Timestamp), validTime(msg.LocalTimestamp)
		if !ts.IsZero() && !local.IsZero() {
			start = start.Add(local.Sub(ts))
		}
	}
	return start
}

func sportName(s fit.Sport) string {
	if name, ok := sportTypes[s]; ok {
		return name
	}
	return fmt.Sprint(s)
}

func validTime(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func validUint8(v uint8) uint8 {
	if v == math.MaxUint8 {
		return 0
	}
	return v
}

func validUint16(v uint16) uint16 {
	if v == math.MaxUint16 {
		return 0
	}
	return v
}

func positive(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}

func seconds(v float64) int {
	return int(math.Round(positive(v)))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
