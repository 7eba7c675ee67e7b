// Package detect segments heart-rate and power streams into sustained work
// intervals using hysteresis thresholds around a target zone.
package detect

import (
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/zones"
)

const (
	HeartRateMargin = 5
	PowerMargin     = 10

	DefaultWarmupSec   = 300
	DefaultDebounceSec = 10
	DefaultAcceptRatio = 0.5
)

type Options struct {
	// Margin sets entry at zoneMin-Margin and exit at zoneMin-2*Margin.
	Margin      float64
	WarmupSec   int
	DebounceSec int
	// Intervals shorter than AcceptRatio*MinDurationSec are dropped.
	MinDurationSec int
	AcceptRatio    float64
}

func HeartRateOptions(minDurationSec int) Options {
	return Options{
		Margin:         HeartRateMargin,
		WarmupSec:      DefaultWarmupSec,
		DebounceSec:    DefaultDebounceSec,
		MinDurationSec: minDurationSec,
		AcceptRatio:    DefaultAcceptRatio,
	}
}

func PowerOptions(minDurationSec int) Options {
	opts := HeartRateOptions(minDurationSec)
	opts.Margin = PowerMargin
	return opts
}

type Segment struct {
	StartSec    int     `json:"startSec"`
	EndSec      int     `json:"endSec"`
	DurationSec int     `json:"durationSec"`
	AvgValue    float64 `json:"avgValue"`
	MaxValue    float64 `json:"maxValue"`
	AvgHR       float64 `json:"avgHR,omitempty"`
	Zone        int     `json:"zone"`
}

type state int

const (
	outside state = iota
	inside
)

type accumulator struct {
	sum     float64
	count   int
	max     float64
	hrSum   float64
	hrCount int
}

func (a *accumulator) add(value, hr float64, hasHR bool) {
	a.sum += value
	a.count++
	if value > a.max {
		a.max = value
	}
	if hasHR && hr > 0 {
		a.hrSum += hr
		a.hrCount++
	}
}

func (a *accumulator) merge(other accumulator) {
	a.sum += other.sum
	a.count += other.count
	if other.max > a.max {
		a.max = other.max
	}
	a.hrSum += other.hrSum
	a.hrCount += other.hrCount
}

// tracker is the whole detector state carried across the forward pass.
type tracker struct {
	state   state
	start   int
	run     int // index where the current debounce run began, -1 when none
	acc     accumulator
	pending accumulator
}

func (t *tracker) resetRun() {
	t.run = -1
	t.pending = accumulator{}
}

// Detect finds intervals in a single metric stream. Mismatched or empty input,
// an invalid table, or a target zone outside 1..5 yield no segments.
func Detect(time []int, values []float64, table zones.Table, targetZone int, opts Options) []Segment {
	return detect(time, values, nil, table, targetZone, opts)
}

// DetectPower runs detection on watts and carries the average heart rate of
// each segment when an index-aligned heart-rate stream is supplied.
func DetectPower(time []int, watts, hr []float64, table zones.Table, targetZone int, opts Options) []Segment {
	if len(hr) != len(time) {
		hr = nil
	}
	return detect(time, watts, hr, table, targetZone, opts)
}

func detect(time []int, values, hr []float64, table zones.Table, targetZone int, opts Options) []Segment {
	if len(time) == 0 || len(values) != len(time) {
		return nil
	}
	band, ok := table.Zone(targetZone)
	if !ok || !table.Valid() {
		return nil
	}
	entry := band.Min - opts.Margin
	exit := band.Min - 2*opts.Margin
	hasHR := hr != nil

	var segments []Segment
	t := tracker{state: outside, run: -1}

	closeInterval := func(end int) {
		duration := end - t.start
		if accepted(duration, opts) && t.acc.count > 0 {
			avg := t.acc.sum / float64(t.acc.count)
			seg := Segment{
				StartSec:    t.start,
				EndSec:      end,
				DurationSec: duration,
				AvgValue:    avg,
				MaxValue:    t.acc.max,
				Zone:        table.Classify(avg),
			}
			if t.acc.hrCount > 0 {
				seg.AvgHR = t.acc.hrSum / float64(t.acc.hrCount)
			}
			segments = append(segments, seg)
		}
		t.state = outside
		t.acc = accumulator{}
		t.resetRun()
	}

	for i, ts := range time {
		if ts < opts.WarmupSec {
			continue
		}
		v := values[i]
		h := 0.0
		if hasHR {
			h = hr[i]
		}

		switch t.state {
		case outside:
			if v < entry {
				t.resetRun()
				continue
			}
			if t.run < 0 {
				t.run = i
			}
			t.pending.add(v, h, hasHR)
			if ts-time[t.run] >= opts.DebounceSec {
				t.state = inside
				t.start = time[t.run]
				t.acc = t.pending
				t.resetRun()
			}
		case inside:
			if v >= exit {
				if t.run >= 0 {
					t.acc.merge(t.pending)
					t.resetRun()
				}
				t.acc.add(v, h, hasHR)
				continue
			}
			if t.run < 0 {
				t.run = i
			}
			t.pending.add(v, h, hasHR)
			if ts-time[t.run] >= opts.DebounceSec {
				closeInterval(time[t.run])
			}
		}
	}

	if t.state == inside {
		end := time[len(time)-1]
		if t.run >= 0 {
			end = time[t.run]
		}
		closeInterval(end)
	}
	return segments
}

func accepted(duration int, opts Options) bool {
	if duration <= 0 {
		return false
	}
	if opts.MinDurationSec <= 0 {
		return true
	}
	return float64(duration) >= opts.AcceptRatio*float64(opts.MinDurationSec)
}
