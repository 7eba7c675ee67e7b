// Package training holds the plan and activity records the compliance engine works on.
package training

import "time"

const dateKeyLayout = "2006-01-02"

// Workout is one planned session imported from the coach's plan.
type Workout struct {
	ID                    int64
	Date                  time.Time
	SessionName           string
	DurationTargetMinutes float64
	IntensityTarget       string
	Notes                 string
	MatchedActivityID     int64
	IsManuallyLinked      bool
}

func (w Workout) HasDurationTarget() bool {
	return w.DurationTargetMinutes > 0
}

// Activity is a recorded session. Metric fields <= 0 are treated as absent.
type Activity struct {
	ID                   int64
	Name                 string
	Type                 string
	StartDateLocal       time.Time
	MovingTime           int
	ElapsedTime          int
	Distance             float64
	AverageHeartrate     float64
	AverageWatts         float64
	WeightedAverageWatts float64
}

// Power returns the weighted average power when present, else the plain average.
func (a Activity) Power() float64 {
	if a.WeightedAverageWatts > 0 {
		return a.WeightedAverageWatts
	}
	return a.AverageWatts
}

type Lap struct {
	LapIndex         int
	ElapsedTime      int
	MovingTime       int
	AverageHeartrate float64
	AverageWatts     float64
}

// DurationSec prefers elapsed time, which is what interval clocks measure.
func (l Lap) DurationSec() int {
	if l.ElapsedTime > 0 {
		return l.ElapsedTime
	}
	return l.MovingTime
}

// StreamSet holds index-aligned time series. Time is elapsed seconds.
type StreamSet struct {
	Time      []int
	Heartrate []float64
	Watts     []float64
}

func (s StreamSet) HasHeartrate() bool {
	return len(s.Time) > 0 && len(s.Heartrate) == len(s.Time)
}

func (s StreamSet) HasWatts() bool {
	return len(s.Time) > 0 && len(s.Watts) == len(s.Time)
}

func (s StreamSet) Empty() bool {
	return !s.HasHeartrate() && !s.HasWatts()
}

// DateKey returns the calendar date of t as written, ignoring its location.
func DateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateKeyLayout)
}

func ParseDateKey(value string) (time.Time, error) {
	return time.Parse(dateKeyLayout, value)
}
