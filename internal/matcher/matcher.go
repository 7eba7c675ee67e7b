// Package matcher pairs planned workouts with recorded activities from the same day.
package matcher

import (
	"math"
	"regexp"
	"strings"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
)

const (
	typeBonus          = 10
	durationBonus      = 5
	maxLengthBonus     = 2
	minDurationRatio   = 0.7
	maxDurationRatio   = 1.3
	secondsPerLengthPt = 3600
)

var (
	rideTypes     = []string{"Ride", "VirtualRide", "GravelRide", "MountainBikeRide", "EBikeRide"}
	runTypes      = []string{"Run", "TrailRun", "VirtualRun"}
	strengthTypes = []string{"WeightTraining", "Workout", "Crossfit"}
	walkTypes     = []string{"Walk", "Hike"}
	swimTypes     = []string{"Swim"}
	broadTypes    = concat(rideTypes, runTypes, walkTypes, strengthTypes)
)

type sessionRule struct {
	pattern *regexp.Regexp
	types   []string
}

// Rules are checked in order; a rule with no types means nothing should be
// matched. A session that opens with or names a rest day is rest whatever
// follows. Other rest words come last so "travel + easy run" still expects a run.
var sessionRules = []sessionRule{
	{pattern: regexp.MustCompile(`^\W*(?:rest|off)\b|\brest\s+day\b|\bday\s+off\b`), types: nil},
	{pattern: regexp.MustCompile(`\b(?:strength|gym|weights|core|crossfit)`), types: strengthTypes},
	{pattern: regexp.MustCompile(`\b(?:run|jog|trail)`), types: runTypes},
	{pattern: regexp.MustCompile(`\bswim`), types: swimTypes},
	{pattern: regexp.MustCompile(`\b(?:walk|hike)`), types: walkTypes},
	{pattern: regexp.MustCompile(`\b(?:ride|bike|cycl|spin|endurance|tempo|threshold|sweet ?spot|vo2|recovery)`), types: rideTypes},
	{pattern: regexp.MustCompile(`\b(?:rest|off|travel)\b`), types: nil},
}

type Assignment struct {
	WorkoutID  int64   `json:"workoutId"`
	ActivityID int64   `json:"activityId,omitempty"`
	Matched    bool    `json:"matched"`
	Score      float64 `json:"score"`
	Manual     bool    `json:"manual"`
}

// ExpectedTypes returns the activity types a session name calls for, or nil on rest days.
func ExpectedTypes(sessionName string) []string {
	name := strings.ToLower(sessionName)
	for _, rule := range sessionRules {
		if rule.pattern.MatchString(name) {
			return rule.types
		}
	}
	return broadTypes
}

// Match assigns at most one activity to each workout. Workouts are scored
// independently, so two workouts on the same day may pick the same activity.
// Ties keep the candidate that comes first in the activities slice.
func Match(workouts []training.Workout, activities []training.Activity) []Assignment {
	byID := make(map[int64]training.Activity, len(activities))
	byDate := make(map[string][]training.Activity)
	for _, a := range activities {
		byID[a.ID] = a
		key := training.DateKey(a.StartDateLocal)
		byDate[key] = append(byDate[key], a)
	}

	assignments := make([]Assignment, 0, len(workouts))
	for _, w := range workouts {
		assignments = append(assignments, assign(w, byID, byDate))
	}
	return assignments
}

func assign(w training.Workout, byID map[int64]training.Activity, byDate map[string][]training.Activity) Assignment {
	result := Assignment{WorkoutID: w.ID}
	if w.IsManuallyLinked {
		result.Manual = true
		if _, ok := byID[w.MatchedActivityID]; ok && w.MatchedActivityID != 0 {
			result.ActivityID = w.MatchedActivityID
			result.Matched = true
		}
		return result
	}

	expected := ExpectedTypes(w.SessionName)
	day := training.DateKey(w.Date)
	if len(expected) == 0 || day == "" {
		return result
	}

	best := -1.0
	for _, a := range byDate[day] {
		score := Score(w, a, expected)
		if score > best {
			best = score
			result.ActivityID = a.ID
			result.Matched = true
			result.Score = score
		}
	}
	return result
}

// Score rates one same-day candidate: type fit, duration fit, then length.
func Score(w training.Workout, a training.Activity, expected []string) float64 {
	score := 0.0
	if contains(expected, a.Type) {
		score += typeBonus
	}
	if w.HasDurationTarget() {
		ratio := float64(a.MovingTime) / 60 / w.DurationTargetMinutes
		if ratio >= minDurationRatio && ratio <= maxDurationRatio {
			score += durationBonus
		}
	}
	score += math.Min(float64(a.MovingTime)/secondsPerLengthPt, maxLengthBonus)
	return score
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func concat(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
