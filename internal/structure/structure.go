// Package structure reconstructs the repeat-interval pattern a coach wrote into a
// workout ("3x10min @ Z3 / 2min recovery") from its free-text fields.
package structure

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/intensity"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/zones"
)

const (
	MinCount       = 1
	MaxCount       = 20
	MinDurationSec = 10
	MaxDurationSec = 3600
	MinRecoverySec = 10
	MaxRecoverySec = 1800
)

type Structure struct {
	Count               int    `json:"count"`
	DurationSec         int    `json:"durationSec"`
	TargetZone          int    `json:"targetZone,omitempty"`
	RecoveryDurationSec int    `json:"recoveryDurationSec,omitempty"`
	Field               string `json:"field,omitempty"`
	Text                string `json:"text,omitempty"`
}

func (s Structure) HasTargetZone() bool {
	return s.TargetZone >= 1 && s.TargetZone <= zones.Count
}

// String renders the canonical form, which Extract reads back unchanged.
func (s Structure) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%dx%s", s.Count, formatDuration(s.DurationSec))
	if s.HasTargetZone() {
		fmt.Fprintf(&b, " @ Z%d", s.TargetZone)
	}
	if s.RecoveryDurationSec > 0 {
		fmt.Fprintf(&b, " / %s recovery", formatDuration(s.RecoveryDurationSec))
	}
	return b.String()
}

type unit int

const (
	minutes unit = iota
	seconds
)

type pattern struct {
	name string
	re   *regexp.Regexp
	unit unit
}

const inlineIntensity = `(?:\s*@\s*([^/(),;\n]+))?`

// Patterns are tried in order within each field. Seconds shorthand precedes the
// minute shorthand so that 30'' is not read as 30'.
var patterns = []pattern{
	{name: "minutes", re: regexp.MustCompile(`(\d+)\s*[x×]\s*(\d+(?:\.\d+)?)\s*(?:minutes?|mins?|m)\b` + inlineIntensity), unit: minutes},
	{name: "seconds", re: regexp.MustCompile(`(\d+)\s*[x×]\s*(\d+)\s*(?:seconds?|secs?|s)\b` + inlineIntensity), unit: seconds},
	{name: "seconds_shorthand", re: regexp.MustCompile(`(\d+)\s*[x×]\s*(\d+)\s*(?:"|'')` + inlineIntensity), unit: seconds},
	{name: "minutes_shorthand", re: regexp.MustCompile(`(\d+)\s*[x×]\s*(\d+(?:\.\d+)?)\s*'` + inlineIntensity), unit: minutes},
}

const recoveryAmount = `(\d+(?:\.\d+)?)\s*(minutes?|mins?|m|seconds?|secs?|s|''|'|")\s*`

var recoveryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/\s*` + recoveryAmount + `(?:recovery|rest|rec)\b`),
	regexp.MustCompile(`\bwith\s+` + recoveryAmount + `(?:recovery|rest|rec)\b`),
	regexp.MustCompile(`\(\s*` + recoveryAmount + `(?:recovery|rest|rec)\b[^)]*\)`),
}

type field struct {
	name string
	text string
}

// Extract returns false when no pattern matches or when the first match falls
// outside the accepted count or duration bounds.
func Extract(workout training.Workout, athlete zones.Athlete) (Structure, bool) {
	fields := []field{
		{name: "session_name", text: workout.SessionName},
		{name: "notes", text: workout.Notes},
		{name: "intensity_target", text: workout.IntensityTarget},
	}
	for _, f := range fields {
		text := strings.ToLower(f.text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, p := range patterns {
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			s, ok := build(p, m)
			if !ok {
				return Structure{}, false
			}
			s.Field = f.name
			s.Text = strings.TrimSpace(m[0])
			s.TargetZone = targetZone(strings.TrimSpace(m[3]), workout.IntensityTarget, text, athlete)
			s.RecoveryDurationSec = recovery(text)
			return s, true
		}
	}
	return Structure{}, false
}

func build(p pattern, m []string) (Structure, bool) {
	count, err := strconv.Atoi(m[1])
	if err != nil || count < MinCount || count > MaxCount {
		return Structure{}, false
	}
	amount, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Structure{}, false
	}
	duration := toSeconds(amount, p.unit)
	if duration < MinDurationSec || duration > MaxDurationSec {
		return Structure{}, false
	}
	return Structure{Count: count, DurationSec: duration}, true
}

func targetZone(inline, workoutTarget, fieldText string, athlete zones.Athlete) int {
	for _, candidate := range []string{inline, workoutTarget, fieldText} {
		if candidate == "" {
			continue
		}
		if zone, ok := intensity.ResolveZone(candidate, athlete); ok {
			return zone
		}
	}
	return 0
}

func recovery(text string) int {
	for _, re := range recoveryPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		u := seconds
		if strings.HasPrefix(m[2], "m") || m[2] == "'" {
			u = minutes
		}
		sec := toSeconds(amount, u)
		if sec >= MinRecoverySec && sec <= MaxRecoverySec {
			return sec
		}
	}
	return 0
}

func toSeconds(amount float64, u unit) int {
	if u == minutes {
		return int(math.Round(amount * 60))
	}
	return int(math.Round(amount))
}

func formatDuration(sec int) string {
	if sec > 0 && sec%60 == 0 {
		return fmt.Sprintf("%dmin", sec/60)
	}
	return fmt.Sprintf("%ds", sec)
}
