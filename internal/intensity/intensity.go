// Package intensity interprets coach-written intensity targets ("Z3", "85% FTP",
// "200-220W", "tempo") as a zone index or an absolute range.
package intensity

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/zones"
)

type Metric string

const (
	HeartRate Metric = "heart_rate"
	Power     Metric = "power"
)

type Kind string

const (
	KindZone  Kind = "zone"
	KindRange Kind = "range"
)

const (
	maxSaneWatts     = 2000
	singleWattSpread = 0.05
)

// Target is a resolved intensity: either Zone (1..5) or Min/Max in bpm or watts.
type Target struct {
	Kind Kind    `json:"kind"`
	Zone int     `json:"zone,omitempty"`
	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
	Rule string  `json:"rule"`
}

func (t Target) Mid() float64 {
	return (t.Min + t.Max) / 2
}

func (t Target) String() string {
	if t.Kind == KindZone {
		return fmt.Sprintf("Z%d", t.Zone)
	}
	return fmt.Sprintf("%s-%s", trimFloat(t.Min), trimFloat(t.Max))
}

type rule struct {
	ID      string
	Metrics []Metric
	Resolve func(text string, metric Metric) (Target, bool)
}

func (r rule) appliesTo(metric Metric) bool {
	for _, m := range r.Metrics {
		if m == metric {
			return true
		}
	}
	return false
}

var (
	zoneTokenPattern  = regexp.MustCompile(`\b(?:z|zone\s*)([1-7])\b`)
	bpmRangePattern   = regexp.MustCompile(`(\d{2,3})\s*(?:-|–|to)\s*(\d{2,3})\s*bpm\b`)
	wattRangePattern  = regexp.MustCompile(`(\d{2,4})\s*(?:-|–|to)\s*(\d{2,4})\s*(?:watts?|w)\b`)
	singleWattPattern = regexp.MustCompile(`(\d{2,4})\s*(?:watts?|w)\b`)
	ftpPercentPattern = regexp.MustCompile(`(\d{2,3}(?:\.\d+)?)\s*%\s*(?:of\s+)?ftp`)
)

type keyword struct {
	pattern *regexp.Regexp
	zone    int
}

func keywords(pairs ...any) []keyword {
	out := make([]keyword, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, keyword{
			pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(pairs[i].(string))),
			zone:    pairs[i+1].(int),
		})
	}
	return out
}

// Keyword tables are ordered hardest first so "tempo with easy recovery" reads as tempo.
var (
	heartRateKeywords = keywords(
		"vo2", 5,
		"anaerobic", 5,
		"max", 5,
		"threshold", 4,
		"lactate", 4,
		"lt2", 4,
		"tempo", 3,
		"marathon", 3,
		"moderate", 3,
		"endurance", 2,
		"aerobic", 2,
		"steady", 2,
		"very easy", 1,
		"recovery", 1,
		"easy", 2,
	)
	powerKeywords = keywords(
		"sprint", 5,
		"vo2", 5,
		"anaerobic", 5,
		"threshold", 4,
		"ftp", 4,
		"sweet spot", 3,
		"sweetspot", 3,
		"tempo", 3,
		"endurance", 2,
		"aerobic", 2,
		"active recovery", 1,
		"recovery", 1,
		"easy", 1,
	)
)

// Rules are evaluated in order; the first match wins.
var rules = []rule{
	{ID: "zone_token", Metrics: []Metric{HeartRate, Power}, Resolve: resolveZoneToken},
	{ID: "bpm_range", Metrics: []Metric{HeartRate}, Resolve: resolveBPMRange},
	{ID: "watt_range", Metrics: []Metric{Power}, Resolve: resolveWattRange},
	{ID: "single_watt", Metrics: []Metric{Power}, Resolve: resolveSingleWatt},
	{ID: "ftp_percent", Metrics: []Metric{HeartRate, Power}, Resolve: resolveFTPPercent},
	{ID: "keyword", Metrics: []Metric{HeartRate, Power}, Resolve: resolveKeyword},
}

// Interpret returns false when the text does not determine a target for the metric.
// Callers must then skip that dimension rather than assume zone 1.
func Interpret(text string, metric Metric) (Target, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Target{}, false
	}
	for _, r := range rules {
		if !r.appliesTo(metric) {
			continue
		}
		if target, ok := r.Resolve(normalized, metric); ok {
			target.Rule = r.ID
			return target, true
		}
	}
	return Target{}, false
}

// ResolveZone reduces text to a zone index, trying power rules first, then heart rate.
// Absolute ranges are converted through the matching zone table when one is available.
func ResolveZone(text string, athlete zones.Athlete) (int, bool) {
	for _, metric := range []Metric{Power, HeartRate} {
		target, ok := Interpret(text, metric)
		if !ok {
			continue
		}
		if target.Kind == KindZone {
			return target.Zone, true
		}
		table := athlete.HeartRate
		if metric == Power {
			table = athlete.Power
		}
		if table.Valid() {
			return table.Classify(target.Mid()), true
		}
	}
	return 0, false
}

// ZoneForFTPPercent buckets a percentage of FTP into a zone.
func ZoneForFTPPercent(pct float64) int {
	switch {
	case pct < 55:
		return 1
	case pct <= 75:
		return 2
	case pct <= 90:
		return 3
	case pct <= 105:
		return 4
	default:
		return 5
	}
}

func resolveZoneToken(text string, _ Metric) (Target, bool) {
	m := zoneTokenPattern.FindStringSubmatch(text)
	if m == nil {
		return Target{}, false
	}
	zone, err := strconv.Atoi(m[1])
	if err != nil {
		return Target{}, false
	}
	if zone > zones.Count {
		zone = zones.Count
	}
	return Target{Kind: KindZone, Zone: zone}, true
}

func resolveBPMRange(text string, _ Metric) (Target, bool) {
	return resolveRange(bpmRangePattern, text, 0)
}

func resolveWattRange(text string, _ Metric) (Target, bool) {
	return resolveRange(wattRangePattern, text, maxSaneWatts)
}

func resolveRange(pattern *regexp.Regexp, text string, ceiling float64) (Target, bool) {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return Target{}, false
	}
	lo, err1 := strconv.ParseFloat(m[1], 64)
	hi, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil || hi <= lo {
		return Target{}, false
	}
	if ceiling > 0 && hi >= ceiling {
		return Target{}, false
	}
	return Target{Kind: KindRange, Min: lo, Max: hi}, true
}

func resolveSingleWatt(text string, _ Metric) (Target, bool) {
	m := singleWattPattern.FindStringSubmatch(text)
	if m == nil {
		return Target{}, false
	}
	watts, err := strconv.ParseFloat(m[1], 64)
	if err != nil || watts <= 0 || watts >= maxSaneWatts {
		return Target{}, false
	}
	return Target{
		Kind: KindRange,
		Min:  math.Round(watts * (1 - singleWattSpread)),
		Max:  math.Round(watts * (1 + singleWattSpread)),
	}, true
}

func resolveFTPPercent(text string, _ Metric) (Target, bool) {
	m := ftpPercentPattern.FindStringSubmatch(text)
	if m == nil {
		return Target{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Target{}, false
	}
	return Target{Kind: KindZone, Zone: ZoneForFTPPercent(pct)}, true
}

func resolveKeyword(text string, metric Metric) (Target, bool) {
	table := heartRateKeywords
	if metric == Power {
		table = powerKeywords
	}
	for _, kw := range table {
		if kw.pattern.MatchString(text) {
			return Target{Kind: KindZone, Zone: kw.zone}, true
		}
	}
	return Target{}, false
}

func trimFloat(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return strconv.FormatFloat(value, 'f', 1, 64)
}
