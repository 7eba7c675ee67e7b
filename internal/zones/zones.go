// Package zones models the five ascending heart-rate and power bands of an athlete.
package zones

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const Count = 5

var ErrInvalidTable = errors.New("invalid zone table")

type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) Mid() float64 {
	return (r.Min + r.Max) / 2
}

// Table lists zone 1..5 in ascending order. Ordering is the caller's responsibility.
type Table []Range

// Athlete carries both zone tables. Either may be empty.
type Athlete struct {
	HeartRate Table `json:"heart_rate"`
	Power     Table `json:"power"`
}

func (t Table) Valid() bool {
	return len(t) >= Count
}

// Zone returns the bounds of zone n (1-based).
func (t Table) Zone(n int) (Range, bool) {
	if n < 1 || n > len(t) || n > Count {
		return Range{}, false
	}
	return t[n-1], true
}

// Classify returns the highest zone whose minimum is at or below v, or zone 1
// when v sits below every band.
func (t Table) Classify(v float64) int {
	zone := 1
	limit := len(t)
	if limit > Count {
		limit = Count
	}
	for i := 0; i < limit; i++ {
		if t[i].Min <= v {
			zone = i + 1
		}
	}
	return zone
}

// ParseTable reads "min-max" pairs separated by commas, e.g. "0-130,131-150,151-165,166-178,179-220".
func ParseTable(value string) (Table, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	table := make(Table, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not min-max", ErrInvalidTable, part)
		}
		minValue, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTable, part, err)
		}
		maxValue, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTable, part, err)
		}
		table = append(table, Range{Min: minValue, Max: maxValue})
	}
	if len(table) != Count {
		return nil, fmt.Errorf("%w: expected %d zones, got %d", ErrInvalidTable, Count, len(table))
	}
	return table, nil
}
