package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/compliance"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/config"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/fitfile"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/structure"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/zones"
)

type output struct {
	Activity  training.Activity `json:"activity"`
	Structure string            `json:"structure,omitempty"`
	Result    compliance.Result `json:"result"`
}

func main() {
	var (
		session  = flag.String("session", "", "Planned session name, e.g. \"3x10min tempo\"")
		minutes  = flag.Float64("duration", 0, "Planned duration in minutes (optional)")
		target   = flag.String("intensity", "", "Planned intensity target, e.g. \"Z3\" or \"200-220W\"")
		notes    = flag.String("notes", "", "Planned workout notes")
		hrZones  = flag.String("hr-zones", "", "Heart-rate zones as min-max,... (defaults to HR_ZONES)")
		powZones = flag.String("power-zones", "", "Power zones as min-max,... (defaults to POWER_ZONES)")
		envFile  = flag.String("env", ".env", "Optional .env file with zone settings")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path-to-fit-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 || *session == "" {
		flag.Usage()
		os.Exit(2)
	}

	athlete, err := loadAthlete(*envFile, *hrZones, *powZones)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zones: %v\n", err)
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open FIT file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	rec, err := fitfile.Decode(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	workout := training.Workout{
		Date:                  rec.Activity.StartDateLocal,
		SessionName:           *session,
		DurationTargetMinutes: *minutes,
		IntensityTarget:       *target,
		Notes:                 *notes,
	}
	out := output{
		Activity: rec.Activity,
		Result: compliance.Compute(compliance.Input{
			Workout:  workout,
			Activity: &rec.Activity,
			Athlete:  athlete,
			Laps:     rec.Laps,
			Streams:  rec.Streams,
		}),
	}
	if s, ok := structure.Extract(workout, athlete); ok {
		out.Structure = s.String()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "json encode failed: %v\n", err)
		os.Exit(1)
	}
}

// loadAthlete prefers zone flags and falls back to the environment.
func loadAthlete(envFile, hr, power string) (zones.Athlete, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return zones.Athlete{}, err
	}
	athlete := cfg.Athlete
	if hr != "" {
		if athlete.HeartRate, err = zones.ParseTable(hr); err != nil {
			return zones.Athlete{}, fmt.Errorf("hr-zones: %w", err)
		}
	}
	if power != "" {
		if athlete.Power, err = zones.ParseTable(power); err != nil {
			return zones.Athlete{}, fmt.Errorf("power-zones: %w", err)
		}
	}
	return athlete, nil
}
