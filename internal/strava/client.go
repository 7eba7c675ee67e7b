package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
)

const DefaultBaseURL = "https://www.strava.com/api/v3"

type Client struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
}

type activityPayload struct {
	ID                   int64   `json:"id"`
	Name                 string  `json:"name"`
	Type                 string  `json:"type"`
	SportType            string  `json:"sport_type"`
	StartDateLocal       string  `json:"start_date_local"`
	MovingTime           int     `json:"moving_time"`
	ElapsedTime          int     `json:"elapsed_time"`
	Distance             float64 `json:"distance"`
	AverageHeartrate     float64 `json:"average_heartrate"`
	AverageWatts         float64 `json:"average_watts"`
	WeightedAverageWatts float64 `json:"weighted_average_watts"`
}

// Strava writes local wall-clock time with a Z suffix; parsing it as UTC keeps the calendar day.
func (p activityPayload) toActivity() (training.Activity, error) {
	start, err := time.Parse(time.RFC3339, p.StartDateLocal)
	if err != nil {
		return training.Activity{}, fmt.Errorf("parse start_date_local: %w", err)
	}
	activityType := p.Type
	if activityType == "" {
		activityType = p.SportType
	}
	return training.Activity{
		ID:                   p.ID,
		Name:                 p.Name,
		Type:                 activityType,
		StartDateLocal:       start,
		MovingTime:           p.MovingTime,
		ElapsedTime:          p.ElapsedTime,
		Distance:             p.Distance,
		AverageHeartrate:     p.AverageHeartrate,
		AverageWatts:         p.AverageWatts,
		WeightedAverageWatts: p.WeightedAverageWatts,
	}, nil
}

func (c *Client) GetActivity(ctx context.Context, id int64) (training.Activity, error) {
	var payload activityPayload
	if err := c.getJSON(ctx, fmt.Sprintf("/activities/%d", id), nil, &payload); err != nil {
		return training.Activity{}, err
	}
	return payload.toActivity()
}

func (c *Client) ListActivities(ctx context.Context, after, before time.Time, page, perPage int) ([]training.Activity, error) {
	params := url.Values{}
	if !after.IsZero() {
		params.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	if !before.IsZero() {
		params.Set("before", strconv.FormatInt(before.Unix(), 10))
	}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		params.Set("per_page", strconv.Itoa(perPage))
	}

	var payload []activityPayload
	if err := c.getJSON(ctx, "/athlete/activities", params, &payload); err != nil {
		return nil, err
	}

	activities := make([]training.Activity, 0, len(payload))
	for _, p := range payload {
		activity, err := p.toActivity()
		if err != nil {
			return nil, fmt.Errorf("activity %d: %w", p.ID, err)
		}
		activities = append(activities, activity)
	}
	return activities, nil
}

func (c *Client) GetLaps(ctx context.Context, id int64) ([]training.Lap, error) {
	var payload []struct {
		LapIndex         int     `json:"lap_index"`
		ElapsedTime      int     `json:"elapsed_time"`
		MovingTime       int     `json:"moving_time"`
		AverageHeartrate float64 `json:"average_heartrate"`
		AverageWatts     float64 `json:"average_watts"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/activities/%d/laps", id), nil, &payload); err != nil {
		return nil, err
	}

	laps := make([]training.Lap, 0, len(payload))
	for _, p := range payload {
		laps = append(laps, training.Lap{
			LapIndex:         p.LapIndex,
			ElapsedTime:      p.ElapsedTime,
			MovingTime:       p.MovingTime,
			AverageHeartrate: p.AverageHeartrate,
			AverageWatts:     p.AverageWatts,
		})
	}
	return laps, nil
}

// GetStreams fetches time, heartrate and watts. Metric streams whose length
// differs from the time stream are dropped.
func (c *Client) GetStreams(ctx context.Context, id int64) (training.StreamSet, error) {
	params := url.Values{}
	params.Set("keys", "time,heartrate,watts")
	params.Set("key_by_type", "true")

	var payload map[string]struct {
		Data []json.Number `json:"data"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/activities/%d/streams", id), params, &payload); err != nil {
		return training.StreamSet{}, err
	}

	var streams training.StreamSet
	for _, v := range payload["time"].Data {
		n, err := v.Int64()
		if err != nil {
			return training.StreamSet{}, fmt.Errorf("parse time: %w", err)
		}
		streams.Time = append(streams.Time, int(n))
	}
	hr, err := floats(payload["heartrate"].Data)
	if err != nil {
		return training.StreamSet{}, fmt.Errorf("parse heartrate: %w", err)
	}
	watts, err := floats(payload["watts"].Data)
	if err != nil {
		return training.StreamSet{}, fmt.Errorf("parse watts: %w", err)
	}
	if len(hr) == len(streams.Time) {
		streams.Heartrate = hr
	}
	if len(watts) == len(streams.Time) {
		streams.Watts = watts
	}
	return streams, nil
}

func floats(values []json.Number) ([]float64, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, target any) error {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return err
	}
	u.Path, err = url.JoinPath(u.Path, path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	logRequest(req, resp.StatusCode, time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
