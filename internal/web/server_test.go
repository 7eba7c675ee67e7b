package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/processor"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/storage"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
)

func newTestServer(t *testing.T) (*httptest.Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema(context.Background()))

	mux := http.NewServeMux()
	NewServer(store, &processor.ComplianceProcessor{Store: store}).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestImportWorkoutScoresImmediately(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()

	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertActivity(ctx, training.Activity{ID: 5, Type: "Run", StartDateLocal: day.Add(7 * time.Hour), MovingTime: 1800}))

	resp := do(t, http.MethodPost, server.URL+"/api/workouts", `{"date":"2024-06-03","sessionName":"Easy run","durationTargetMinutes":30}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var view WorkoutView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	require.Equal(t, int64(5), view.MatchedActivityID)
	require.NotNil(t, view.Compliance)
	require.Equal(t, 100, view.Compliance.Score)

	var breakdown map[string]any
	require.NoError(t, json.Unmarshal(view.Compliance.Breakdown, &breakdown))
	require.Contains(t, breakdown, "hrZone")
	require.Nil(t, breakdown["hrZone"])

	list := do(t, http.MethodGet, server.URL+"/api/workouts?from=2024-06-01&to=2024-06-07", "")
	require.Equal(t, http.StatusOK, list.StatusCode)
	var views []WorkoutView
	require.NoError(t, json.NewDecoder(list.Body).Decode(&views))
	require.Len(t, views, 1)
}

func TestManualLinkRoundTrip(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()

	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	id, err := store.UpsertWorkout(ctx, training.Workout{Date: day, SessionName: "Endurance ride", DurationTargetMinutes: 60})
	require.NoError(t, err)
	require.NoError(t, store.UpsertActivity(ctx, training.Activity{ID: 8, Type: "Ride", StartDateLocal: day.AddDate(0, 0, -1), MovingTime: 3600}))

	url := server.URL + "/api/workouts/" + jsonID(id) + "/link"
	resp := do(t, http.MethodPut, url, `{"activityId":8}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view WorkoutView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	require.True(t, view.IsManuallyLinked)
	require.Equal(t, int64(8), view.MatchedActivityID)
	require.NotNil(t, view.Compliance)
	require.Equal(t, int64(8), view.Compliance.ActivityID)

	resp = do(t, http.MethodDelete, url, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view = WorkoutView{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	require.False(t, view.IsManuallyLinked)
	require.Zero(t, view.MatchedActivityID)

	missing := do(t, http.MethodPut, server.URL+"/api/workouts/999/link", `{"activityId":8}`)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestRejectsBadInput(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing session name", http.MethodPost, "/api/workouts", `{"date":"2024-06-03"}`, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/workouts", `{"date":"03/06/2024","sessionName":"Run"}`, http.StatusBadRequest},
		{"bad window", http.MethodGet, "/api/workouts?from=2024-06-07&to=2024-06-01", "", http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/workouts/abc", "", http.StatusBadRequest},
		{"unknown workout", http.MethodGet, "/api/workouts/42", "", http.StatusNotFound},
		{"link without activity", http.MethodPut, "/api/workouts/1/link", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, server.URL+tt.path, tt.body)
			require.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestQueueAndRecompute(t *testing.T) {
	server, store := newTestServer(t)
	require.NoError(t, store.EnqueueActivity(context.Background(), 1))

	resp := do(t, http.MethodGet, server.URL+"/api/queue", "")
	var queue map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&queue))
	require.Equal(t, 1, queue["pending"])

	resp = do(t, http.MethodPost, server.URL+"/api/recompute?from=2024-06-01&to=2024-06-07", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Equal(t, 0, result["scored"])
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
