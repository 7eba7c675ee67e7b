package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/storage"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
)

// Recomputer refreshes matches and compliance results for a date window.
type Recomputer interface {
	ProcessWindow(ctx context.Context, from, to time.Time) (int, error)
}

type Server struct {
	store      *storage.Store
	recomputer Recomputer
}

type WorkoutView struct {
	ID                    int64           `json:"id"`
	Date                  string          `json:"date"`
	SessionName           string          `json:"sessionName"`
	DurationTargetMinutes float64         `json:"durationTargetMinutes,omitempty"`
	IntensityTarget       string          `json:"intensityTarget,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	MatchedActivityID     int64           `json:"matchedActivityId,omitempty"`
	IsManuallyLinked      bool            `json:"isManuallyLinked"`
	Compliance            *ComplianceView `json:"compliance"`
}

type ComplianceView struct {
	Score      int             `json:"score"`
	ActivityID int64           `json:"activityId,omitempty"`
	Breakdown  json.RawMessage `json:"breakdown"`
	RunID      string          `json:"runId"`
	ComputedAt time.Time       `json:"computedAt"`
}

type workoutRequest struct {
	Date                  string  `json:"date"`
	SessionName           string  `json:"sessionName"`
	DurationTargetMinutes float64 `json:"durationTargetMinutes"`
	IntensityTarget       string  `json:"intensityTarget"`
	Notes                 string  `json:"notes"`
}

func NewServer(store *storage.Store, recomputer Recomputer) *Server {
	return &Server{store: store, recomputer: recomputer}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/workouts", s.ListWorkouts)
	mux.HandleFunc("POST /api/workouts", s.ImportWorkout)
	mux.HandleFunc("GET /api/workouts/{id}", s.Workout)
	mux.HandleFunc("PUT /api/workouts/{id}/link", s.Link)
	mux.HandleFunc("DELETE /api/workouts/{id}/link", s.Link)
	mux.HandleFunc("POST /api/recompute", s.Recompute)
	mux.HandleFunc("GET /api/queue", s.Queue)
}

// ListWorkouts serves ?from=YYYY-MM-DD&to=YYYY-MM-DD, defaulting to the last week.
func (s *Server) ListWorkouts(w http.ResponseWriter, r *http.Request) {
	from, to, ok := window(w, r)
	if !ok {
		return
	}
	workouts, err := s.store.ListWorkouts(r.Context(), from, to)
	if err != nil {
		serverError(w, "list workouts", err)
		return
	}
	views := make([]WorkoutView, 0, len(workouts))
	for _, workout := range workouts {
		view, err := s.view(r.Context(), workout)
		if err != nil {
			serverError(w, "load compliance", err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) Workout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	workout, err := s.store.GetWorkout(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "workout not found", http.StatusNotFound)
		return
	}
	if err != nil {
		serverError(w, "get workout", err)
		return
	}
	view, err := s.view(r.Context(), workout)
	if err != nil {
		serverError(w, "load compliance", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) ImportWorkout(w http.ResponseWriter, r *http.Request) {
	var req workoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	date, err := training.ParseDateKey(req.Date)
	if err != nil || req.SessionName == "" {
		http.Error(w, "date (YYYY-MM-DD) and sessionName are required", http.StatusBadRequest)
		return
	}

	id, err := s.store.UpsertWorkout(r.Context(), training.Workout{
		Date:                  date,
		SessionName:           req.SessionName,
		DurationTargetMinutes: req.DurationTargetMinutes,
		IntensityTarget:       req.IntensityTarget,
		Notes:                 req.Notes,
	})
	if err != nil {
		serverError(w, "upsert workout", err)
		return
	}
	s.recompute(r.Context(), date, date)

	workout, err := s.store.GetWorkout(r.Context(), id)
	if err != nil {
		serverError(w, "get workout", err)
		return
	}
	view, err := s.view(r.Context(), workout)
	if err != nil {
		serverError(w, "load compliance", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// Link sets (PUT, body {"activityId": n}) or clears (DELETE) a manual link.
func (s *Server) Link(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var err error
	if r.Method == http.MethodDelete {
		err = s.store.UnlinkWorkout(r.Context(), id)
	} else {
		var body struct {
			ActivityID int64 `json:"activityId"`
		}
		if decodeErr := json.NewDecoder(r.Body).Decode(&body); decodeErr != nil || body.ActivityID == 0 {
			http.Error(w, "activityId is required", http.StatusBadRequest)
			return
		}
		err = s.store.LinkWorkout(r.Context(), id, body.ActivityID)
	}
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "workout not found", http.StatusNotFound)
		return
	}
	if err != nil {
		serverError(w, "update link", err)
		return
	}

	workout, err := s.store.GetWorkout(r.Context(), id)
	if err != nil {
		serverError(w, "get workout", err)
		return
	}
	s.recompute(r.Context(), workout.Date, workout.Date)
	s.Workout(w, r)
}

func (s *Server) Recompute(w http.ResponseWriter, r *http.Request) {
	from, to, ok := window(w, r)
	if !ok {
		return
	}
	if s.recomputer == nil {
		http.Error(w, "recompute not configured", http.StatusServiceUnavailable)
		return
	}
	scored, err := s.recomputer.ProcessWindow(r.Context(), from, to)
	if err != nil {
		serverError(w, "recompute", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"scored": scored})
}

func (s *Server) Queue(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountQueue(r.Context())
	if err != nil {
		serverError(w, "count queue", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": count})
}

func (s *Server) recompute(ctx context.Context, from, to time.Time) {
	if s.recomputer == nil {
		return
	}
	if _, err := s.recomputer.ProcessWindow(ctx, from, to); err != nil {
		log.Printf("recompute %s..%s: %v", training.DateKey(from), training.DateKey(to), err)
	}
}

func (s *Server) view(ctx context.Context, workout training.Workout) (WorkoutView, error) {
	view := WorkoutView{
		ID:                    workout.ID,
		Date:                  training.DateKey(workout.Date),
		SessionName:           workout.SessionName,
		DurationTargetMinutes: workout.DurationTargetMinutes,
		IntensityTarget:       workout.IntensityTarget,
		Notes:                 workout.Notes,
		MatchedActivityID:     workout.MatchedActivityID,
		IsManuallyLinked:      workout.IsManuallyLinked,
	}
	rec, err := s.store.GetComplianceResult(ctx, workout.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return WorkoutView{}, err
	}
	view.Compliance = &ComplianceView{
		Score:      rec.Score,
		ActivityID: rec.ActivityID,
		Breakdown:  json.RawMessage(rec.Breakdown),
		RunID:      rec.RunID,
		ComputedAt: rec.ComputedAt,
	}
	return view, nil
}

func window(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	to := time.Now()
	from := to.AddDate(0, 0, -7)
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		parsed, err := training.ParseDateKey(v)
		if err != nil {
			http.Error(w, "invalid from date", http.StatusBadRequest)
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := training.ParseDateKey(v)
		if err != nil {
			http.Error(w, "invalid to date", http.StatusBadRequest)
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	if to.Before(from) {
		http.Error(w, "to is before from", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid workout id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func serverError(w http.ResponseWriter, op string, err error) {
	log.Printf("%s: %v", op, err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
