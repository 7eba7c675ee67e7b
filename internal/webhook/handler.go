// Package webhook receives Strava push events and queues changed activities
// for compliance processing.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
)

type Enqueuer interface {
	EnqueueActivity(ctx context.Context, activityID int64) error
	MarkActivityStale(ctx context.Context, activityID int64) error
}

type Event struct {
	ObjectType string `json:"object_type"`
	ObjectID   int64  `json:"object_id"`
	AspectType string `json:"aspect_type"`
	OwnerID    int64  `json:"owner_id"`
	EventTime  int64  `json:"event_time"`
}

// queues reports whether the event changes data compliance depends on.
func (e Event) queues() bool {
	return e.ObjectType == "activity" && (e.AspectType == "create" || e.AspectType == "update")
}

type Handler struct {
	Queue         Enqueuer
	VerifyToken   string
	SigningSecret string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.receive(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if h.SigningSecret != "" && !validSignature(payload, r.Header.Get("X-Strava-Signature"), h.SigningSecret) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if event.ObjectType == "" || event.ObjectID == 0 || event.AspectType == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	log.Printf("strava event: %s %s %d", event.ObjectType, event.AspectType, event.ObjectID)
	if !event.queues() {
		w.WriteHeader(http.StatusOK)
		return
	}
	// an edited activity must be fetched again, not served from the store
	if event.AspectType == "update" {
		if err := h.Queue.MarkActivityStale(r.Context(), event.ObjectID); err != nil {
			log.Printf("mark activity %d stale: %v", event.ObjectID, err)
			http.Error(w, "failed to queue activity", http.StatusInternalServerError)
			return
		}
	}
	if err := h.Queue.EnqueueActivity(r.Context(), event.ObjectID); err != nil {
		log.Printf("enqueue activity %d: %v", event.ObjectID, err)
		http.Error(w, "failed to queue activity", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// verify answers Strava's subscription handshake.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge := q.Get("hub.challenge")
	if challenge == "" {
		http.Error(w, "missing challenge", http.StatusBadRequest)
		return
	}
	if h.VerifyToken != "" && q.Get("hub.verify_token") != h.VerifyToken {
		http.Error(w, "invalid verify token", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"hub.challenge": challenge})
}

func validSignature(body []byte, signature, secret string) bool {
	received, err := hex.DecodeString(signature)
	if err != nil || len(received) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hmac.Equal(mac.Sum(nil), received)
}
