package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/observability"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/storage"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/strava"
)

const (
	defaultRetryDelay  = time.Minute
	defaultMaxAttempts = 5
)

type Processor interface {
	Process(ctx context.Context, activityID int64) error
}

// Worker drains the activity queue. A failed item waits RetryDelay before it
// is due again and is dropped after MaxAttempts.
type Worker struct {
	Store       *storage.Store
	Processor   Processor
	RetryDelay  time.Duration
	MaxAttempts int
}

// ProcessNext handles one due activity and reports whether there was one.
// Activities Strava no longer serves are dropped at once; other failures are
// retried later so they never hold back the items queued behind them.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	queueID, activityID, err := w.Store.DequeueActivity(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if err := w.Processor.Process(ctx, activityID); err != nil {
		return true, w.fail(ctx, queueID, activityID, err)
	}

	if err := w.Store.MarkProcessed(ctx, queueID); err != nil {
		return false, err
	}
	observability.QueueProcessed.WithLabelValues("ok").Inc()
	return true, nil
}

func (w *Worker) fail(ctx context.Context, queueID, activityID int64, cause error) error {
	if strava.IsNotFound(cause) {
		log.Printf("activity %d not found on strava, dropping: %v", activityID, cause)
		return w.drop(ctx, queueID, cause)
	}

	attempts, err := w.Store.RetryActivity(ctx, queueID, time.Now().Add(w.retryDelay()), cause.Error())
	if err != nil {
		return fmt.Errorf("defer activity %d: %w", activityID, err)
	}
	if attempts >= w.maxAttempts() {
		log.Printf("activity %d failed %d times, dropping: %v", activityID, attempts, cause)
		return w.drop(ctx, queueID, cause)
	}
	observability.QueueProcessed.WithLabelValues("error").Inc()
	return fmt.Errorf("activity %d: %w", activityID, cause)
}

func (w *Worker) drop(ctx context.Context, queueID int64, cause error) error {
	if err := w.Store.DropActivity(ctx, queueID, cause.Error()); err != nil {
		return err
	}
	observability.QueueProcessed.WithLabelValues("dropped").Inc()
	return nil
}

func (w *Worker) retryDelay() time.Duration {
	if w.RetryDelay > 0 {
		return w.RetryDelay
	}
	return defaultRetryDelay
}

func (w *Worker) maxAttempts() int {
	if w.MaxAttempts > 0 {
		return w.MaxAttempts
	}
	return defaultMaxAttempts
}
