package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/ingest"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/processor"
)

// syncJob pulls the recent window from Strava and rescores it. Plan edits
// inside the window are picked up even when no new activity arrived.
type syncJob struct {
	ingestor   *ingest.Ingestor
	processor  *processor.ComplianceProcessor
	windowDays int

	mu sync.Mutex
}

func (j *syncJob) run(ctx context.Context) {
	if !j.mu.TryLock() {
		log.Printf("sync skipped: previous run still in progress")
		return
	}
	defer j.mu.Unlock()

	days := j.windowDays
	if days <= 0 {
		days = 14
	}
	now := time.Now()
	after := now.AddDate(0, 0, -days)

	synced, err := j.ingestor.SyncWindow(ctx, after, now)
	if err != nil {
		log.Printf("sync failed after %d activities: %v", synced, err)
	}
	if _, err := j.processor.ProcessWindow(ctx, after, now); err != nil {
		log.Printf("recompute failed: %v", err)
	}
}
