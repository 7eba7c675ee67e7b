package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/compliance"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/config"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/ingest"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/processor"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/storage"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/strava"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/web"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/webhook"
	"github.com/thomasboulongne/strava-dashboard-sub001/internal/worker"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(context.Background()); err != nil {
		log.Fatalf("init schema: %v", err)
	}
	if !cfg.Athlete.HeartRate.Valid() && !cfg.Athlete.Power.Valid() {
		log.Printf("no HR_ZONES or POWER_ZONES configured; zone scoring will be skipped")
	}

	stravaClient := &strava.Client{
		BaseURL:     cfg.StravaBaseURL,
		AccessToken: cfg.StravaAccessToken,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}
	ingestor := &ingest.Ingestor{Store: store, Strava: stravaClient}
	complianceProcessor := &processor.ComplianceProcessor{
		Store:   store,
		Engine:  &compliance.Engine{Evidence: store},
		Athlete: cfg.Athlete,
	}
	pipeline := &processor.PipelineProcessor{Ingest: ingestor, Compliance: complianceProcessor}
	queueWorker := &worker.Worker{Store: store, Processor: pipeline}

	mux := http.NewServeMux()
	web.NewServer(store, complianceProcessor).Register(mux)
	mux.Handle("/webhook", &webhook.Handler{
		Queue:         store,
		VerifyToken:   cfg.StravaVerifyToken,
		SigningSecret: cfg.StravaWebhookSecret,
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := &syncJob{
		ingestor:   ingestor,
		processor:  complianceProcessor,
		windowDays: cfg.SyncWindowDays,
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SyncSchedule, func() { job.run(ctx) }); err != nil {
		log.Fatalf("schedule sync %q: %v", cfg.SyncSchedule, err)
	}
	scheduler.Start()

	go func() {
		log.Printf("listening on %s", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			stop()
		}
	}()

	go runWorker(ctx, queueWorker, time.Duration(cfg.WorkerPollIntervalMS)*time.Millisecond)

	<-ctx.Done()
	<-scheduler.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func runWorker(ctx context.Context, queueWorker *worker.Worker, idleDelay time.Duration) {
	if idleDelay <= 0 {
		idleDelay = 2 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := queueWorker.ProcessNext(ctx)
		if err != nil {
			log.Printf("worker error: %v", err)
		}
		if !processed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleDelay):
			}
		}
	}
}
