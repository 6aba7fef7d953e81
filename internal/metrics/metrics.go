package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/logger"
)

var (
	IntakeDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "claims_intake_queue_depth",
		Help: "Current number of documents waiting in the intake queue.",
	})

	IntakeAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claims_intake_accepted_total",
		Help: "Total number of documents accepted by the intake queue.",
	})

	IntakeRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claims_intake_rejected_total",
		Help: "Total number of documents rejected because the queue was full.",
	})

	DocumentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claims_documents_processed_total",
		Help: "Total number of documents processed, labelled by root type and outcome.",
	}, []string{"root_type", "status"})

	DocumentProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "claims_document_processing_duration_seconds",
		Help:    "Per-document parse-persist-verify latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claims_ledger_events_appended_total",
		Help: "Total number of ledger events appended, labelled by event kind.",
	}, []string{"kind"})

	DuplicateReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claims_duplicate_replays_total",
		Help: "Total number of claim records skipped as benign duplicate deliveries.",
	})

	RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claims_refresh_runs_total",
		Help: "Total number of aggregate refresh runs, labelled by target and status.",
	}, []string{"target", "status"})

	RefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claims_refresh_duration_seconds",
		Help:    "Aggregate refresh latency in seconds, labelled by target.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"target"})

	VerificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claims_verification_failures_total",
		Help: "Total number of failed verification checks, labelled by check name.",
	}, []string{"check"})

	AcksPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claims_acks_published_total",
		Help: "Total number of acknowledgment publish attempts, labelled by status.",
	}, []string{"status"})

	DocumentsDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claims_documents_discovered_total",
		Help: "Total number of documents discovered by fetchers, labelled by source.",
	}, []string{"source"})
)

// Serve exposes the scrape endpoint for headless services that have no HTTP
// surface of their own. The returned server is already listening; callers
// shut it down alongside the rest of the process.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		// The process keeps running without a scrape endpoint on failure.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, zap.String("addr", addr))
		}
	}()
	return srv
}
