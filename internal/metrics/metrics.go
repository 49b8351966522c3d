// Package metrics holds the Prometheus instruments of the indexer.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "activity_scope"

// Synthesis
var (
	SynthesisPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_passes_total",
			Help:      "Synthesis passes by outcome",
		},
		[]string{"status"}, // ok, failed
	)

	SynthesisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Duration of one synthesis pass",
			Buckets:   prometheus.DefBuckets,
		},
	)

	BindingQueryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "binding_query_errors_total",
			Help:      "Event queries that failed for a single binding",
		},
	)

	ActivitiesInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_inserted_total",
			Help:      "Activities written by synthesis",
		},
	)

	ActivitiesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_resolutions_total",
			Help:      "Attribute resolution writes by outcome",
		},
		[]string{"outcome"}, // written, unchanged, conflict, failed
	)
)

// Chain and explorer I/O
var (
	LogsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_logs_fetched_total",
			Help:      "Contract logs decoded into events",
		},
	)

	ChainRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_call_retries_total",
			Help:      "Chain RPC calls retried after a failure",
		},
		[]string{"op"},
	)

	ExplorerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explorer_requests_total",
			Help:      "Explorer HTTP requests by action and status class",
		},
		[]string{"action", "status"},
	)

	ExplorerPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explorer_pages_total",
			Help:      "Transfer pages fetched by kind",
		},
		[]string{"kind"},
	)
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server started", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
