// Package metrics exposes Prometheus counters for the record/upload/playback
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages used as label values.
const (
	StageCapture  = "capture"
	StageEncode   = "encode"
	StageUpload   = "upload"
	StageParse    = "parse"
	StageFetch    = "fetch"
	StagePlayback = "playback"
)

type Metrics struct {
	Toggles            *prometheus.CounterVec
	PipelinesStarted   prometheus.Counter
	PipelinesCompleted prometheus.Counter
	PipelineFailures   *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	InFlight           prometheus.Gauge
}

// New registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Toggles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "askmarie_toggles_total",
			Help: "Session transitions by the state entered",
		}, []string{"state"}),
		PipelinesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "askmarie_pipelines_started_total",
			Help: "Recordings handed to an upload pipeline",
		}),
		PipelinesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "askmarie_pipelines_completed_total",
			Help: "Pipelines that reached playback",
		}),
		PipelineFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "askmarie_pipeline_failures_total",
			Help: "Pipeline failures by stage",
		}, []string{"stage"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "askmarie_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		}, []string{"stage"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "askmarie_pipelines_in_flight",
			Help: "Pipelines currently running",
		}),
	}
}

func (m *Metrics) ObserveToggle(state string) {
	if m == nil {
		return
	}
	m.Toggles.WithLabelValues(state).Inc()
}

func (m *Metrics) PipelineStarted() {
	if m == nil {
		return
	}
	m.PipelinesStarted.Inc()
	m.InFlight.Inc()
}

// PipelineFinished closes out a pipeline. An empty failedStage means success.
func (m *Metrics) PipelineFinished(failedStage string) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	if failedStage == "" {
		m.PipelinesCompleted.Inc()
		return
	}
	m.PipelineFailures.WithLabelValues(failedStage).Inc()
}

// Rejected counts a recording that failed before any pipeline started.
func (m *Metrics) Rejected(stage string) {
	if m == nil {
		return
	}
	m.PipelineFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Serve exposes gatherer on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", slog.String("address", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
