package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubebrief_pipeline_runs_total",
			Help: "Total number of pipeline runs by mode, status and failing stage",
		},
		[]string{"mode", "status", "stage"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tubebrief_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage", "status"},
	)

	AcquiredRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tubebrief_acquired_records_total",
			Help: "Total records returned by the scraper across all runs",
		},
	)

	ActiveProcesses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tubebrief_scraper_processes_active",
			Help: "Scraper child processes currently running",
		},
	)

	SummarizerResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubebrief_summarizer_responses_total",
			Help: "Summarizer responses by provider and status code class",
		},
		[]string{"provider", "code"},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// ObserveStage records how long a stage took and whether it failed.
func ObserveStage(stage string, d time.Duration, err error) {
	StageDuration.WithLabelValues(stage, statusLabel(err)).Observe(d.Seconds())
}

// RecordRun counts a finished run. failedStage is empty on success.
func RecordRun(mode, failedStage string, records int) {
	status := "success"
	if failedStage != "" {
		status = "failure"
	}
	PipelineRunsTotal.WithLabelValues(mode, status, failedStage).Inc()
	if records > 0 {
		AcquiredRecordsTotal.Add(float64(records))
	}
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
