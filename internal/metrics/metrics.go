package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RowsProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_features_rows_produced_total",
		Help: "Feature rows produced, by pipeline",
	}, []string{"pipeline"})

	DefaultedValues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_features_defaulted_values_total",
		Help: "Feature values defaulted for insufficient history, by pipeline and feature",
	}, []string{"pipeline", "feature"})

	DroppedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_features_dropped_rows_total",
		Help: "Rows excluded for insufficient history, by pipeline",
	}, []string{"pipeline"})

	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_features_pipeline_runs_total",
		Help: "Pipeline runs, by pipeline and status",
	}, []string{"pipeline", "status"})

	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "match_features_pipeline_duration_seconds",
		Help:    "Duration of feature pipeline runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"pipeline"})

	ArtifactWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_features_artifact_writes_total",
		Help: "Artifact writes, by backend and status",
	}, []string{"backend", "status"})

	EngineRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_features_engine_requests_total",
		Help: "Learning engine requests, by operation and status",
	}, []string{"operation", "status"})

	ScheduledJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_features_scheduled_jobs_total",
		Help: "Scheduled job executions, by job and status",
	}, []string{"job", "status"})
)

// RecordHistory exports the counts of a finished run's history report.
func RecordHistory(pipeline string, defaulted map[string]int, dropped int) {
	for feature, n := range defaulted {
		DefaultedValues.WithLabelValues(pipeline, feature).Add(float64(n))
	}
	if dropped > 0 {
		DroppedRows.WithLabelValues(pipeline).Add(float64(dropped))
	}
}
