package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"labdoc/internal/ledger"
	"labdoc/pkg/migrate"
)

// PrometheusMetricsRecorder exports labdoc_migrations_total{operation,status},
// labdoc_migration_duration_seconds{operation},
// labdoc_documents_total{operation,outcome} and
// labdoc_patches_applied_total{from,to}.
type PrometheusMetricsRecorder struct {
	total     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	documents *prometheus.CounterVec
	patches   *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder creates the collectors and registers them on
// reg. A nil reg leaves them unregistered.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labdoc",
			Name:      "migrations_total",
			Help:      "Migration service operations by result.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labdoc",
			Name:      "migration_duration_seconds",
			Help:      "Migration service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"operation"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labdoc",
			Name:      "documents_total",
			Help:      "Documents seen by the migration service by outcome (migrated, current, failed).",
		}, []string{"operation", "outcome"}),
		patches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labdoc",
			Name:      "patches_applied_total",
			Help:      "Patches applied to documents by source and target version.",
		}, []string{"from", "to"}),
	}
	if reg != nil {
		for _, c := range r.Collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Collectors returns the recorder's collectors.
func (r *PrometheusMetricsRecorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.total, r.duration, r.documents, r.patches}
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.total.WithLabelValues(operation, statusLabel(success)).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveMigration implements MigrationObserver.
func (r *PrometheusMetricsRecorder) ObserveMigration(_ context.Context, operation string, outcome ledger.Status, applied []migrate.Step) {
	r.documents.WithLabelValues(operation, string(outcome)).Inc()
	for _, st := range applied {
		r.patches.WithLabelValues(st.From.String(), st.To.String()).Inc()
	}
}
