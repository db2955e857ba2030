// Package metrics holds Prometheus metrics for the upload service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for upload lifecycle operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	UploadsAssociated prometheus.Counter // labuploads_associated_total
	UploadsDeleted    prometheus.Counter // labuploads_deleted_total
	DeleteBatches     prometheus.Counter // labuploads_delete_batches_total
	PostsDissociated  prometheus.Counter // labuploads_posts_dissociated_total
	ArchiveEntries    prometheus.Counter // labuploads_archive_entries_total

	OperationFailures *prometheus.CounterVec // labuploads_operation_failures_total{op}
}

// New registers the metrics with registry, or the default registerer when nil
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		UploadsAssociated: factory.NewCounter(prometheus.CounterOpts{
			Name: "labuploads_associated_total",
			Help: "Uploads associated with an owner",
		}),
		UploadsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "labuploads_deleted_total",
			Help: "Uploads removed from disk and index",
		}),
		DeleteBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "labuploads_delete_batches_total",
			Help: "Deletion chunks fully processed",
		}),
		PostsDissociated: factory.NewCounter(prometheus.CounterOpts{
			Name: "labuploads_posts_dissociated_total",
			Help: "Post/upload references removed during deletion",
		}),
		ArchiveEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "labuploads_archive_entries_total",
			Help: "Files written into export archives",
		}),
		OperationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "labuploads_operation_failures_total",
			Help: "Failed lifecycle operations by operation",
		}, []string{"op"}),
	}
}

// Associated records one association
func (m *Metrics) Associated() {
	if m == nil {
		return
	}
	m.UploadsAssociated.Inc()
}

// Deleted records n deleted uploads and one finished chunk
func (m *Metrics) Deleted(n int) {
	if m == nil {
		return
	}
	m.UploadsDeleted.Add(float64(n))
	m.DeleteBatches.Inc()
}

// Dissociated records n removed post references
func (m *Metrics) Dissociated(n int) {
	if m == nil {
		return
	}
	m.PostsDissociated.Add(float64(n))
}

// Archived records n archive entries
func (m *Metrics) Archived(n int) {
	if m == nil {
		return
	}
	m.ArchiveEntries.Add(float64(n))
}

// Failed records a failed operation
func (m *Metrics) Failed(op string) {
	if m == nil {
		return
	}
	m.OperationFailures.WithLabelValues(op).Inc()
}
