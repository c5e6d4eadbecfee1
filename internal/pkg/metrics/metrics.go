// Package metrics provides Prometheus metrics for the message warehouse.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the warehouse collectors. A nil *Metrics records nothing.
type Metrics struct {
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	NotificationsTotal *prometheus.CounterVec
	BlobBytesTotal     *prometheus.CounterVec
	SchemaMismatches   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_operations_total",
				Help: "Total number of warehouse operations",
			},
			[]string{"collection", "operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warehouse_operation_duration_seconds",
				Help:    "Duration of warehouse operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection", "operation"},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_notifications_total",
				Help: "Insertion notifications by outcome",
			},
			[]string{"collection", "status"},
		),
		BlobBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_blob_bytes_total",
				Help: "Serialized message bytes written and read",
			},
			[]string{"collection", "direction"},
		),
		SchemaMismatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_schema_mismatches_total",
				Help: "Collections opened with a digest that differs from the stored one",
			},
			[]string{"collection"},
		),
	}
}

// ObserveOperation records the outcome and latency of one operation.
func (m *Metrics) ObserveOperation(collection, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(collection, operation, status).Inc()
	m.OperationDuration.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())
}

// ObserveNotification records a publish attempt.
func (m *Metrics) ObserveNotification(collection string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.NotificationsTotal.WithLabelValues(collection, status).Inc()
}

// AddBlobBytes counts payload bytes; direction is "write" or "read".
func (m *Metrics) AddBlobBytes(collection, direction string, n int) {
	if m == nil {
		return
	}
	m.BlobBytesTotal.WithLabelValues(collection, direction).Add(float64(n))
}

// SchemaMismatch counts a digest mismatch.
func (m *Metrics) SchemaMismatch(collection string) {
	if m == nil {
		return
	}
	m.SchemaMismatches.WithLabelValues(collection).Inc()
}
