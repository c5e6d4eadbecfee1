package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/unifiedui/message-warehouse/internal/pkg/metrics"
)

func TestMetrics_ObserveOperation(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveOperation("db.poses", "insert", time.Now(), nil)
	m.ObserveOperation("db.poses", "insert", time.Now(), errors.New("boom"))
	m.ObserveOperation("db.poses", "insert", time.Now(), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("db.poses", "insert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("db.poses", "insert", "error")))
}

func TestMetrics_NotificationsAndBytes(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveNotification("db.poses", nil)
	m.ObserveNotification("db.poses", errors.New("down"))
	m.AddBlobBytes("db.poses", "write", 128)
	m.AddBlobBytes("db.poses", "write", 2)
	m.SchemaMismatch("db.poses")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("db.poses", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("db.poses", "failed")))
	assert.Equal(t, 130.0, testutil.ToFloat64(m.BlobBytesTotal.WithLabelValues("db.poses", "write")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchemaMismatches.WithLabelValues("db.poses")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObserveOperation("c", "op", time.Now(), nil)
		m.ObserveNotification("c", nil)
		m.AddBlobBytes("c", "read", 1)
		m.SchemaMismatch("c")
	})
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)

	assert.Panics(t, func() { metrics.New(reg) })
}
