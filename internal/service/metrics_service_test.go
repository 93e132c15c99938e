package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveHTTPRequest("GET", "/students", 200, 20*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/students", 200, 40*time.Millisecond)
	m.ObserveDBQuery("list_students", 5*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 30.0, snap.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(1), snap.DBQueryCount)
	assert.Positive(t, snap.Goroutines)
	assert.False(t, snap.GeneratedAt.IsZero())
}

func TestMetricsSnapshotNilReceiver(t *testing.T) {
	var m *MetricsService
	snap := m.Snapshot()
	assert.Zero(t, snap.RequestsTotal)
}
