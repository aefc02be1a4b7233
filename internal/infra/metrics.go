package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight scanner observability.
// Uses atomic operations for thread-safety; Prometheus reads it through a collector.
type Metrics struct {
	// Counters
	cyclesTotal      atomic.Uint64
	cyclesSuccessful atomic.Uint64
	quotesApplied    atomic.Uint64
	batchesEmitted   atomic.Uint64
	batchesDropped   atomic.Uint64
	errorsTotal      atomic.Uint64
	recoveries       atomic.Uint64

	// Cycle latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeFeeds  atomic.Int32
	openCircuits atomic.Int32
	lastRecords  atomic.Int64
	lastHigh     atomic.Int64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordCycle records one completed evaluation cycle with its latency.
func (m *Metrics) RecordCycle(latencyNs int64, records, highSpread int) {
	m.cyclesTotal.Add(1)
	m.cyclesSuccessful.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
	m.lastRecords.Store(int64(records))
	m.lastHigh.Store(int64(highSpread))
}

// RecordFailedCycle records a cycle that ended in the Recovering state.
func (m *Metrics) RecordFailedCycle() {
	m.cyclesTotal.Add(1)
	m.recoveries.Add(1)
	m.errorsTotal.Add(1)
}

// RecordQuotes records quotes applied to the price table.
func (m *Metrics) RecordQuotes(n int) {
	if n > 0 {
		m.quotesApplied.Add(uint64(n))
	}
}

// RecordBatch records an emitted signal batch.
func (m *Metrics) RecordBatch() {
	m.batchesEmitted.Add(1)
}

// RecordDroppedBatch records a batch lost to channel overflow.
func (m *Metrics) RecordDroppedBatch() {
	m.batchesDropped.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// SetActiveFeeds sets the number of venues currently streaming.
func (m *Metrics) SetActiveFeeds(count int32) {
	m.activeFeeds.Store(count)
}

// SetOpenCircuits sets the number of venues excluded by the circuit breaker.
func (m *Metrics) SetOpenCircuits(count int32) {
	m.openCircuits.Store(count)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CyclesTotal      uint64    `json:"cycles_total"`
	CyclesSuccessful uint64    `json:"cycles_successful"`
	QuotesApplied    uint64    `json:"quotes_applied"`
	BatchesEmitted   uint64    `json:"batches_emitted"`
	BatchesDropped   uint64    `json:"batches_dropped"`
	ErrorsTotal      uint64    `json:"errors_total"`
	Recoveries       uint64    `json:"recoveries"`
	AvgCycleNs       int64     `json:"avg_cycle_ns"`
	ActiveFeeds      int32     `json:"active_feeds"`
	OpenCircuits     int32     `json:"open_circuits"`
	LastRecords      int64     `json:"last_records"`
	LastHighSpread   int64     `json:"last_high_spread"`
	Timestamp        time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		CyclesTotal:      m.cyclesTotal.Load(),
		CyclesSuccessful: m.cyclesSuccessful.Load(),
		QuotesApplied:    m.quotesApplied.Load(),
		BatchesEmitted:   m.batchesEmitted.Load(),
		BatchesDropped:   m.batchesDropped.Load(),
		ErrorsTotal:      m.errorsTotal.Load(),
		Recoveries:       m.recoveries.Load(),
		AvgCycleNs:       avgLatency,
		ActiveFeeds:      m.activeFeeds.Load(),
		OpenCircuits:     m.openCircuits.Load(),
		LastRecords:      m.lastRecords.Load(),
		LastHighSpread:   m.lastHigh.Load(),
		Timestamp:        time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.cyclesTotal.Store(0)
	m.cyclesSuccessful.Store(0)
	m.quotesApplied.Store(0)
	m.batchesEmitted.Store(0)
	m.batchesDropped.Store(0)
	m.errorsTotal.Store(0)
	m.recoveries.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeFeeds.Store(0)
	m.openCircuits.Store(0)
	m.lastRecords.Store(0)
	m.lastHigh.Store(0)
}
