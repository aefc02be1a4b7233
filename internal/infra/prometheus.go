package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesDesc = prometheus.NewDesc("spread_cycles_total",
		"Evaluation cycles by outcome", []string{"outcome"}, nil)
	quotesDesc = prometheus.NewDesc("spread_quotes_applied_total",
		"Quotes written to the price table", nil, nil)
	batchesDesc = prometheus.NewDesc("spread_signal_batches_total",
		"Signal batches by delivery result", []string{"result"}, nil)
	errorsDesc = prometheus.NewDesc("spread_errors_total",
		"Errors observed by the scanner", nil, nil)
	cycleLatencyDesc = prometheus.NewDesc("spread_cycle_avg_seconds",
		"Average evaluation cycle duration", nil, nil)
	activeFeedsDesc = prometheus.NewDesc("spread_active_feeds",
		"Venues currently streaming quotes", nil, nil)
	openCircuitsDesc = prometheus.NewDesc("spread_open_circuits",
		"Venues excluded by the circuit breaker", nil, nil)
	lastRecordsDesc = prometheus.NewDesc("spread_last_cycle_records",
		"Spread records produced by the last cycle", []string{"kind"}, nil)
)

// metricsCollector exposes a Metrics value to Prometheus at scrape time.
type metricsCollector struct {
	m *Metrics
}

func (c metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cyclesDesc
	ch <- quotesDesc
	ch <- batchesDesc
	ch <- errorsDesc
	ch <- cycleLatencyDesc
	ch <- activeFeedsDesc
	ch <- openCircuitsDesc
	ch <- lastRecordsDesc
}

func (c metricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	ch <- prometheus.MustNewConstMetric(cyclesDesc, prometheus.CounterValue, float64(s.CyclesSuccessful), "ok")
	ch <- prometheus.MustNewConstMetric(cyclesDesc, prometheus.CounterValue, float64(s.Recoveries), "recovering")
	ch <- prometheus.MustNewConstMetric(quotesDesc, prometheus.CounterValue, float64(s.QuotesApplied))
	ch <- prometheus.MustNewConstMetric(batchesDesc, prometheus.CounterValue, float64(s.BatchesEmitted), "emitted")
	ch <- prometheus.MustNewConstMetric(batchesDesc, prometheus.CounterValue, float64(s.BatchesDropped), "dropped")
	ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(s.ErrorsTotal))
	ch <- prometheus.MustNewConstMetric(cycleLatencyDesc, prometheus.GaugeValue, float64(s.AvgCycleNs)/1e9)
	ch <- prometheus.MustNewConstMetric(activeFeedsDesc, prometheus.GaugeValue, float64(s.ActiveFeeds))
	ch <- prometheus.MustNewConstMetric(openCircuitsDesc, prometheus.GaugeValue, float64(s.OpenCircuits))
	ch <- prometheus.MustNewConstMetric(lastRecordsDesc, prometheus.GaugeValue, float64(s.LastRecords), "all")
	ch <- prometheus.MustNewConstMetric(lastRecordsDesc, prometheus.GaugeValue, float64(s.LastHighSpread), "high_spread")
}

// NewMetricsRegistry returns a registry exporting m plus the Go runtime collectors.
func NewMetricsRegistry(m *Metrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metricsCollector{m: m},
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler serves reg in the Prometheus text format.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
