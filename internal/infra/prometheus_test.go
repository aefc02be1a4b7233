package infra

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsHandler(t *testing.T) {
	m := &Metrics{}
	m.RecordCycle(2e9, 300, 4)
	m.RecordBatch()
	m.SetActiveFeeds(3)

	srv := httptest.NewServer(MetricsHandler(NewMetricsRegistry(m)))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`spread_cycles_total{outcome="ok"} 1`,
		`spread_signal_batches_total{result="emitted"} 1`,
		`spread_active_feeds 3`,
		`spread_last_cycle_records{kind="high_spread"} 4`,
		`spread_cycle_avg_seconds 2`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected scrape to contain %q", want)
		}
	}
}
