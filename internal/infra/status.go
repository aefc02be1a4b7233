package infra

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"spread_go/internal/domain"

	"github.com/shopspring/decimal"
)

// StatusReporter prints the top spread records at most once per interval.
type StatusReporter struct {
	out      io.Writer
	logger   *slog.Logger
	interval time.Duration
	topN     int
	now      func() time.Time

	mu      sync.Mutex
	lastOut time.Time
}

// NewStatusReporter creates a reporter writing to out.
func NewStatusReporter(out io.Writer, logger *slog.Logger, interval time.Duration, topN int) *StatusReporter {
	if topN <= 0 {
		topN = 10
	}
	return &StatusReporter{
		out:      out,
		logger:   logger,
		interval: interval,
		topN:     topN,
		now:      time.Now,
	}
}

// SetClock replaces the reporter's time source (for testing).
func (r *StatusReporter) SetClock(now func() time.Time) {
	r.now = now
}

// Report prints records if the interval since the previous table has elapsed.
// Records must already be ranked. Returns whether a table was printed.
func (r *StatusReporter) Report(records []domain.SpreadRecord) bool {
	r.mu.Lock()
	now := r.now()
	if !r.lastOut.IsZero() && now.Sub(r.lastOut) < r.interval {
		r.mu.Unlock()
		return false
	}
	r.lastOut = now
	r.mu.Unlock()

	n := min(r.topN, len(records))
	if _, err := io.WriteString(r.out, FormatStatus(now, records[:n])); err != nil && r.logger != nil {
		r.logger.Warn("Failed to write status table", slog.Any("error", err))
	}
	if r.logger != nil {
		r.logger.Info("Status reported", slog.Int("records", len(records)), slog.Int("shown", n))
	}
	return true
}

// FormatStatus renders records as a fixed-width table.
func FormatStatus(at time.Time, records []domain.SpreadRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n=== Top %d spreads @ %s ===\n", len(records), at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "%-24s %-8s %-8s %18s %18s %18s %10s\n",
		"INSTRUMENT", "VENUE_A", "VENUE_B", "PRICE_A", "PRICE_B", "SPREAD", "PCT")
	for _, rec := range records {
		fmt.Fprintf(&b, "%-24s %-8s %-8s %18s %18s %18s %10s\n",
			rec.Instrument,
			rec.VenueA,
			rec.VenueB,
			decimal.NewFromFloat(rec.PriceA).StringFixed(8),
			decimal.NewFromFloat(rec.PriceB).StringFixed(8),
			decimal.NewFromFloat(rec.Spread).StringFixed(8),
			decimal.NewFromFloat(rec.SpreadPercent).StringFixed(4)+"%",
		)
	}
	return b.String()
}
