package engine

import (
	"fmt"
	"math"
	"testing"
	"time"

	"spread_go/internal/domain"
)

// buildScenario returns a snapshot/index pair with total records of which high are above 0.5%.
// High-spread instrument i is priced 100+i against 99 so the ranking is known.
func buildScenario(total, high int) (Snapshot, []PairIndex) {
	snap := Snapshot{}
	pi := PairIndex{Pair: VenuePair{A: "A", B: "B"}}
	now := time.Now()
	for i := 0; i < total; i++ {
		sym := fmt.Sprintf("SYM%03d", i)
		priceA := 100.0
		priceB := 100.0
		if i < high {
			priceA = 100 + float64(i)
			priceB = 99
		}
		snap[sym] = map[string]PriceEntry{
			"A": {Price: priceA, UpdatedAt: now},
			"B": {Price: priceB, UpdatedAt: now},
		}
		pi.Instruments = append(pi.Instruments, sym)
	}
	return snap, []PairIndex{pi}
}

func TestEvaluate_Scenario(t *testing.T) {
	snap := Snapshot{
		"BTC-PERP": {"X": {Price: 100}, "Y": {Price: 99}},
	}
	index := []PairIndex{{Pair: VenuePair{A: "X", B: "Y"}, Instruments: []string{"BTC-PERP"}}}

	res := Evaluate(snap, index, DefaultEvalParams(), time.Now(), nil)

	if len(res.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(res.Records))
	}
	rec := res.Records[0]
	if rec.Spread != 1.0 {
		t.Errorf("Expected spread 1.0, got %v", rec.Spread)
	}
	if math.Abs(rec.SpreadPercent-1.0101) > 1e-4 {
		t.Errorf("Expected pct ~1.0101, got %v", rec.SpreadPercent)
	}
	if len(res.HighSpread) != 1 {
		t.Error("Expected the record to be high-spread")
	}
	if res.Significant {
		t.Error("A single record must not be significant")
	}
}

func TestEvaluate_SkipsMissingPrices(t *testing.T) {
	snap := Snapshot{
		"BTC": {"X": {Price: 100}},
		"ETH": {"X": {Price: 10}, "Y": {Price: 10}},
	}
	index := []PairIndex{{Pair: VenuePair{A: "X", B: "Y"}, Instruments: []string{"BTC", "ETH", "SOL"}}}

	res := Evaluate(snap, index, DefaultEvalParams(), time.Now(), nil)

	if len(res.Records) != 1 || res.Records[0].Instrument != "ETH" {
		t.Errorf("Expected only ETH, got %+v", res.Records)
	}
}

func TestEvaluate_ZeroPriceB(t *testing.T) {
	snap := Snapshot{"DOGE": {"X": {Price: 5}, "Y": {Price: 0}}}
	index := []PairIndex{{Pair: VenuePair{A: "X", B: "Y"}, Instruments: []string{"DOGE"}}}

	res := Evaluate(snap, index, DefaultEvalParams(), time.Now(), nil)

	if len(res.Records) != 1 {
		t.Fatalf("Expected the record to be kept, got %d", len(res.Records))
	}
	if res.Records[0].SpreadPercent != 0 || len(res.HighSpread) != 0 {
		t.Errorf("Expected pct 0 and not high-spread, got %+v", res.Records[0])
	}
}

func TestEvaluate_Staleness(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	snap := Snapshot{
		"FRESH": {"X": {Price: 100, UpdatedAt: now}, "Y": {Price: 99, UpdatedAt: now.Add(-time.Second)}},
		"STALE": {"X": {Price: 100, UpdatedAt: now}, "Y": {Price: 99, UpdatedAt: now.Add(-time.Minute)}},
	}
	index := []PairIndex{{Pair: VenuePair{A: "X", B: "Y"}, Instruments: []string{"FRESH", "STALE"}}}

	t.Run("disabled by default", func(t *testing.T) {
		res := Evaluate(snap, index, DefaultEvalParams(), now, nil)
		if len(res.Records) != 2 {
			t.Errorf("Expected 2 records, got %d", len(res.Records))
		}
	})

	t.Run("bound applied", func(t *testing.T) {
		p := DefaultEvalParams()
		p.MaxQuoteAge = 5 * time.Second
		res := Evaluate(snap, index, p, now, nil)
		if len(res.Records) != 1 || res.Records[0].Instrument != "FRESH" {
			t.Errorf("Expected only FRESH, got %+v", res.Records)
		}
	})
}

func TestEvaluate_ExcludedVenue(t *testing.T) {
	snap := Snapshot{"BTC": {"X": {Price: 100}, "Y": {Price: 99}, "Z": {Price: 98}}}
	index := []PairIndex{
		{Pair: VenuePair{A: "X", B: "Y"}, Instruments: []string{"BTC"}},
		{Pair: VenuePair{A: "X", B: "Z"}, Instruments: []string{"BTC"}},
	}

	res := Evaluate(snap, index, DefaultEvalParams(), time.Now(), func(v string) bool { return v == "Z" })

	if len(res.Records) != 1 || res.Records[0].VenueB != "Y" {
		t.Errorf("Expected only the X/Y record, got %+v", res.Records)
	}
}

func TestRank_StableDescending(t *testing.T) {
	records := []domain.SpreadRecord{
		{Instrument: "a", SpreadPercent: 0.2},
		{Instrument: "b", SpreadPercent: -0.9},
		{Instrument: "c", SpreadPercent: 0.9},
		{Instrument: "d", SpreadPercent: 0.2},
		{Instrument: "e", SpreadPercent: 1.5},
	}

	Rank(records)

	want := []string{"e", "b", "c", "a", "d"}
	for i, rec := range records {
		if rec.Instrument != want[i] {
			t.Errorf("Position %d = %s, want %s", i, rec.Instrument, want[i])
		}
	}
}

func TestEvaluate_SignificanceGate(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		high        int
		significant bool
	}{
		{"too few records", 249, 5, false},
		{"too few high-spread", 300, 2, false},
		{"exact gate", 250, 3, true},
		{"many high-spread", 400, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, index := buildScenario(tt.total, tt.high)
			p := DefaultEvalParams()

			res := Evaluate(snap, index, p, time.Now(), nil)

			if len(res.Records) != tt.total {
				t.Fatalf("Expected %d records, got %d", tt.total, len(res.Records))
			}
			if len(res.HighSpread) != tt.high {
				t.Fatalf("Expected %d high-spread, got %d", tt.high, len(res.HighSpread))
			}
			if res.Significant != tt.significant {
				t.Errorf("Expected significant=%v, got %v", tt.significant, res.Significant)
			}

			batch := res.Batch(p.BatchSize)
			if !tt.significant {
				if len(batch) != 0 {
					t.Errorf("Expected no batch, got %d records", len(batch))
				}
				return
			}
			if len(batch) != 3 {
				t.Fatalf("Expected batch of 3, got %d", len(batch))
			}
			// Highest-priced A sides rank first
			for i, rec := range batch {
				want := fmt.Sprintf("SYM%03d", tt.high-1-i)
				if rec.Instrument != want {
					t.Errorf("Batch[%d] = %s, want %s", i, rec.Instrument, want)
				}
			}
		})
	}
}

func BenchmarkEvaluate(b *testing.B) {
	snap, index := buildScenario(2000, 50)
	p := DefaultEvalParams()
	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Evaluate(snap, index, p, now, nil)
	}
}
