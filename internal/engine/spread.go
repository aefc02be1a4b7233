package engine

import (
	"sort"
	"time"

	"spread_go/internal/domain"
)

// EvalParams tunes one spread evaluation.
type EvalParams struct {
	ThresholdPercent float64       // high-spread when |pct| > threshold
	BatchSize        int           // records per signal batch
	MinRecords       int           // significance gate on all records
	MinHighSpread    int           // significance gate on high-spread records
	MaxQuoteAge      time.Duration // 0 disables the staleness bound
}

// DefaultEvalParams returns the stock thresholds.
func DefaultEvalParams() EvalParams {
	return EvalParams{
		ThresholdPercent: 0.5,
		BatchSize:        3,
		MinRecords:       250,
		MinHighSpread:    3,
	}
}

// CycleResult is the outcome of one evaluation.
// Records and HighSpread are both ranked by descending |SpreadPercent|.
type CycleResult struct {
	Records     []domain.SpreadRecord
	HighSpread  []domain.SpreadRecord
	Significant bool
}

// Batch returns the records to emit: the top n high-spread records of a significant cycle.
func (r CycleResult) Batch(n int) []domain.SpreadRecord {
	if !r.Significant || n <= 0 {
		return nil
	}
	return r.HighSpread[:min(n, len(r.HighSpread))]
}

// Evaluate joins a price snapshot with the pair index and classifies the result.
// Pairs whose venue is excluded are skipped, as are instruments missing a price
// on either side or, with MaxQuoteAge set, quoted before now-MaxQuoteAge.
func Evaluate(snap Snapshot, index []PairIndex, p EvalParams, now time.Time, excluded func(venue string) bool) CycleResult {
	var records []domain.SpreadRecord

	fresh := func(e PriceEntry) bool {
		return p.MaxQuoteAge <= 0 || now.Sub(e.UpdatedAt) <= p.MaxQuoteAge
	}

	for _, pi := range index {
		if excluded != nil && (excluded(pi.Pair.A) || excluded(pi.Pair.B)) {
			continue
		}
		for _, instrument := range pi.Instruments {
			a, ok := snap.Lookup(instrument, pi.Pair.A)
			if !ok || !fresh(a) {
				continue
			}
			b, ok := snap.Lookup(instrument, pi.Pair.B)
			if !ok || !fresh(b) {
				continue
			}
			records = append(records, domain.NewSpreadRecord(instrument, pi.Pair.A, pi.Pair.B, a.Price, b.Price))
		}
	}

	Rank(records)

	// Filtering the ranked slice keeps the high-spread list in ranking order.
	var high []domain.SpreadRecord
	for _, rec := range records {
		if rec.IsHighSpread(p.ThresholdPercent) {
			high = append(high, rec)
		}
	}

	return CycleResult{
		Records:     records,
		HighSpread:  high,
		Significant: IsSignificant(len(records), len(high), p),
	}
}

// Rank sorts records in place by descending |SpreadPercent|; ties keep their order.
func Rank(records []domain.SpreadRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].AbsPercent() > records[j].AbsPercent()
	})
}

// IsSignificant applies the cycle gate: enough records overall and enough high-spread ones.
func IsSignificant(records, highSpread int, p EvalParams) bool {
	return records >= p.MinRecords && highSpread >= p.MinHighSpread
}
