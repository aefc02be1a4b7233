package engine

import (
	"math"
	"sync"
	"time"

	"spread_go/internal/domain"
)

// PriceEntry is the last price a venue streamed for an instrument.
type PriceEntry struct {
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is an immutable copy of the price table: instrument -> venue -> entry.
type Snapshot map[string]map[string]PriceEntry

// Lookup returns the entry for (instrument, venue).
func (s Snapshot) Lookup(instrument, venue string) (PriceEntry, bool) {
	venues, ok := s[instrument]
	if !ok {
		return PriceEntry{}, false
	}
	e, ok := venues[venue]
	return e, ok
}

// PriceTable is the shared last-price store written by every venue.
// Entries are never deleted; the latest write for (instrument, venue) wins.
type PriceTable struct {
	mu      sync.RWMutex
	entries map[string]map[string]PriceEntry
}

// NewPriceTable creates an empty table.
func NewPriceTable() *PriceTable {
	return &PriceTable{
		entries: make(map[string]map[string]PriceEntry),
	}
}

// Apply writes quotes into the table and returns how many were accepted.
// Non-finite prices are ignored.
func (t *PriceTable) Apply(quotes []domain.Quote) int {
	if len(quotes) == 0 {
		return 0
	}
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	applied := 0
	for _, q := range quotes {
		if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
			continue
		}
		at := q.ObservedAt
		if at.IsZero() {
			at = now
		}
		venues, ok := t.entries[q.Instrument]
		if !ok {
			venues = make(map[string]PriceEntry, 4)
			t.entries[q.Instrument] = venues
		}
		venues[q.Venue] = PriceEntry{Price: q.Price, UpdatedAt: at}
		applied++
	}
	return applied
}

// Snapshot returns a deep copy of the table (external read).
func (t *PriceTable) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := make(Snapshot, len(t.entries))
	for instrument, venues := range t.entries {
		cp := make(map[string]PriceEntry, len(venues))
		for venue, e := range venues {
			cp[venue] = e
		}
		snap[instrument] = cp
	}
	return snap
}

// Len returns the number of instruments with at least one price.
func (t *PriceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
