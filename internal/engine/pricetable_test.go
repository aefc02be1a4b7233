package engine

import (
	"math"
	"testing"
	"time"

	"spread_go/internal/domain"
)

func TestPriceTable_LastWriteWins(t *testing.T) {
	table := NewPriceTable()

	table.Apply([]domain.Quote{{Instrument: "BTC-PERP", Venue: "X", Price: 100}})
	table.Apply([]domain.Quote{{Instrument: "BTC-PERP", Venue: "X", Price: 101}})
	table.Apply([]domain.Quote{{Instrument: "BTC-PERP", Venue: "Y", Price: 99}})

	e, ok := table.Snapshot().Lookup("BTC-PERP", "X")
	if !ok {
		t.Fatal("Entry should exist")
	}
	if e.Price != 101 {
		t.Errorf("Expected latest price 101, got %v", e.Price)
	}
	if e.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt to be stamped")
	}
	if table.Len() != 1 {
		t.Errorf("Expected 1 instrument, got %d", table.Len())
	}
}

func TestPriceTable_SkipsNonFinite(t *testing.T) {
	table := NewPriceTable()

	n := table.Apply([]domain.Quote{
		{Instrument: "A", Venue: "X", Price: math.NaN()},
		{Instrument: "B", Venue: "X", Price: math.Inf(1)},
		{Instrument: "C", Venue: "X", Price: 0},
	})

	if n != 1 {
		t.Errorf("Expected 1 applied quote, got %d", n)
	}
	if _, ok := table.Snapshot().Lookup("A", "X"); ok {
		t.Error("NaN price should not be stored")
	}
	if _, ok := table.Snapshot().Lookup("C", "X"); !ok {
		t.Error("Zero price should be stored")
	}
}

func TestPriceTable_SnapshotIsCopy(t *testing.T) {
	table := NewPriceTable()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	table.Apply([]domain.Quote{{Instrument: "ETH", Venue: "X", Price: 10, ObservedAt: at}})

	snap := table.Snapshot()
	table.Apply([]domain.Quote{{Instrument: "ETH", Venue: "X", Price: 20}})

	e, ok := snap.Lookup("ETH", "X")
	if !ok || e.Price != 10 {
		t.Errorf("Snapshot should keep price 10, got %v (ok=%v)", e.Price, ok)
	}
	if !e.UpdatedAt.Equal(at) {
		t.Errorf("Expected ObservedAt to be kept, got %v", e.UpdatedAt)
	}
	if _, ok := snap.Lookup("ETH", "Z"); ok {
		t.Error("Unknown venue should not be found")
	}
}
