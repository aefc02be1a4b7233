package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/event"
)

func setupTestDB(t *testing.T) *Storage {
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestUpsertAndGetInstruments(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	instruments := []domain.Instrument{
		{Symbol: "BTC/USDT:USDT", VenueSymbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Settle: "USDT", Swap: true, Linear: true},
		{Symbol: "BTC/USDT:USDT", VenueSymbol: "BTCUSDT_260327", Base: "BTC", Quote: "USDT", Settle: "USDT", Linear: true},
		{Symbol: "ETH/USDT:USDT", VenueSymbol: "ETHUSDT", Base: "ETH", Quote: "USDT", Settle: "USDT", Swap: true, Linear: true},
	}

	// 1. Create
	if err := s.UpsertInstruments(ctx, "binance", instruments); err != nil {
		t.Fatalf("UpsertInstruments failed: %v", err)
	}

	// 2. Get
	all, err := s.GetInstruments(ctx, "binance", false)
	if err != nil {
		t.Fatalf("GetInstruments failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 instruments, got %d", len(all))
	}

	perps, _ := s.GetInstruments(ctx, "binance", true)
	if len(perps) != 2 {
		t.Errorf("expected 2 linear perpetuals, got %d", len(perps))
	}

	// 3. Update in place
	instruments[0].Linear = false
	if err := s.UpsertInstruments(ctx, "binance", instruments[:1]); err != nil {
		t.Fatalf("second UpsertInstruments failed: %v", err)
	}
	perps, _ = s.GetInstruments(ctx, "binance", true)
	if len(perps) != 1 || perps[0].VenueSymbol != "ETHUSDT" {
		t.Errorf("expected only ETHUSDT after update, got %+v", perps)
	}

	counts, err := s.CountInstruments(ctx)
	if err != nil {
		t.Fatalf("CountInstruments failed: %v", err)
	}
	if counts["binance"] != 3 {
		t.Errorf("expected 3 binance rows, got %d", counts["binance"])
	}
}

func TestSaveBatchAndRecentSignals(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	first := event.NewBatch(1, []domain.SpreadRecord{
		domain.NewSpreadRecord("BTC-PERP", "X", "Y", 100, 99),
		domain.NewSpreadRecord("ETH-PERP", "X", "Y", 10, 9.95),
	})
	first.CreatedAt = time.Now().Add(-time.Minute)
	second := event.NewBatch(2, []domain.SpreadRecord{
		domain.NewSpreadRecord("SOL-PERP", "X", "Z", 50, 49),
	})

	if err := s.Handle(ctx, first); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if err := s.SaveBatch(ctx, second); err != nil {
		t.Fatalf("SaveBatch failed: %v", err)
	}

	rows, err := s.RecentSignals(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSignals failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Instrument != "SOL-PERP" {
		t.Errorf("expected newest batch first, got %s", rows[0].Instrument)
	}
	if rows[1].Instrument != "BTC-PERP" || rows[1].Rank != 0 || rows[2].Rank != 1 {
		t.Errorf("expected batch order kept, got %+v", rows[1:])
	}
	if rows[1].Spread.String() != "1" {
		t.Errorf("expected spread 1, got %s", rows[1].Spread)
	}
	if rows[1].BatchID != first.ID {
		t.Errorf("expected batch id %s, got %s", first.ID, rows[1].BatchID)
	}

	btc, _ := s.SignalsForInstrument(ctx, "BTC-PERP", 5)
	if len(btc) != 1 {
		t.Errorf("expected 1 BTC-PERP record, got %d", len(btc))
	}
}

func TestSaveBatch_Empty(t *testing.T) {
	s := setupTestDB(t)
	if err := s.SaveBatch(context.Background(), event.Batch{ID: "empty"}); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}

func TestCachedCatalog(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	s.UpsertInstruments(ctx, "okx", []domain.Instrument{
		{Symbol: "BTC/USDT:USDT", VenueSymbol: "BTC-USDT-SWAP", Base: "BTC", Quote: "USDT", Settle: "USDT", Swap: true, Linear: true},
		{Symbol: "BTC/USD:BTC", VenueSymbol: "BTC-USD-SWAP", Base: "BTC", Quote: "USD", Settle: "BTC", Swap: true},
	})

	catalog, err := s.CachedCatalog(ctx, "okx")
	if err != nil {
		t.Fatalf("CachedCatalog failed: %v", err)
	}
	if len(catalog) != 1 {
		t.Fatalf("Expected 1 linear perpetual, got %d", len(catalog))
	}
	if catalog[0].VenueSymbol != "BTC-USDT-SWAP" || !catalog[0].IsLinearPerpetual() {
		t.Errorf("Unexpected instrument: %+v", catalog[0])
	}

	empty, err := s.CachedCatalog(ctx, "bybit")
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty catalog for unknown venue, got %v, %v", empty, err)
	}
}

func TestSignalsForInstrument_DefaultLimit(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		s.SaveBatch(ctx, event.NewBatch(i, []domain.SpreadRecord{
			domain.NewSpreadRecord("BTC-PERP", "X", "Y", 100, 99),
		}))
	}

	rows, err := s.SignalsForInstrument(ctx, "BTC-PERP", 0)
	if err != nil {
		t.Fatalf("SignalsForInstrument failed: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("Expected 3 rows with the default limit, got %d", len(rows))
	}
}
