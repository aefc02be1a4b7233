package venue

import (
	"context"
	"errors"
	"testing"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/infra"
)

func TestNew(t *testing.T) {
	for _, name := range []string{"binance", "OKX", " bybit ", "bitget", "stub", "stub-b"} {
		p, err := New(infra.VenueConfig{Name: name})
		if err != nil {
			t.Errorf("New(%q) failed: %v", name, err)
			continue
		}
		if p.Venue() == "" {
			t.Errorf("New(%q) returned an unnamed provider", name)
		}
	}

	_, err := New(infra.VenueConfig{Name: "mtgox"})
	if !errors.Is(err, domain.ErrUnknownVenue) {
		t.Errorf("Expected ErrUnknownVenue, got %v", err)
	}
	var ce *domain.ConfigError
	if !errors.As(err, &ce) {
		t.Error("Unknown venues should be configuration errors")
	}
}

func TestNames(t *testing.T) {
	names := Names()
	want := []string{"binance", "bitget", "bybit", "okx", "stub"}
	if len(names) != len(want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestStubProvider(t *testing.T) {
	p := NewStubProvider(infra.VenueConfig{Name: "stub-a", Symbols: []string{"BTC", "ETH"}, TickIntervalMS: 5})

	catalog, _ := p.LoadCatalog(context.Background())
	if len(catalog) != 2 || catalog[0].Symbol != "BTC/USDT:USDT" || !catalog[0].IsLinearPerpetual() {
		t.Fatalf("Unexpected catalog: %+v", catalog)
	}

	stream, err := p.StreamQuotes(context.Background(), catalog)
	if err != nil {
		t.Fatalf("StreamQuotes failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	quotes, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if len(quotes) != 2 || quotes[0].Price <= 0 || quotes[0].Venue != "stub-a" {
		t.Errorf("Unexpected quotes: %+v", quotes)
	}

	stream.Close()
	if _, err := stream.Next(ctx); !errors.Is(err, domain.ErrStreamClosed) {
		t.Errorf("Expected ErrStreamClosed, got %v", err)
	}

	t.Run("default universe", func(t *testing.T) {
		catalog, _ := NewStubProvider(infra.VenueConfig{Name: "stub"}).LoadCatalog(context.Background())
		if len(catalog) != stubDefaultSymbols {
			t.Errorf("Expected %d symbols, got %d", stubDefaultSymbols, len(catalog))
		}
	})
}
