package cache

import (
	"context"
	"testing"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/event"
	"spread_go/internal/infra"
)

func TestLatestKey(t *testing.T) {
	if got := latestKey("BTC/USDT:USDT"); got != "spread:latest:BTC/USDT:USDT" {
		t.Errorf("Expected spread:latest:BTC/USDT:USDT, got %s", got)
	}
}

func TestRecordFields(t *testing.T) {
	b := event.NewBatch(7, nil)
	rec := domain.NewSpreadRecord("BTC-PERP", "X", "Y", 100, 99)

	fields := recordFields(b, rec)
	if len(fields)%2 != 0 {
		t.Fatalf("Expected field/value pairs, got %d items", len(fields))
	}
	got := map[string]interface{}{}
	for i := 0; i < len(fields); i += 2 {
		got[fields[i].(string)] = fields[i+1]
	}

	tests := []struct {
		field string
		want  string
	}{
		{"batch_id", b.ID},
		{"cycle", "7"},
		{"venue_a", "X"},
		{"venue_b", "Y"},
		{"price_a", "100"},
		{"spread", "1"},
	}
	for _, tt := range tests {
		if got[tt.field] != tt.want {
			t.Errorf("Field %s: expected %s, got %v", tt.field, tt.want, got[tt.field])
		}
	}
}

func TestHandle_Unreachable(t *testing.T) {
	sink := NewRedisSink(infra.RedisConfig{Address: "127.0.0.1:1", TTLSec: 60})
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sink.Handle(ctx, event.Batch{}); err != nil {
		t.Errorf("Empty batch should be a no-op, got %v", err)
	}

	b := event.NewBatch(1, []domain.SpreadRecord{domain.NewSpreadRecord("BTC-PERP", "X", "Y", 100, 99)})
	err := sink.Handle(ctx, b)
	if err == nil {
		t.Fatal("Expected an error against an unreachable server")
	}
	if !domain.IsRetriable(err) {
		t.Errorf("Expected a retriable network error, got %v", err)
	}
}
