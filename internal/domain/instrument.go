package domain

import (
	"strings"
	"time"
)

// Instrument describes one contract listed in a venue catalog.
// Symbol is the cross-venue key: two venues list the "same" contract only when
// their Symbol strings match exactly.
type Instrument struct {
	Symbol      string `json:"symbol"`       // Unified id, e.g. "BTC/USDT:USDT"
	VenueSymbol string `json:"venue_symbol"` // Venue-native id, e.g. "BTCUSDT" or "BTC-USDT-SWAP"
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	Settle      string `json:"settle"`
	Swap        bool   `json:"swap"`   // Perpetual (no expiry)
	Linear      bool   `json:"linear"` // Margined and settled in the quote asset
}

// IsLinearPerpetual reports whether the contract qualifies for spread scanning.
func (i Instrument) IsLinearPerpetual() bool {
	return i.Swap && i.Linear
}

// UnifiedSymbol builds the cross-venue instrument id "BASE/QUOTE:SETTLE".
func UnifiedSymbol(base, quote, settle string) string {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	settle = strings.ToUpper(strings.TrimSpace(settle))
	if settle == "" {
		settle = quote
	}
	return base + "/" + quote + ":" + settle
}

// Quote is the latest traded price of an instrument on one venue.
// There is no exchange timestamp: ObservedAt is the local receive time.
type Quote struct {
	Instrument string    `json:"instrument"`
	Venue      string    `json:"venue"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}
