package domain

import "math"

// SpreadRecord is the price divergence of one instrument between two venues.
// Spread and SpreadPercent are taken from A's point of view against B, so swapping
// the venues negates Spread but does not simply negate SpreadPercent.
type SpreadRecord struct {
	Instrument    string  `json:"instrument"`
	VenueA        string  `json:"venue_a"`
	VenueB        string  `json:"venue_b"`
	PriceA        float64 `json:"price_a"`
	PriceB        float64 `json:"price_b"`
	Spread        float64 `json:"spread"`
	SpreadPercent float64 `json:"spread_percent"`
}

// NewSpreadRecord computes spread = priceA - priceB and spreadPercent = spread / priceB * 100.
// A zero priceB yields a SpreadPercent of 0.
func NewSpreadRecord(instrument, venueA, venueB string, priceA, priceB float64) SpreadRecord {
	spread := priceA - priceB
	var pct float64
	if priceB != 0 {
		pct = spread / priceB * 100
	}
	return SpreadRecord{
		Instrument:    instrument,
		VenueA:        venueA,
		VenueB:        venueB,
		PriceA:        priceA,
		PriceB:        priceB,
		Spread:        spread,
		SpreadPercent: pct,
	}
}

// AbsPercent returns |SpreadPercent|, the ranking key.
func (r SpreadRecord) AbsPercent() float64 {
	return math.Abs(r.SpreadPercent)
}

// IsHighSpread reports whether |SpreadPercent| is strictly above threshold.
func (r SpreadRecord) IsHighSpread(threshold float64) bool {
	return r.AbsPercent() > threshold
}
