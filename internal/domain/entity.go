package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentInfo is the persisted catalog entry of one instrument on one venue
type InstrumentInfo struct {
	Venue           string    `gorm:"primaryKey" json:"venue"`
	VenueSymbol     string    `gorm:"primaryKey" json:"venue_symbol"`
	Symbol          string    `gorm:"index" json:"symbol"` // Unified id; not unique per venue (perpetual and futures share it)
	Base            string    `json:"base" gorm:"index"`
	Quote           string    `json:"quote"`
	Settle          string    `json:"settle"`
	LinearPerpetual bool      `json:"linear_perpetual" gorm:"index"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SignalRecord is one persisted high-spread record of an emitted signal batch
type SignalRecord struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchID       string          `gorm:"index" json:"batch_id"`
	Cycle         uint64          `json:"cycle"`
	Rank          int             `json:"rank"` // Position inside the batch, 0 = widest
	Instrument    string          `gorm:"index" json:"instrument"`
	VenueA        string          `json:"venue_a"`
	VenueB        string          `json:"venue_b"`
	PriceA        decimal.Decimal `gorm:"type:text" json:"price_a"`
	PriceB        decimal.Decimal `gorm:"type:text" json:"price_b"`
	Spread        decimal.Decimal `gorm:"type:text" json:"spread"`
	SpreadPercent decimal.Decimal `gorm:"type:text" json:"spread_percent"`
	CreatedAt     time.Time       `gorm:"index" json:"created_at"`
}
