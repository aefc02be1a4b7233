package event

import (
	"time"

	"spread_go/internal/domain"

	"github.com/google/uuid"
)

// Batch is a signal batch: the top high-spread records of one significant cycle.
// It is enqueued and delivered as a single unit.
type Batch struct {
	ID        string                `json:"id"`
	Cycle     uint64                `json:"cycle"`
	CreatedAt time.Time             `json:"created_at"`
	Records   []domain.SpreadRecord `json:"records"`
}

// NewBatch creates a batch owning a copy of records.
func NewBatch(cycle uint64, records []domain.SpreadRecord) Batch {
	owned := make([]domain.SpreadRecord, len(records))
	copy(owned, records)
	return Batch{
		ID:        uuid.NewString(),
		Cycle:     cycle,
		CreatedAt: time.Now(),
		Records:   owned,
	}
}
