package domain

import "context"

// FeedProvider is one venue's market-data capability.
type FeedProvider interface {
	// Venue returns the venue identifier quotes are tagged with.
	Venue() string
	// LoadCatalog returns every instrument the venue lists.
	LoadCatalog(ctx context.Context) ([]Instrument, error)
	// StreamQuotes opens one continuous subscription for instruments.
	StreamQuotes(ctx context.Context, instruments []Instrument) (QuoteStream, error)
}

// QuoteStream is a lazy, non-restartable sequence of quote batches.
// Once Next returns an error other than a context error the stream is dead
// and must be closed; a fresh stream is obtained from StreamQuotes.
type QuoteStream interface {
	Next(ctx context.Context) ([]Quote, error)
	Close() error
}
