package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"spread_go/internal/domain"
)

func perp(symbol string) domain.Instrument {
	return domain.Instrument{Symbol: symbol, VenueSymbol: symbol, Swap: true, Linear: true}
}

func makeCatalog(n int) []domain.Instrument {
	out := make([]domain.Instrument, n)
	for i := range out {
		out[i] = perp(fmt.Sprintf("SYM%03d/USDT:USDT", i))
	}
	return out
}

// fakeProvider serves a fixed catalog; each Next call asks quotes for the next batch.
type fakeProvider struct {
	venue      string
	catalog    []domain.Instrument
	catalogErr error
	subErr     error

	// quotes returns the batch for the n-th Next call across all streams (1-based).
	quotes func(n int, instruments []domain.Instrument) ([]domain.Quote, error)

	calls   atomic.Int32
	opened  atomic.Int32
	closed  atomic.Int32
	blockCh chan struct{} // when set, Next blocks until closed or ctx done
}

func (p *fakeProvider) Venue() string { return p.venue }

func (p *fakeProvider) LoadCatalog(ctx context.Context) ([]domain.Instrument, error) {
	if p.catalogErr != nil {
		return nil, p.catalogErr
	}
	return p.catalog, nil
}

func (p *fakeProvider) StreamQuotes(ctx context.Context, instruments []domain.Instrument) (domain.QuoteStream, error) {
	if p.subErr != nil {
		return nil, p.subErr
	}
	p.opened.Add(1)
	return &fakeStream{p: p, instruments: instruments}, nil
}

type fakeStream struct {
	p           *fakeProvider
	instruments []domain.Instrument
	once        sync.Once
}

func (s *fakeStream) Next(ctx context.Context) ([]domain.Quote, error) {
	if s.p.blockCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.p.blockCh:
		}
	}
	n := int(s.p.calls.Add(1))
	if s.p.quotes == nil {
		return constQuotes(s.p.venue, s.instruments, 100), nil
	}
	return s.p.quotes(n, s.instruments)
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { s.p.closed.Add(1) })
	return nil
}

func constQuotes(venue string, instruments []domain.Instrument, price float64) []domain.Quote {
	out := make([]domain.Quote, len(instruments))
	for i, inst := range instruments {
		out[i] = domain.Quote{Instrument: inst.Symbol, Venue: venue, Price: price}
	}
	return out
}

// countingStatus cancels after limit reports.
type countingStatus struct {
	mu      sync.Mutex
	reports [][]domain.SpreadRecord
	limit   int
	cancel  context.CancelFunc
}

func (c *countingStatus) Report(records []domain.SpreadRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, records)
	if c.limit > 0 && len(c.reports) >= c.limit && c.cancel != nil {
		c.cancel()
	}
	return true
}

func (c *countingStatus) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}
