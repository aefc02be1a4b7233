package venue

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/infra"
)

const (
	stubDefaultSymbols = 300
	stubDefaultTick    = 500 * time.Millisecond
)

// StubProvider produces synthetic random-walk quotes for offline runs.
// The same symbol set and seed yield the same price path.
type StubProvider struct {
	venue    string
	catalog  []domain.Instrument
	interval time.Duration
	seed     uint64
}

// NewStubProvider creates a stub venue. Without configured symbols it lists
// a fixed synthetic universe shared by every stub venue.
func NewStubProvider(cfg infra.VenueConfig) *StubProvider {
	var catalog []domain.Instrument
	if len(cfg.Symbols) > 0 {
		for _, base := range cfg.Symbols {
			catalog = append(catalog, stubInstrument(base))
		}
	} else {
		for i := 0; i < stubDefaultSymbols; i++ {
			catalog = append(catalog, stubInstrument(fmt.Sprintf("SYN%03d", i)))
		}
	}

	interval := time.Duration(cfg.TickIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = stubDefaultTick
	}

	h := fnv.New64a()
	h.Write([]byte(cfg.Name))

	return &StubProvider{
		venue:    cfg.Name,
		catalog:  catalog,
		interval: interval,
		seed:     h.Sum64(),
	}
}

func stubInstrument(base string) domain.Instrument {
	return domain.Instrument{
		Symbol:      domain.UnifiedSymbol(base, "USDT", "USDT"),
		VenueSymbol: base + "USDT",
		Base:        base,
		Quote:       "USDT",
		Settle:      "USDT",
		Swap:        true,
		Linear:      true,
	}
}

func (p *StubProvider) Venue() string { return p.venue }

func (p *StubProvider) LoadCatalog(ctx context.Context) ([]domain.Instrument, error) {
	out := make([]domain.Instrument, len(p.catalog))
	copy(out, p.catalog)
	return out, nil
}

func (p *StubProvider) StreamQuotes(ctx context.Context, instruments []domain.Instrument) (domain.QuoteStream, error) {
	base := make([]float64, len(instruments))
	for i, inst := range instruments {
		h := fnv.New64a()
		h.Write([]byte(inst.Symbol))
		// Base price depends only on the symbol so venues quote close together
		base[i] = 1 + float64(h.Sum64()%100000)/10
	}
	return &stubStream{
		venue:       p.venue,
		instruments: instruments,
		base:        base,
		dev:         make([]float64, len(instruments)),
		rng:         rand.New(rand.NewPCG(p.seed, uint64(len(instruments)))),
		ticker:      time.NewTicker(p.interval),
		closed:      make(chan struct{}),
	}, nil
}

type stubStream struct {
	venue       string
	instruments []domain.Instrument
	base        []float64
	dev         []float64 // mean-reverting deviation from base
	rng         *rand.Rand
	ticker      *time.Ticker

	mu        sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *stubStream) Next(ctx context.Context) ([]domain.Quote, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, domain.ErrStreamClosed
	case <-s.ticker.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	quotes := make([]domain.Quote, len(s.instruments))
	for i, inst := range s.instruments {
		// ±0.1% step with an occasional ±1.5% dislocation
		step := (s.rng.Float64() - 0.5) * 0.002
		if s.rng.IntN(200) == 0 {
			step = (s.rng.Float64() - 0.5) * 0.03
		}
		s.dev[i] = s.dev[i]*0.9 + step
		quotes[i] = domain.Quote{Instrument: inst.Symbol, Venue: s.venue, Price: s.base[i] * (1 + s.dev[i]), ObservedAt: now}
	}
	return quotes, nil
}

func (s *stubStream) Close() error {
	s.closeOnce.Do(func() {
		s.ticker.Stop()
		close(s.closed)
	})
	return nil
}
