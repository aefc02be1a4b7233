package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/event"
	"spread_go/internal/infra"

	"golang.org/x/sync/errgroup"
)

const defaultIdlePause = time.Second

// State is the outer loop state.
type State int32

const (
	StateRunning State = iota
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// StatusSink receives the full ranking of every cycle; it decides itself when to render.
type StatusSink interface {
	Report(records []domain.SpreadRecord) bool
}

// Options configures a Scanner.
type Options struct {
	Eval               EvalParams
	Ingest             IngestOptions
	RecoveryPause      time.Duration
	ExponentialBackoff bool
	MaxRecoveryPause   time.Duration
	IdlePause          time.Duration // wait between cycles while there is nothing to scan
	DumpFile           string

	// OnCatalogs is called once catalogs are loaded (e.g. to persist them).
	OnCatalogs func(map[string][]domain.Instrument)
	// CatalogFallback serves a previously stored catalog when a venue's live catalog fails.
	CatalogFallback func(ctx context.Context, venue string) ([]domain.Instrument, error)
}

// Scanner drives evaluation cycles: ingest, evaluate, report, signal.
// A failed cycle moves it to Recovering; after the pause it runs again.
type Scanner struct {
	venues   []string
	provider map[string]domain.FeedProvider
	table    *PriceTable
	ingestor *Ingestor
	signals  *event.Channel
	status   StatusSink
	opts     Options
	metrics  *infra.Metrics
	logger   *slog.Logger

	state atomic.Int32
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex // Guards index, latest and cycle for external reads (API)
	index  []PairIndex
	latest []domain.SpreadRecord
	cycle  uint64
}

// NewScanner creates a scanner over providers (in configured venue order).
// status may be nil.
func NewScanner(providers []domain.FeedProvider, table *PriceTable, signals *event.Channel, status StatusSink, opts Options) *Scanner {
	if opts.RecoveryPause <= 0 {
		opts.RecoveryPause = 5 * time.Second
	}
	if opts.MaxRecoveryPause < opts.RecoveryPause {
		opts.MaxRecoveryPause = opts.RecoveryPause
	}
	if opts.IdlePause <= 0 {
		opts.IdlePause = defaultIdlePause
	}
	if opts.Ingest.Metrics == nil {
		opts.Ingest.Metrics = infra.GlobalMetrics
	}

	venues := make([]string, len(providers))
	byVenue := make(map[string]domain.FeedProvider, len(providers))
	for i, p := range providers {
		venues[i] = p.Venue()
		byVenue[p.Venue()] = p
	}

	return &Scanner{
		venues:   venues,
		provider: byVenue,
		table:    table,
		ingestor: NewIngestor(table, providers, opts.Ingest),
		signals:  signals,
		status:   status,
		opts:     opts,
		metrics:  opts.Ingest.Metrics,
		logger:   slog.Default().With("module", "scanner"),
		sleep:    sleepCtx,
	}
}

// Run loops until ctx is done. It returns nil on cancellation and a
// *domain.ConfigError when the configuration can never work.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("Scanner started", slog.Any("venues", s.venues))
	defer s.ingestor.Close()

	retry := 0
	for {
		if ctx.Err() != nil {
			s.logger.Info("Scanner stopping...")
			return nil
		}

		err := s.step(ctx)
		if err == nil {
			retry = 0
			continue
		}
		if ctx.Err() != nil {
			s.logger.Info("Scanner stopping...")
			return nil
		}

		var ce *domain.ConfigError
		if errors.As(err, &ce) {
			s.logger.Error("Configuration error, scanner halted", slog.Any("error", err))
			return err
		}

		s.state.Store(int32(StateRecovering))
		s.metrics.RecordFailedCycle()
		pause := s.recoveryPause(retry)
		retry++
		s.logger.Warn("Cycle failed, recovering",
			slog.Any("error", err),
			slog.Bool("retriable", domain.IsRetriable(err)),
			slog.Duration("pause", pause),
			slog.Int("attempt", retry),
		)

		if err := s.sleep(ctx, pause); err != nil {
			s.logger.Info("Scanner stopping...")
			return nil
		}
		s.state.Store(int32(StateRunning))
	}
}

// step loads catalogs on first use, then runs one cycle.
func (s *Scanner) step(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.index != nil
	s.mu.RUnlock()

	if !loaded {
		if err := s.LoadCatalogs(ctx); err != nil {
			return err
		}
	}
	if err := s.RunCycle(ctx); err != nil {
		return err
	}

	// No stream ever blocks when nothing is subscribed or comparable.
	if s.idle() {
		s.logger.Debug("Nothing to scan, idling", slog.Duration("pause", s.opts.IdlePause))
		return s.sleep(ctx, s.opts.IdlePause)
	}
	return nil
}

func (s *Scanner) idle() bool {
	s.mu.RLock()
	empty := IndexSize(s.index) == 0
	s.mu.RUnlock()
	return empty || !s.ingestor.Subscribed()
}

// LoadCatalogs fetches every venue catalog concurrently and builds the pair index.
func (s *Scanner) LoadCatalogs(ctx context.Context) error {
	catalogs := make(map[string][]domain.Instrument, len(s.venues))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, venue := range s.venues {
		p := s.provider[venue]
		g.Go(func() error {
			instruments, err := p.LoadCatalog(gctx)
			if err != nil {
				instruments, err = s.cachedCatalog(gctx, venue, err)
				if err != nil {
					return domain.AsFeedError(venue, "catalog", err)
				}
			}
			mu.Lock()
			catalogs[venue] = instruments
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	index := BuildPairIndex(s.venues, catalogs)
	s.ingestor.SetCatalogs(catalogs)

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()

	for _, pi := range index {
		s.logger.Info("Common instruments", slog.String("pair", pi.Pair.String()), slog.Int("count", len(pi.Instruments)))
	}
	s.logger.Info("Catalogs loaded", slog.Int("venues", len(catalogs)), slog.Int("pair_instruments", IndexSize(index)))

	if s.opts.OnCatalogs != nil {
		s.opts.OnCatalogs(catalogs)
	}
	return nil
}

// cachedCatalog falls back to the stored catalog; the live error is kept when none exists.
func (s *Scanner) cachedCatalog(ctx context.Context, venue string, liveErr error) ([]domain.Instrument, error) {
	if s.opts.CatalogFallback == nil || ctx.Err() != nil {
		return nil, liveErr
	}
	instruments, err := s.opts.CatalogFallback(ctx, venue)
	if err != nil || len(instruments) == 0 {
		if err != nil {
			s.logger.Warn("Stored catalog unavailable", slog.String("venue", venue), slog.Any("error", err))
		}
		return nil, liveErr
	}
	s.logger.Warn("Live catalog failed, using stored catalog",
		slog.String("venue", venue),
		slog.Int("instruments", len(instruments)),
		slog.Any("error", liveErr))
	return instruments, nil
}

// RunCycle runs one full cycle. A panic is recovered into an error after dumping state.
func (s *Scanner) RunCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.opts.DumpFile)
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	start := time.Now()

	if _, err := s.ingestor.Ingest(ctx); err != nil {
		return err
	}

	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()

	result := Evaluate(s.table.Snapshot(), index, s.opts.Eval, s.now(), s.ingestor.IsExcluded)

	s.mu.Lock()
	s.cycle++
	cycle := s.cycle
	s.latest = result.Records
	s.mu.Unlock()

	s.metrics.RecordCycle(time.Since(start).Nanoseconds(), len(result.Records), len(result.HighSpread))
	s.logger.Debug("Cycle complete",
		slog.Uint64("cycle", cycle),
		slog.Int("records", len(result.Records)),
		slog.Int("priced_instruments", s.table.Len()),
		slog.Duration("took", time.Since(start)),
	)

	if s.status != nil {
		s.status.Report(result.Records)
	}

	records := result.Batch(s.opts.Eval.BatchSize)
	if len(records) == 0 {
		return nil
	}
	return s.emit(ctx, event.NewBatch(cycle, records))
}

func (s *Scanner) emit(ctx context.Context, b event.Batch) error {
	dropped := s.signals.Dropped()
	err := s.signals.Send(ctx, b)
	for i := dropped; i < s.signals.Dropped(); i++ {
		s.metrics.RecordDroppedBatch()
	}

	switch {
	case err == nil:
		s.metrics.RecordBatch()
		s.logger.Info("Signal batch emitted",
			slog.String("batch_id", b.ID),
			slog.Uint64("cycle", b.Cycle),
			slog.String("top", b.Records[0].Instrument),
			slog.Float64("top_pct", b.Records[0].SpreadPercent),
		)
		return nil
	case errors.Is(err, domain.ErrChannelFull):
		s.logger.Warn("Signal batch rejected", slog.String("batch_id", b.ID), slog.Uint64("cycle", b.Cycle))
		return nil
	default:
		return err
	}
}

func (s *Scanner) recoveryPause(retry int) time.Duration {
	if !s.opts.ExponentialBackoff {
		return s.opts.RecoveryPause
	}
	return infra.CalculateBackoffFrom(s.opts.RecoveryPause, s.opts.MaxRecoveryPause, retry)
}

func (s *Scanner) now() time.Time {
	if s.opts.Ingest.Now != nil {
		return s.opts.Ingest.Now()
	}
	return time.Now()
}

// State returns the current loop state.
func (s *Scanner) State() State {
	return State(s.state.Load())
}

// Latest returns the ranking of the last completed cycle and its number (external read).
func (s *Scanner) Latest() ([]domain.SpreadRecord, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SpreadRecord, len(s.latest))
	copy(out, s.latest)
	return out, s.cycle
}

// Pairs returns the pair index, nil before catalogs are loaded.
func (s *Scanner) Pairs() []PairIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// DumpState writes the price table and last ranking to a file (for post-mortem).
func (s *Scanner) DumpState(filename string) {
	if filename == "" {
		return
	}
	slog.Info("Dumping internal state...", slog.String("file", filename))

	latest, cycle := s.Latest()
	data := struct {
		Cycle  uint64                `json:"cycle"`
		State  string                `json:"state"`
		Prices Snapshot              `json:"prices"`
		Latest []domain.SpreadRecord `json:"latest"`
	}{
		Cycle:  cycle,
		State:  s.State().String(),
		Prices: s.table.Snapshot(),
		Latest: latest,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
