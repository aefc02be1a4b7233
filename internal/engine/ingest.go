package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/infra"

	"golang.org/x/sync/errgroup"
)

// FailurePolicy decides what a venue failure does to the rest of a cycle.
type FailurePolicy string

const (
	// PolicyAbortCycle fails the whole cycle on the first venue error.
	PolicyAbortCycle FailurePolicy = "abort_cycle"
	// PolicyIsolateVenue drops only the failing venue's batch for the cycle.
	PolicyIsolateVenue FailurePolicy = "isolate_venue"
)

// IngestOptions configures an Ingestor.
type IngestOptions struct {
	Policy       FailurePolicy
	VenueTimeout time.Duration // 0 waits for each venue indefinitely
	MaxFailures  int           // consecutive failures before a venue is excluded; 0 disables
	Cooldown     time.Duration // exclusion length; 0 excludes for the rest of the process
	Metrics      *infra.Metrics
	Now          func() time.Time
}

type venueFeed struct {
	provider    domain.FeedProvider
	instruments []domain.Instrument
	stream      domain.QuoteStream

	// circuit breaker
	failures  int
	open      bool
	openUntil time.Time
}

// Ingestor runs the per-cycle fan-in: every active venue delivers one batch
// into the price table before the cycle moves on.
type Ingestor struct {
	table  *PriceTable
	opts   IngestOptions
	logger *slog.Logger

	mu    sync.Mutex
	feeds []*venueFeed
}

// NewIngestor creates an ingestor writing into table, one feed per provider.
func NewIngestor(table *PriceTable, providers []domain.FeedProvider, opts IngestOptions) *Ingestor {
	if opts.Policy == "" {
		opts.Policy = PolicyAbortCycle
	}
	if opts.Metrics == nil {
		opts.Metrics = infra.GlobalMetrics
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	feeds := make([]*venueFeed, len(providers))
	for i, p := range providers {
		feeds[i] = &venueFeed{provider: p}
	}
	return &Ingestor{
		table:  table,
		opts:   opts,
		logger: slog.Default().With("module", "ingest"),
		feeds:  feeds,
	}
}

// SetCatalogs stores the linear-perpetual subset of each venue's catalog.
// Open streams are closed so the next cycle subscribes to the new set.
func (in *Ingestor) SetCatalogs(catalogs map[string][]domain.Instrument) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, f := range in.feeds {
		f.instruments = QualifyingInstruments(catalogs[f.provider.Venue()])
		if f.stream != nil {
			_ = f.stream.Close()
			f.stream = nil
		}
	}
}

// Ingest waits for one batch from every active venue and applies it to the table.
// It returns the number of quotes applied.
func (in *Ingestor) Ingest(ctx context.Context) (int, error) {
	active := in.activeFeeds()
	if len(active) == 0 {
		return 0, domain.ErrNoActiveFeeds
	}

	var (
		countMu sync.Mutex
		applied int
		errs    []error
		failed  int
	)
	fetchInto := func(gctx context.Context, f *venueFeed) (err error) {
		var n int
		defer func() {
			if r := recover(); r != nil {
				err = domain.NewFeedError(f.provider.Venue(), "read", fmt.Errorf("panic: %v", r))
				in.closeStream(f)
			}
			countMu.Lock()
			defer countMu.Unlock()
			applied += n
			if err != nil {
				errs = append(errs, err)
				failed++
			}
		}()
		n, err = in.fetch(ctx, gctx, f)
		return err
	}

	switch in.opts.Policy {
	case PolicyIsolateVenue:
		var g errgroup.Group
		for _, f := range active {
			g.Go(func() error {
				_ = fetchInto(ctx, f)
				return nil
			})
		}
		_ = g.Wait()
		if failed == len(active) {
			in.publishGauges()
			return applied, fmt.Errorf("%w: %w", domain.ErrNoActiveFeeds, errors.Join(errs...))
		}
		for _, err := range errs {
			in.logger.Warn("Venue isolated for this cycle", slog.Any("error", err))
		}
	default:
		g, gctx := errgroup.WithContext(ctx)
		for _, f := range active {
			g.Go(func() error {
				return fetchInto(gctx, f)
			})
		}
		if err := g.Wait(); err != nil {
			in.publishGauges()
			return applied, err
		}
	}

	in.opts.Metrics.RecordQuotes(applied)
	in.publishGauges()
	return applied, nil
}

// fetch opens the venue stream if needed and applies its next batch.
// Streams are opened with the long-lived ctx; waits use cycleCtx.
func (in *Ingestor) fetch(ctx, cycleCtx context.Context, f *venueFeed) (int, error) {
	venue := f.provider.Venue()
	if len(f.instruments) == 0 {
		return 0, nil
	}

	if f.stream == nil {
		stream, err := f.provider.StreamQuotes(ctx, f.instruments)
		if err != nil {
			fe := domain.AsFeedError(venue, "subscribe", err)
			in.recordFailure(f, fe)
			return 0, fe
		}
		in.mu.Lock()
		f.stream = stream
		in.mu.Unlock()
		in.logger.Info("Stream opened", slog.String("venue", venue), slog.Int("instruments", len(f.instruments)))
	}

	waitCtx := cycleCtx
	if in.opts.VenueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(cycleCtx, in.opts.VenueTimeout)
		defer cancel()
	}

	quotes, err := f.stream.Next(waitCtx)
	if err != nil {
		// Interrupted by the cycle (another venue failed, or shutdown): the stream stays usable.
		if cycleCtx.Err() != nil {
			return 0, cycleCtx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) && waitCtx.Err() != nil {
			in.logger.Debug("Venue timed out, contributing empty batch", slog.String("venue", venue))
			return 0, nil
		}
		fe := domain.AsFeedError(venue, "read", err)
		in.closeStream(f)
		in.recordFailure(f, fe)
		return 0, fe
	}

	in.mu.Lock()
	f.failures = 0
	in.mu.Unlock()

	return in.table.Apply(quotes), nil
}

// activeFeeds returns the feeds not excluded by the circuit breaker, closing circuits whose cooldown elapsed.
func (in *Ingestor) activeFeeds() []*venueFeed {
	now := in.opts.Now()
	in.mu.Lock()
	defer in.mu.Unlock()

	active := make([]*venueFeed, 0, len(in.feeds))
	for _, f := range in.feeds {
		if f.open {
			if f.openUntil.IsZero() || now.Before(f.openUntil) {
				continue
			}
			f.open = false
			f.failures = 0
			in.logger.Info("Circuit closed, venue re-admitted", slog.String("venue", f.provider.Venue()))
		}
		active = append(active, f)
	}
	return active
}

func (in *Ingestor) recordFailure(f *venueFeed, err error) {
	in.opts.Metrics.RecordError()

	in.mu.Lock()
	defer in.mu.Unlock()

	f.failures++
	if in.opts.MaxFailures <= 0 || f.failures < in.opts.MaxFailures || f.open {
		return
	}
	f.open = true
	f.openUntil = time.Time{}
	if in.opts.Cooldown > 0 {
		f.openUntil = in.opts.Now().Add(in.opts.Cooldown)
	}
	in.logger.Error("Circuit opened, venue excluded",
		slog.String("venue", f.provider.Venue()),
		slog.Int("failures", f.failures),
		slog.Duration("cooldown", in.opts.Cooldown),
		slog.Any("error", err),
	)
}

func (in *Ingestor) closeStream(f *venueFeed) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if f.stream != nil {
		_ = f.stream.Close()
		f.stream = nil
	}
}

func (in *Ingestor) publishGauges() {
	in.mu.Lock()
	defer in.mu.Unlock()
	var streaming, open int32
	for _, f := range in.feeds {
		if f.stream != nil {
			streaming++
		}
		if f.open {
			open++
		}
	}
	in.opts.Metrics.SetActiveFeeds(streaming)
	in.opts.Metrics.SetOpenCircuits(open)
}

// Subscribed reports whether any feed outside the circuit breaker has instruments to stream.
func (in *Ingestor) Subscribed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, f := range in.feeds {
		if !f.open && len(f.instruments) > 0 {
			return true
		}
	}
	return false
}

// IsExcluded reports whether venue is currently excluded by the circuit breaker.
func (in *Ingestor) IsExcluded(venue string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, f := range in.feeds {
		if f.provider.Venue() == venue {
			return f.open
		}
	}
	return false
}

// Close closes every open stream.
func (in *Ingestor) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, f := range in.feeds {
		if f.stream != nil {
			_ = f.stream.Close()
			f.stream = nil
		}
	}
}
