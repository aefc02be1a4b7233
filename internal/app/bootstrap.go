package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/engine"
	"spread_go/internal/infra"
	"spread_go/internal/infra/storage"
	"spread_go/internal/infra/venue"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Storage   *storage.Storage
	Providers []domain.FeedProvider
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, installs the logger and opens storage.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping Spread Scanner...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Feed providers
	providers, err := BuildProviders(cfg)
	if err != nil {
		return err
	}
	b.Providers = providers
	slog.Info("✅ Feed providers ready", slog.Int("venues", len(providers)))

	// 4. Initialize Storage (DB)
	if cfg.Storage.Enabled {
		store, err := storage.NewStorage(cfg.Storage.Path)
		if err != nil {
			return err
		}
		b.Storage = store
		slog.Info("✅ Database initialized")
	}

	return nil
}

// BuildProviders constructs one feed provider per configured venue, in order.
func BuildProviders(cfg *infra.Config) ([]domain.FeedProvider, error) {
	providers := make([]domain.FeedProvider, 0, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		p, err := venue.New(vc)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// ScannerOptions translates configuration into engine options.
func ScannerOptions(cfg *infra.Config) engine.Options {
	sc := cfg.Scanner
	return engine.Options{
		Eval: engine.EvalParams{
			ThresholdPercent: sc.ThresholdPercent,
			BatchSize:        sc.BatchSize,
			MinRecords:       sc.MinRecords,
			MinHighSpread:    sc.MinHighSpread,
			MaxQuoteAge:      time.Duration(sc.MaxQuoteAgeMS) * time.Millisecond,
		},
		Ingest: engine.IngestOptions{
			Policy:       engine.FailurePolicy(sc.FailurePolicy),
			VenueTimeout: time.Duration(sc.VenueTimeoutMS) * time.Millisecond,
			MaxFailures:  sc.CircuitBreaker.MaxFailures,
			Cooldown:     time.Duration(sc.CircuitBreaker.CooldownSec) * time.Second,
			Metrics:      infra.GlobalMetrics,
		},
		RecoveryPause:      sc.RecoveryPause(),
		ExponentialBackoff: sc.RecoveryBackoff == "exponential",
		MaxRecoveryPause:   time.Duration(sc.MaxRecoveryPauseSec) * time.Second,
		DumpFile:           sc.DumpFile,
	}
}

// Options returns the scanner options; with storage enabled, stored catalogs back failed live loads.
func (b *Bootstrap) Options() engine.Options {
	opts := ScannerOptions(b.Config)
	if b.Storage != nil {
		opts.CatalogFallback = b.Storage.CachedCatalog
	}
	return opts
}

// SyncCatalogs persists loaded catalogs with bounded concurrency.
func (b *Bootstrap) SyncCatalogs(ctx context.Context, catalogs map[string][]domain.Instrument) error {
	if b.Storage == nil {
		return nil
	}
	slog.Info("🔄 Starting catalog synchronization...")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	semaphore := make(chan struct{}, 5) // Limit concurrent writers

	for v, instruments := range catalogs {
		wg.Add(1)
		go func(v string, instruments []domain.Instrument) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			if err := b.Storage.UpsertInstruments(ctx, v, instruments); err != nil {
				slog.Error("Failed to store catalog", slog.String("venue", v), slog.Any("error", err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", v, err))
				mu.Unlock()
				return
			}
			slog.Debug("Catalog stored", slog.String("venue", v), slog.Int("instruments", len(instruments)))
		}(v, instruments)
	}

	wg.Wait()
	if len(errs) > 0 {
		return fmt.Errorf("catalog sync failed for %d venue(s): %w", len(errs), errs[0])
	}
	counts, err := b.Storage.CountInstruments(ctx)
	if err != nil {
		return fmt.Errorf("count stored instruments: %w", err)
	}
	slog.Info("✨ Catalog synchronization completed", slog.Int("venues", len(catalogs)), slog.Any("stored", counts))
	return nil
}

// Close releases resources opened by Initialize.
func (b *Bootstrap) Close() {
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close storage", slog.Any("error", err))
		}
	}
}
