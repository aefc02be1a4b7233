package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/event"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	upsertBatchSize    = 200
	defaultSignalLimit = 100
)

// Storage persists instrument catalogs and emitted signals in SQLite
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path.
// An empty path resolves to the per-user data directory.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		var err error
		if path, err = getDBPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return newStorage(db)
}

func newStorage(db *gorm.DB) (*Storage, error) {
	if err := db.AutoMigrate(&domain.InstrumentInfo{}, &domain.SignalRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "SpreadGo", "data", "spread.db"), nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Instrument Operations
// ======================================================================================

// UpsertInstruments creates or updates the catalog entries of one venue
func (s *Storage) UpsertInstruments(ctx context.Context, venue string, instruments []domain.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}
	now := time.Now()
	infos := make([]domain.InstrumentInfo, 0, len(instruments))
	seen := make(map[string]bool, len(instruments))
	for _, inst := range instruments {
		if seen[inst.VenueSymbol] {
			continue
		}
		seen[inst.VenueSymbol] = true
		infos = append(infos, domain.InstrumentInfo{
			Venue:           venue,
			VenueSymbol:     inst.VenueSymbol,
			Symbol:          inst.Symbol,
			Base:            inst.Base,
			Quote:           inst.Quote,
			Settle:          inst.Settle,
			LinearPerpetual: inst.IsLinearPerpetual(),
			UpdatedAt:       now,
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(infos, upsertBatchSize).Error
}

// GetInstruments retrieves the stored catalog of a venue, linear perpetuals only when perpOnly is set
func (s *Storage) GetInstruments(ctx context.Context, venue string, perpOnly bool) ([]domain.InstrumentInfo, error) {
	var infos []domain.InstrumentInfo
	q := s.db.WithContext(ctx).Where("venue = ?", venue)
	if perpOnly {
		q = q.Where("linear_perpetual = ?", true)
	}
	err := q.Order("symbol").Find(&infos).Error
	return infos, err
}

// CachedCatalog returns the stored linear perpetuals of a venue as catalog instruments
func (s *Storage) CachedCatalog(ctx context.Context, venue string) ([]domain.Instrument, error) {
	infos, err := s.GetInstruments(ctx, venue, true)
	if err != nil {
		return nil, err
	}
	instruments := make([]domain.Instrument, len(infos))
	for i, info := range infos {
		instruments[i] = domain.Instrument{
			Symbol:      info.Symbol,
			VenueSymbol: info.VenueSymbol,
			Base:        info.Base,
			Quote:       info.Quote,
			Settle:      info.Settle,
			Swap:        true,
			Linear:      true,
		}
	}
	return instruments, nil
}

// CountInstruments returns the number of stored instruments per venue
func (s *Storage) CountInstruments(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Venue string
		Count int64
	}
	err := s.db.WithContext(ctx).Model(&domain.InstrumentInfo{}).
		Select("venue, count(*) as count").Group("venue").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Venue] = r.Count
	}
	return out, nil
}

// ======================================================================================
// Signal Operations
// ======================================================================================

// SaveBatch stores every record of a signal batch in one transaction
func (s *Storage) SaveBatch(ctx context.Context, b event.Batch) error {
	if len(b.Records) == 0 {
		return nil
	}
	rows := make([]domain.SignalRecord, len(b.Records))
	for i, rec := range b.Records {
		rows[i] = domain.SignalRecord{
			BatchID:       b.ID,
			Cycle:         b.Cycle,
			Rank:          i,
			Instrument:    rec.Instrument,
			VenueA:        rec.VenueA,
			VenueB:        rec.VenueB,
			PriceA:        decimal.NewFromFloat(rec.PriceA),
			PriceB:        decimal.NewFromFloat(rec.PriceB),
			Spread:        decimal.NewFromFloat(rec.Spread),
			SpreadPercent: decimal.NewFromFloat(rec.SpreadPercent),
			CreatedAt:     b.CreatedAt,
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

// RecentSignals returns the newest stored signal records, newest batch first and in batch order
func (s *Storage) RecentSignals(ctx context.Context, limit int) ([]domain.SignalRecord, error) {
	if limit <= 0 {
		limit = defaultSignalLimit
	}
	var rows []domain.SignalRecord
	err := s.db.WithContext(ctx).Order("created_at desc, batch_id, `rank`").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SignalsForInstrument returns stored records of one instrument, newest first
func (s *Storage) SignalsForInstrument(ctx context.Context, instrument string, limit int) ([]domain.SignalRecord, error) {
	if limit <= 0 {
		limit = defaultSignalLimit
	}
	var rows []domain.SignalRecord
	err := s.db.WithContext(ctx).Where("instrument = ?", instrument).
		Order("created_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// Name identifies the store as a signal sink.
func (s *Storage) Name() string { return "sqlite" }

// Handle persists a delivered batch.
func (s *Storage) Handle(ctx context.Context, b event.Batch) error {
	return s.SaveBatch(ctx, b)
}
