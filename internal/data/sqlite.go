package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/contactkeval/option-analytics/internal/logger"
)

// dbBar is the persisted form of a Bar. Symbol and date are unique together
// so re-saving a day overwrites it.
type dbBar struct {
	ID     uint      `gorm:"primaryKey"`
	Symbol string    `gorm:"uniqueIndex:idx_symbol_date;size:16"`
	Date   time.Time `gorm:"uniqueIndex:idx_symbol_date"`
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func (dbBar) TableName() string { return "bars" }

// dbSpan records a date range fetched in full from the secondary. Only a
// recorded span makes a read a cache hit; stored bars alone may have gaps.
type dbSpan struct {
	ID       uint      `gorm:"primaryKey"`
	Symbol   string    `gorm:"index;size:16"`
	FromDate time.Time
	ToDate   time.Time
}

func (dbSpan) TableName() string { return "bar_spans" }

// SQLiteStore caches daily bars in a local SQLite file. As a Provider it
// serves cached bars and, on a miss, fetches from its secondary and stores
// what came back.
type SQLiteStore struct {
	db        *gorm.DB
	secondary Provider
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string, secondary Provider) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&dbBar{}, &dbSpan{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.WithFields(logger.Fields{"path": dbPath}).Info("bar cache opened")
	return &SQLiteStore{db: db, secondary: secondary}, nil
}

func (s *SQLiteStore) Secondary() Provider { return s.secondary }

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveBars upserts bars for symbol.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol string, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}
	symbol = strings.ToUpper(symbol)

	rows := make([]dbBar, len(bars))
	for i, b := range bars {
		rows[i] = dbBar{
			Symbol: symbol,
			Date:   truncateDay(b.Date),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Vol,
		}
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
	}).Create(&rows)
	if result.Error != nil {
		return fmt.Errorf("failed to save bars: %w", result.Error)
	}

	logger.WithFields(logger.Fields{"symbol": symbol, "saved": result.RowsAffected}).Debug("bars cached")
	return nil
}

// LoadBars returns the cached bars for symbol within [fromDate, toDate].
func (s *SQLiteStore) LoadBars(ctx context.Context, symbol string, fromDate, toDate time.Time) ([]Bar, error) {
	var rows []dbBar
	result := s.db.WithContext(ctx).
		Where("symbol = ? AND date >= ? AND date <= ?", strings.ToUpper(symbol), truncateDay(fromDate), truncateDay(toDate)).
		Order("date ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get bars: %w", result.Error)
	}

	bars := make([]Bar, len(rows))
	for i, r := range rows {
		bars[i] = Bar{Date: r.Date.UTC(), Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Vol: r.Volume}
	}
	return bars, nil
}

// covered reports whether a recorded span contains [fromDate, toDate].
func (s *SQLiteStore) covered(ctx context.Context, symbol string, fromDate, toDate time.Time) (bool, error) {
	var n int64
	result := s.db.WithContext(ctx).Model(&dbSpan{}).
		Where("symbol = ? AND from_date <= ? AND to_date >= ?", strings.ToUpper(symbol), truncateDay(fromDate), truncateDay(toDate)).
		Count(&n)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check cached range: %w", result.Error)
	}
	return n > 0, nil
}

func (s *SQLiteStore) recordSpan(ctx context.Context, symbol string, fromDate, toDate time.Time) error {
	span := dbSpan{Symbol: strings.ToUpper(symbol), FromDate: truncateDay(fromDate), ToDate: truncateDay(toDate)}
	if err := s.db.WithContext(ctx).Create(&span).Error; err != nil {
		return fmt.Errorf("failed to record cached range: %w", err)
	}
	return nil
}

// GetBars serves from the cache when an earlier fetch covered the whole
// range. Otherwise it fetches the range from the secondary, stores it and
// records the span. A failed write is logged; the fetched bars are still
// returned. Without a secondary, whatever is cached is served.
func (s *SQLiteStore) GetBars(ctx context.Context, underlying string, fromDate, toDate time.Time) ([]Bar, error) {
	hit, err := s.covered(ctx, underlying, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	if hit || s.secondary == nil {
		cached, err := s.LoadBars(ctx, underlying, fromDate, toDate)
		if err != nil {
			return nil, err
		}
		if len(cached) > 0 {
			logger.Tracef("sqlite: %d cached bars for %s", len(cached), underlying)
			return cached, nil
		}
	}

	bars, err := fromSecondary(ctx, s, "sqlite", underlying, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	err = s.SaveBars(ctx, underlying, bars)
	if err == nil {
		err = s.recordSpan(ctx, underlying, fromDate, toDate)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("sqlite: caching %s bars: %v", underlying, err)
	}
	return bars, nil
}
