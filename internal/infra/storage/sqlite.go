// Package storage archives market windows and trade ticks in SQLite so
// strategies can look back across restarts. The pure-Go driver keeps the
// binary cgo-free.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
)

// Storage is the SQLite-backed archive.
type Storage struct {
	db *gorm.DB
}

var _ domain.ArchiveRepository = (*Storage)(nil)

// NewStorage opens (or creates) the archive database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.MarketWindow{}, &domain.TradeTickRecord{}, &domain.AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// ======================================================================================
// Market Window Operations
// ======================================================================================

// SaveMarketWindow creates or updates the archived record for a window.
// Re-saving a window after reconnect keeps the existing resolution fields.
func (s *Storage) SaveMarketWindow(w *domain.MarketWindow) error {
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "window_start"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"slug", "condition_id", "up_token_id", "down_token_id", "taker_fee_bps", "updated_at",
		}),
	}).Create(w).Error
}

// MarkWindowResolved patches the outcome onto an archived window.
func (s *Storage) MarkWindowResolved(windowStart int64, outcome domain.Direction, status string) error {
	res := s.db.Model(&domain.MarketWindow{}).
		Where("window_start = ?", windowStart).
		Updates(map[string]any{
			"outcome":           string(outcome),
			"resolution_status": status,
			"resolved_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark resolved %d: %w", windowStart, domain.ErrMarketNotFound)
	}
	return nil
}

// GetMarketWindow retrieves one archived window by its start timestamp.
func (s *Storage) GetMarketWindow(windowStart int64) (*domain.MarketWindow, error) {
	var w domain.MarketWindow
	err := s.db.First(&w, "window_start = ?", windowStart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &w, err
}

// RecentOutcomes returns the most recently resolved windows, newest first.
// The streak strategy reads its lookback from here on cold start.
func (s *Storage) RecentOutcomes(limit int) ([]*domain.MarketWindow, error) {
	var windows []*domain.MarketWindow
	err := s.db.
		Where("outcome <> ''").
		Order("window_start DESC").
		Limit(limit).
		Find(&windows).Error
	return windows, err
}

// ======================================================================================
// Trade Tick Operations
// ======================================================================================

// SaveTradeTick archives one last-trade-price event.
func (s *Storage) SaveTradeTick(t *domain.TradeTick) error {
	rec := domain.TradeTickRecord{
		AssetID:   t.AssetID,
		Price:     t.Price.String(),
		Size:      t.Size.String(),
		Side:      string(t.Side),
		Timestamp: t.Timestamp,
	}
	return s.db.Create(&rec).Error
}

// RecentTicks returns the latest archived ticks for a token, newest first.
func (s *Storage) RecentTicks(assetID string, limit int) ([]*domain.TradeTickRecord, error) {
	var ticks []*domain.TradeTickRecord
	err := s.db.
		Where("asset_id = ?", assetID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&ticks).Error
	return ticks, err
}

// PruneTicks deletes archived ticks older than the cutoff and returns how
// many rows went.
func (s *Storage) PruneTicks(olderThan time.Time) (int64, error) {
	res := s.db.Where("timestamp < ?", olderThan).Delete(&domain.TradeTickRecord{})
	return res.RowsAffected, res.Error
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a bot metadata entry
func (s *Storage) SaveConfig(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// LoadConfigMap loads all bot metadata as a map
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}
