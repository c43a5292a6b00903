package domain

import (
	"time"
)

// MarketWindow is the archived record of one 5-minute market, written when
// the window is first targeted and patched when it resolves.
type MarketWindow struct {
	WindowStart      int64     `gorm:"primaryKey" json:"window_start"` // unix seconds
	Slug             string    `gorm:"index" json:"slug"`
	ConditionID      string    `json:"condition_id"`
	UpTokenID        string    `json:"up_token_id"`
	DownTokenID      string    `json:"down_token_id"`
	TakerFeeBps      int64     `json:"taker_fee_bps"`
	Outcome          string    `gorm:"index" json:"outcome"` // "up", "down", or "" while open
	ResolutionStatus string    `json:"resolution_status"`
	ResolvedAt       time.Time `json:"resolved_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TradeTickRecord is an archived last-trade-price event, kept for
// strategy lookback and offline analysis.
type TradeTickRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AssetID   string    `gorm:"index:idx_tick_asset_ts" json:"asset_id"`
	Price     string    `json:"price"`
	Size      string    `json:"size"`
	Side      string    `json:"side"`
	Timestamp time.Time `gorm:"index:idx_tick_asset_ts" json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// AppConfig represents bot metadata persisted as key-value pairs
// (schema version, last session id, and the like).
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
