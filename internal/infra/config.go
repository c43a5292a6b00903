package infra

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the bot. Loaded from YAML, then
// sensitive or deployment-specific values are overridden from the
// POLYBOT_* environment.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Pprof   bool   `yaml:"pprof"`
	} `yaml:"app"`

	API struct {
		GammaURL   string `yaml:"gamma_url"`
		ClobURL    string `yaml:"clob_url"`
		WSURL      string `yaml:"ws_url"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"api"`

	MarketData struct {
		SlugPrefix         string `yaml:"slug_prefix"`          // e.g. "btc-updown-5m"
		WindowSeconds      int64  `yaml:"window_seconds"`       // 300
		DisplayFreshnessMS int    `yaml:"display_freshness_ms"` // looser window, heartbeats
		ExecFreshnessMS    int    `yaml:"exec_freshness_ms"`    // tighter window, pricing
		RejectCrossedBooks bool   `yaml:"reject_crossed_books"`
		InboxSize          int    `yaml:"inbox_size"`
	} `yaml:"market_data"`

	Trading struct {
		Bankroll           decimal.Decimal `yaml:"bankroll"`
		BetAmount          decimal.Decimal `yaml:"bet_amount"`
		MinBet             decimal.Decimal `yaml:"min_bet"`
		MaxDailyBets       int             `yaml:"max_daily_bets"`
		MaxDailyLoss       decimal.Decimal `yaml:"max_daily_loss"`
		EntrySecondsBefore int             `yaml:"entry_seconds_before"`
		StreakTrigger      int             `yaml:"streak_trigger"`
		DefaultFeeBps      int64           `yaml:"default_fee_bps"`
	} `yaml:"trading"`

	Impact struct {
		BaseCoef       float64 `yaml:"base_coef"`
		MaxImpactPct   float64 `yaml:"max_impact_pct"`
		BaselineSpread float64 `yaml:"baseline_spread"`
	} `yaml:"impact"`

	Resilience struct {
		FailureThreshold  int `yaml:"failure_threshold"`
		RecoverySec       int `yaml:"recovery_sec"`
		HalfOpenMaxCalls  int `yaml:"half_open_max_calls"`
		RequestsPerWindow int `yaml:"requests_per_window"`
		WindowSec         int `yaml:"window_sec"`
	} `yaml:"resilience"`

	Storage struct {
		DataDir string `yaml:"data_dir"` // ledger JSON files
		DBPath  string `yaml:"db_path"`  // sqlite archive
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides, and validates.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration validity and fills defaults.
func (c *Config) Validate() error {
	if c.API.GammaURL == "" {
		c.API.GammaURL = "https://gamma-api.polymarket.com"
	}
	if c.API.ClobURL == "" {
		c.API.ClobURL = "https://clob.polymarket.com"
	}
	if c.API.WSURL == "" {
		c.API.WSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if !hasPrefix(c.API.WSURL, "ws://") && !hasPrefix(c.API.WSURL, "wss://") {
		return fmt.Errorf("invalid WS URL: %s", c.API.WSURL)
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = 10
	}

	if c.MarketData.SlugPrefix == "" {
		c.MarketData.SlugPrefix = "btc-updown-5m"
	}
	if c.MarketData.WindowSeconds <= 0 {
		c.MarketData.WindowSeconds = 300
	}
	if c.MarketData.DisplayFreshnessMS <= 0 {
		c.MarketData.DisplayFreshnessMS = 5000
	}
	if c.MarketData.ExecFreshnessMS <= 0 {
		c.MarketData.ExecFreshnessMS = 2000
	}
	if c.MarketData.ExecFreshnessMS > c.MarketData.DisplayFreshnessMS {
		return fmt.Errorf("exec freshness (%dms) must not exceed display freshness (%dms)",
			c.MarketData.ExecFreshnessMS, c.MarketData.DisplayFreshnessMS)
	}
	if c.MarketData.InboxSize <= 0 {
		c.MarketData.InboxSize = 1024
	}

	if c.Trading.Bankroll.IsZero() {
		c.Trading.Bankroll = decimal.NewFromInt(100)
	}
	if c.Trading.BetAmount.IsZero() {
		c.Trading.BetAmount = decimal.NewFromInt(5)
	}
	if c.Trading.MinBet.IsZero() {
		c.Trading.MinBet = decimal.NewFromInt(1)
	}
	if c.Trading.BetAmount.LessThan(c.Trading.MinBet) {
		return fmt.Errorf("bet amount %s below min bet %s",
			c.Trading.BetAmount, c.Trading.MinBet)
	}
	if c.Trading.MaxDailyBets <= 0 {
		c.Trading.MaxDailyBets = 100
	}
	if c.Trading.MaxDailyLoss.IsZero() {
		c.Trading.MaxDailyLoss = decimal.NewFromInt(50)
	}
	if c.Trading.EntrySecondsBefore <= 0 {
		c.Trading.EntrySecondsBefore = 30
	}
	if c.Trading.StreakTrigger <= 0 {
		c.Trading.StreakTrigger = 4
	}
	if c.Trading.DefaultFeeBps <= 0 {
		c.Trading.DefaultFeeBps = 1000
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "data/archive.db"
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv applies POLYBOT_* environment overrides for values an
// operator changes per deployment without editing the file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("POLYBOT_BANKROLL"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Trading.Bankroll = d
		}
	}
	if v := os.Getenv("POLYBOT_BET_AMOUNT"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Trading.BetAmount = d
		}
	}
	if v := os.Getenv("POLYBOT_MAX_DAILY_LOSS"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Trading.MaxDailyLoss = d
		}
	}
	if v := os.Getenv("POLYBOT_MAX_DAILY_BETS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Trading.MaxDailyBets = n
		}
	}
	if v := os.Getenv("POLYBOT_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("POLYBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
