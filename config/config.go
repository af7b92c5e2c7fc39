// Package config loads engine configuration: broker credentials and
// infrastructure addresses from environment variables, strategy thresholds
// from a TOML file (partial-exit rules are structured and do not fit env vars).
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	// Broker credentials
	BrokerClientID   string
	BrokerSecretKey  string
	BrokerTOTPSecret string
	BrokerPIN        string
	TokenCachePath   string

	// Market data
	DataWSURL       string
	StreamQueueSize int
	SpotSymbol      string
	Underlying      string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Notifications (optional)
	TelegramBotToken string
	TelegramChatID   string

	Strategy StrategyConfig
}

// StrategyConfig holds the trading thresholds, loaded from TOML.
type StrategyConfig struct {
	StoplossPct         float64           `toml:"stoploss_pct"`
	RiskRewardRatio     float64           `toml:"risk_reward_ratio"`
	TrailingStopPct     float64           `toml:"trailing_stop_pct"`
	TrailingTriggerPct  float64           `toml:"trailing_trigger_pct"`
	MinPremiumThreshold float64           `toml:"min_premium_threshold"`
	MaxStrikeDistance   float64           `toml:"max_strike_distance"`
	HoldingWindowMin    int               `toml:"holding_window_minutes"`
	LotSize             int64             `toml:"lot_size"`
	PaperTrading        bool              `toml:"paper_trading"`
	OrderExpirySec      int               `toml:"order_expiry_seconds"`
	PartialExits        []PartialExitRule `toml:"partial_exits"`
}

// PartialExitRule books part of the position once both its time and profit
// conditions are met. Each rule fires at most once per trade.
type PartialExitRule struct {
	TimeMinutes    int     `toml:"time_minutes"`
	MinProfitPct   float64 `toml:"min_profit_pct"`
	ExitPercentage float64 `toml:"exit_percentage"`
}

// HoldingWindow returns the max holding duration for a trade.
func (s StrategyConfig) HoldingWindow() time.Duration {
	return time.Duration(s.HoldingWindowMin) * time.Minute
}

// OrderExpiry returns the trigger-order expiry window.
func (s StrategyConfig) OrderExpiry() time.Duration {
	return time.Duration(s.OrderExpirySec) * time.Second
}

// DefaultStrategy mirrors the shipped strategy file.
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		StoplossPct:         20,
		RiskRewardRatio:     2,
		TrailingStopPct:     8,
		TrailingTriggerPct:  4,
		MinPremiumThreshold: 50,
		MaxStrikeDistance:   500,
		HoldingWindowMin:    30,
		LotSize:             75, // NIFTY lot size
		PaperTrading:        true,
		OrderExpirySec:      86400,
	}
}

// Load reads configuration from environment variables and the strategy TOML
// file (STRATEGY_CONFIG, default config/strategy.toml). Missing required
// broker env vars are fatal; a missing strategy file falls back to defaults.
func Load() *Config {
	cfg := &Config{
		BrokerClientID:   mustEnv("BROKER_CLIENT_ID"),
		BrokerSecretKey:  mustEnv("BROKER_SECRET_KEY"),
		BrokerTOTPSecret: mustEnv("BROKER_TOTP_SECRET"),
		BrokerPIN:        getEnv("BROKER_PIN", ""),
		TokenCachePath:   getEnv("TOKEN_CACHE_PATH", "data/access_token.json"),

		DataWSURL:       getEnv("DATA_WS_URL", "wss://api-t1.fyers.in/socket/quotes"),
		StreamQueueSize: getEnvInt("STREAM_QUEUE_SIZE", 10000),
		SpotSymbol:      getEnv("SPOT_SYMBOL", "NSE:NIFTY50-INDEX"),
		Underlying:      getEnv("UNDERLYING", "NSE:NIFTY50-INDEX"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trades.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	path := getEnv("STRATEGY_CONFIG", "config/strategy.toml")
	strat, err := LoadStrategy(path)
	if err != nil {
		log.Printf("[config] strategy file %s not loaded (%v), using defaults", path, err)
		strat = DefaultStrategy()
	}
	cfg.Strategy = strat
	return cfg
}

// LoadStrategy reads and validates a strategy TOML file. The file holds a
// [strategy] table so it stays compatible with the operator-facing layout.
func LoadStrategy(path string) (StrategyConfig, error) {
	var file struct {
		Strategy StrategyConfig `toml:"strategy"`
	}
	file.Strategy = DefaultStrategy()
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return StrategyConfig{}, err
	}
	if err := file.Strategy.Validate(); err != nil {
		return StrategyConfig{}, err
	}
	return file.Strategy, nil
}

// Validate rejects configurations that cannot produce a sane trade.
func (s StrategyConfig) Validate() error {
	if s.StoplossPct <= 0 || s.StoplossPct >= 100 {
		return fmt.Errorf("stoploss_pct must be in (0,100), got %v", s.StoplossPct)
	}
	if s.RiskRewardRatio <= 0 {
		return fmt.Errorf("risk_reward_ratio must be positive, got %v", s.RiskRewardRatio)
	}
	if s.TrailingStopPct <= 0 || s.TrailingStopPct >= 100 {
		return fmt.Errorf("trailing_stop_pct must be in (0,100), got %v", s.TrailingStopPct)
	}
	if s.MinPremiumThreshold < 0 {
		return fmt.Errorf("min_premium_threshold must be >= 0, got %v", s.MinPremiumThreshold)
	}
	if s.HoldingWindowMin <= 0 {
		return fmt.Errorf("holding_window_minutes must be positive, got %d", s.HoldingWindowMin)
	}
	if s.LotSize <= 0 {
		return fmt.Errorf("lot_size must be positive, got %d", s.LotSize)
	}
	for i, r := range s.PartialExits {
		if r.ExitPercentage <= 0 || r.ExitPercentage > 100 {
			return fmt.Errorf("partial_exits[%d].exit_percentage must be in (0,100], got %v", i, r.ExitPercentage)
		}
		if r.TimeMinutes < 0 || r.MinProfitPct < 0 {
			return fmt.Errorf("partial_exits[%d] has negative threshold", i)
		}
	}
	return nil
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
