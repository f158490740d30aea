package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/finbeat/macdbot/market"
)

// Config represents the complete bot configuration
type Config struct {
	Exchange ExchangeConfig `json:"exchange" yaml:"exchange"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Sizing   SizingConfig   `json:"sizing" yaml:"sizing"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Notify   NotifyConfig   `json:"notify" yaml:"notify"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// ExchangeConfig contains exchange connectivity parameters
type ExchangeConfig struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	Testnet   bool   `json:"testnet" yaml:"testnet"`
	// UseStream switches candle ingestion from REST polling to the
	// kline websocket stream.
	UseStream bool `json:"use_stream" yaml:"use_stream"`
}

// StrategyConfig contains indicator and market parameters
type StrategyConfig struct {
	Symbol     string `json:"symbol" yaml:"symbol"`
	BaseAsset  string `json:"base_asset" yaml:"base_asset"`
	QuoteAsset string `json:"quote_asset" yaml:"quote_asset"`
	Interval   string `json:"interval" yaml:"interval"`

	FastPeriod   int `json:"fast_period" yaml:"fast_period"`
	SlowPeriod   int `json:"slow_period" yaml:"slow_period"`
	SignalPeriod int `json:"signal_period" yaml:"signal_period"`

	WindowSize int `json:"window_size" yaml:"window_size"`
	HistoryMax int `json:"history_max" yaml:"history_max"`

	// PollSeconds is the REST polling cadence; ignored when streaming.
	PollSeconds int `json:"poll_seconds" yaml:"poll_seconds"`
}

// Cadence converts the polling cadence to a duration
func (s StrategyConfig) Cadence() time.Duration {
	return time.Duration(s.PollSeconds) * time.Second
}

// SizingConfig controls order sizing; zero means full free balance
type SizingConfig struct {
	QuoteAmount float64 `json:"quote_amount" yaml:"quote_amount"`
	BaseAmount  float64 `json:"base_amount" yaml:"base_amount"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	// DBPath is the sqlite database; empty disables journaling and
	// falls back to an in-memory crossover marker.
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// NotifyConfig contains notification parameters
type NotifyConfig struct {
	WebhookURL string `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
}

// LogConfig contains logging parameters
type LogConfig struct {
	Level       string `json:"level" yaml:"level"` // "debug", "info", "warn", "error"
	Development bool   `json:"development" yaml:"development"`
}

// LoadFromFile loads configuration from a file (JSON or YAML based on extension)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	// Determine format by extension
	if (len(path) > 5 && path[len(path)-5:] == ".yaml") || (len(path) > 4 && path[len(path)-4:] == ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Strategy.Symbol == "" {
		return fmt.Errorf("strategy.symbol is required")
	}
	if c.Strategy.BaseAsset == "" || c.Strategy.QuoteAsset == "" {
		return fmt.Errorf("strategy.base_asset and strategy.quote_asset are required")
	}
	if _, err := market.ParseInterval(c.Strategy.Interval); err != nil {
		return fmt.Errorf("strategy.interval: %w", err)
	}
	if c.Strategy.FastPeriod <= 0 || c.Strategy.SlowPeriod <= 0 || c.Strategy.SignalPeriod <= 0 {
		return fmt.Errorf("strategy indicator periods must be positive")
	}
	if c.Strategy.FastPeriod >= c.Strategy.SlowPeriod {
		return fmt.Errorf("strategy.fast_period must be below strategy.slow_period")
	}
	if c.Strategy.WindowSize > 0 && c.Strategy.WindowSize < c.Strategy.SlowPeriod+c.Strategy.SignalPeriod {
		return fmt.Errorf("strategy.window_size %d below indicator lookback %d",
			c.Strategy.WindowSize, c.Strategy.SlowPeriod+c.Strategy.SignalPeriod)
	}
	if c.Strategy.PollSeconds <= 0 {
		return fmt.Errorf("strategy.poll_seconds must be positive")
	}
	if c.Sizing.QuoteAmount < 0 || c.Sizing.BaseAmount < 0 {
		return fmt.Errorf("sizing amounts must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			Testnet: true,
		},
		Strategy: StrategyConfig{
			Symbol:       "BTCUSDT",
			BaseAsset:    "BTC",
			QuoteAsset:   "USDT",
			Interval:     "1h",
			FastPeriod:   12,
			SlowPeriod:   26,
			SignalPeriod: 9,
			WindowSize:   120,
			HistoryMax:   200,
			PollSeconds:  30,
		},
		Journal: JournalConfig{
			DBPath: "./macdbot.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
