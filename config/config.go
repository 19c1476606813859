// Package config loads and validates the trading configuration from YAML
// or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategy"
)

// Config is the complete process configuration.
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Trading  TradingConfig  `json:"trading" yaml:"trading"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Risk     risk.Config    `json:"risk" yaml:"risk"`
	Recovery RecoveryConfig `json:"recovery" yaml:"recovery"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Venue    VenueConfig    `json:"venue" yaml:"venue"`
}

// AccountConfig identifies the funding side of the account.
type AccountConfig struct {
	QuoteCurrency string `json:"quote_currency" yaml:"quote_currency"`
}

// TradingConfig contains the orchestration parameters.
type TradingConfig struct {
	Instruments    []string `json:"instruments" yaml:"instruments"`
	Interval       string   `json:"interval" yaml:"interval"`
	MaxSlots       int      `json:"max_slots" yaml:"max_slots"`
	FeeRate        float64  `json:"fee_rate" yaml:"fee_rate"`
	MinOrderAmount float64  `json:"min_order_amount" yaml:"min_order_amount"`
	Lookback       int      `json:"lookback" yaml:"lookback"`
	MinDataPoints  int      `json:"min_data_points" yaml:"min_data_points"`
}

// StrategyConfig names the rule composition.
type StrategyConfig struct {
	Name   string          `json:"name" yaml:"name"`
	Entry  []string        `json:"entry" yaml:"entry"`
	Exit   []string        `json:"exit" yaml:"exit"`
	Params strategy.Params `json:"params" yaml:"params"`
}

// RecoveryConfig gates position reconstruction from venue balances at
// startup. The reconstructed entry price is the current market price, an
// approximation, which is why this is opt-in.
type RecoveryConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// JournalConfig contains journaling parameters.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EventsFile string `json:"events_file,omitempty" yaml:"events_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// VenueConfig selects the venue client. The core only ships the simulated
// venue; real venue clients plug in at wiring time.
type VenueConfig struct {
	Type          string  `json:"type" yaml:"type"` // "sim"
	RatePerSecond float64 `json:"rate_per_second,omitempty" yaml:"rate_per_second,omitempty"`
	SimBalance    float64 `json:"sim_balance,omitempty" yaml:"sim_balance,omitempty"`
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML (or JSON for .json paths).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration, naming the offending field.
func (c *Config) Validate() error {
	if c.Account.QuoteCurrency == "" {
		return fmt.Errorf("account.quote_currency is required")
	}
	if len(c.Trading.Instruments) == 0 {
		return fmt.Errorf("trading.instruments must list at least one instrument")
	}
	for _, in := range c.Trading.Instruments {
		if !strings.Contains(in, "_") {
			return fmt.Errorf("trading.instruments: %q is not a BASE_QUOTE name", in)
		}
	}
	if c.Trading.MaxSlots <= 0 {
		return fmt.Errorf("trading.max_slots must be positive")
	}
	if c.Trading.FeeRate < 0 || c.Trading.FeeRate >= 1 {
		return fmt.Errorf("trading.fee_rate must be in [0, 1)")
	}
	if c.Trading.MinOrderAmount < 0 {
		return fmt.Errorf("trading.min_order_amount must not be negative")
	}
	if c.Trading.Lookback <= 0 {
		return fmt.Errorf("trading.lookback must be positive")
	}
	if c.Trading.MinDataPoints <= 0 {
		return fmt.Errorf("trading.min_data_points must be positive")
	}
	if c.Trading.MinDataPoints > c.Trading.Lookback {
		return fmt.Errorf("trading.min_data_points cannot exceed trading.lookback")
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name is required")
	}
	// Reject unknown condition names at load time, not at first evaluation.
	for _, n := range append(append([]string{}, c.Strategy.Entry...), c.Strategy.Exit...) {
		if _, err := strategy.FromName(n, c.Strategy.Params); err != nil {
			return err
		}
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EventsFile == "" {
			return fmt.Errorf("journal trades_file and events_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "none":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	if c.Venue.Type != "sim" {
		return fmt.Errorf("venue.type must be 'sim' (real venue clients plug in at wiring time)")
	}
	return nil
}

// Default returns a configuration with sensible paper-trading defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{QuoteCurrency: "USD"},
		Trading: TradingConfig{
			Instruments:    []string{"BTC_USD"},
			Interval:       "1d",
			MaxSlots:       4,
			FeeRate:        0.0005,
			MinOrderAmount: 10,
			Lookback:       40,
			MinDataPoints:  21,
		},
		Strategy: StrategyConfig{
			Name:   "breakout",
			Entry:  []string{strategy.NameTargetBreakout},
			Exit:   []string{strategy.NameMABelow},
			Params: strategy.DefaultParams(),
		},
		Risk: risk.Config{
			StopLossPct:   0.05,
			TakeProfitPct: 0.15,
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./tradebot.db",
		},
		Venue: VenueConfig{
			Type:          "sim",
			RatePerSecond: 8,
			SimBalance:    100000,
		},
	}
}
