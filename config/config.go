// Package config loads the engine configuration from YAML or JSON files,
// with environment-variable overrides for deployment settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/SamoraDC/Phantom-Flow/broker/paper"
	"github.com/SamoraDC/Phantom-Flow/safety"
	"github.com/SamoraDC/Phantom-Flow/sim"
)

// Config is the complete engine configuration.
type Config struct {
	Broker  paper.Config  `json:"broker" yaml:"broker"`
	Safety  safety.Config `json:"safety" yaml:"safety"`
	Sim     sim.Config    `json:"sim" yaml:"sim"`
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	API     APIConfig     `json:"api" yaml:"api"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// GatewayConfig points at the external risk gateway.
type GatewayConfig struct {
	URL            string `json:"url" yaml:"url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout converts TimeoutSeconds to a duration.
func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// JournalConfig selects the persistence store.
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "sqlite" or "memory"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LogConfig selects logger construction.
type LogConfig struct {
	Level       string `json:"level" yaml:"level"` // debug, info, warn, error
	Development bool   `json:"development" yaml:"development"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Broker:  paper.DefaultConfig(),
		Safety:  safety.DefaultConfig(),
		Sim:     sim.DefaultConfig(),
		Gateway: GatewayConfig{URL: "http://localhost:8081", TimeoutSeconds: 5},
		Journal: JournalConfig{Type: "sqlite", DBPath: "./phantom.db"},
		API:     APIConfig{Addr: ":8080"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads a config file (YAML first, JSON fallback), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a configuration from defaults plus environment overrides,
// for running without a config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays PHANTOM_* environment variables onto deployment
// settings. Only wiring (addresses, paths, logging) is overridable; trading
// limits change through the config file alone.
func (c *Config) applyEnv() {
	v := viper.New()
	v.SetEnvPrefix("PHANTOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("gateway.url", c.Gateway.URL)
	v.SetDefault("journal.db_path", c.Journal.DBPath)
	v.SetDefault("journal.type", c.Journal.Type)
	v.SetDefault("api.addr", c.API.Addr)
	v.SetDefault("log.level", c.Log.Level)

	c.Gateway.URL = v.GetString("gateway.url")
	c.Journal.DBPath = v.GetString("journal.db_path")
	c.Journal.Type = v.GetString("journal.type")
	c.API.Addr = v.GetString("api.addr")
	c.Log.Level = v.GetString("log.level")
}

// SaveToFile writes the configuration, YAML or JSON by extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
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

// Validate checks the configuration is runnable.
func (c *Config) Validate() error {
	if !c.Broker.InitialBalance.IsPositive() {
		return fmt.Errorf("broker.initial_balance must be positive")
	}
	if c.Broker.MaxDailyTrades <= 0 {
		return fmt.Errorf("broker.max_daily_trades must be positive")
	}
	if !c.Broker.MaxPositionSize.IsPositive() {
		return fmt.Errorf("broker.max_position_size must be positive")
	}
	if c.Broker.TakerFee.IsNegative() || c.Broker.MakerFee.IsNegative() {
		return fmt.Errorf("broker fees cannot be negative")
	}

	if c.Safety.MaxOrdersPerSecond <= 0 || c.Safety.MaxOrdersPerMinute <= 0 || c.Safety.MaxOrdersPerHour <= 0 {
		return fmt.Errorf("safety rate limits must be positive")
	}
	if c.Safety.MinPrice.GreaterThanOrEqual(c.Safety.MaxPrice) {
		return fmt.Errorf("safety.min_price must be below safety.max_price")
	}
	if c.Safety.MinQuantity.GreaterThanOrEqual(c.Safety.MaxQuantity) {
		return fmt.Errorf("safety.min_quantity must be below safety.max_quantity")
	}
	if len(c.Safety.Symbols) == 0 {
		return fmt.Errorf("safety.symbols cannot be empty")
	}

	if c.Sim.LevelFillProbability < 0 || c.Sim.LevelFillProbability > 1 {
		return fmt.Errorf("sim.level_fill_probability must be in [0, 1]")
	}
	if c.Sim.BaseFillProbability < 0 || c.Sim.BaseFillProbability > 1 {
		return fmt.Errorf("sim.base_fill_probability must be in [0, 1]")
	}
	if c.Sim.MinFillRatio < 0 || c.Sim.MinFillRatio > 1 {
		return fmt.Errorf("sim.min_fill_ratio must be in [0, 1]")
	}

	switch c.Journal.Type {
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite journal")
		}
	case "memory":
	default:
		return fmt.Errorf("journal.type must be 'sqlite' or 'memory'")
	}

	if c.Gateway.TimeoutSeconds < 0 {
		return fmt.Errorf("gateway.timeout_seconds cannot be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}

	return nil
}
