package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/SamoraDC/Phantom-Flow/config"
)

var rootCmd = &cobra.Command{
	Use:   "phantom",
	Short: "A paper-trading execution engine with realistic fill simulation",
	Long: `Phantom is a paper-trading execution engine written in Go.

It provides:
  - Simulated order execution with book-walking fills, slippage,
    market impact and latency modeling
  - A paper account ledger with position tracking and P&L accounting
  - Hard safety limits: rate limiting, circuit breaker and kill switch
  - SQLite trade journaling and Prometheus metrics
  - An HTTP API for order entry and operations`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log, nil
}

// loadConfig reads the config file when a path is given, otherwise builds
// the configuration from defaults plus environment overrides.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}
