package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SamoraDC/Phantom-Flow/api"
	"github.com/SamoraDC/Phantom-Flow/broker/paper"
	"github.com/SamoraDC/Phantom-Flow/config"
	"github.com/SamoraDC/Phantom-Flow/journal"
	"github.com/SamoraDC/Phantom-Flow/metrics"
	"github.com/SamoraDC/Phantom-Flow/risk"
	"github.com/SamoraDC/Phantom-Flow/safety"
	"github.com/SamoraDC/Phantom-Flow/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the paper-trading engine",
	Long: `Start the engine: rehydrate positions from the journal, connect the
risk gateway, and serve the HTTP API until interrupted.

Example:
  phantom run --config phantom.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON); omit to use defaults plus PHANTOM_* env vars")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	j, sqliteJournal, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	gateway := risk.NewClient(cfg.Gateway.URL, cfg.Gateway.Timeout())
	guard := safety.NewGuard(cfg.Safety, log)
	simulator := sim.New(cfg.Sim, nil, log)
	ledger := paper.New(cfg.Broker, j, gateway, guard, simulator, log)

	ctx := context.Background()
	if err := ledger.Rehydrate(ctx); err != nil {
		return fmt.Errorf("rehydrate positions: %w", err)
	}

	guard.RegisterKillSwitchCallback("log-open-positions", func() error {
		for _, pos := range ledger.Positions() {
			log.Warn("open position at kill switch",
				zap.String("symbol", pos.Symbol),
				zap.String("quantity", pos.Quantity.String()),
				zap.String("unrealized_pnl", pos.UnrealizedPnL.String()))
		}
		return nil
	})
	guard.RegisterKillSwitchCallback("metrics", func() error {
		metrics.KillSwitchActive.Set(1)
		return nil
	})

	server := api.New(cfg.API.Addr, ledger, guard, j, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}

	if sqliteJournal != nil {
		if err := writeDailyStats(shutdownCtx, sqliteJournal, ledger); err != nil {
			log.Error("daily stats write failed", zap.Error(err))
		}
	}

	acct := ledger.Account()
	log.Info("engine stopped",
		zap.String("balance", acct.Balance.String()),
		zap.String("equity", acct.Equity.String()),
		zap.Int("total_trades", acct.TotalTrades))

	return nil
}

// openJournal builds the configured journal. The second return value is
// non-nil only for the SQLite store, which has daily-stats support beyond
// the Journal interface.
func openJournal(cfg config.JournalConfig) (journal.Journal, *journal.SQLite, error) {
	switch cfg.Type {
	case "memory":
		return journal.NewMemory(), nil, nil
	default:
		s, err := journal.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}

// writeDailyStats records the end-of-day summary for today from the
// account's running totals.
func writeDailyStats(ctx context.Context, j *journal.SQLite, ledger *paper.Broker) error {
	acct := ledger.Account()
	return j.SaveDailyStats(ctx, journal.DailyStats{
		Date:            time.Now().UTC().Truncate(24 * time.Hour),
		StartingBalance: acct.InitialBalance,
		EndingBalance:   acct.Balance,
		PnL:             acct.TotalPnL,
		TradesCount:     acct.TotalTrades,
		WinningTrades:   acct.WinningTrades,
		LosingTrades:    acct.TotalTrades - acct.WinningTrades,
		MaxDrawdown:     decimal.Zero,
	})
}
