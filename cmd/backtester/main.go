package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"

	"backtest_engine/internal/bootstrap"
	"backtest_engine/internal/engine"
	"backtest_engine/internal/store"
	apperrors "backtest_engine/pkg/errors"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/backtest.yaml", "Path to configuration file")
	noProgress := flag.Bool("no-progress", false, "Disable the progress bar")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("backtester version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	logger := app.Logger

	cfg, err := app.ReplayConfig()
	if err != nil {
		logger.Error("Invalid replay configuration", "error", err)
		os.Exit(1)
	}
	provider, err := app.NewProvider()
	if err != nil {
		logger.Error("Failed to create history provider", "error", err)
		os.Exit(1)
	}
	resultStore, err := app.NewStore()
	if err != nil {
		logger.Error("Failed to open run store", "error", err)
		os.Exit(1)
	}
	defer resultStore.Close()

	strat, err := app.NewStrategy()
	if err != nil {
		logger.Error("Failed to create strategy", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting backtest",
		"version", version,
		"strategy", strat.Name(),
		"mode", cfg.Mode.String(),
		"symbols", cfg.Symbols,
		"start", cfg.Start.Format("2006-01-02"),
		"end", cfg.End.Format("2006-01-02"),
	)

	// Cancel the replay on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(cfg, provider, strat, logger)
	if !*noProgress {
		var bar *progressbar.ProgressBar
		eng.SetProgress(func(done, total int) {
			if bar == nil {
				bar = initProgressBar(total)
			}
			_ = bar.Set(done)
		})
	}

	report, err := eng.Run(ctx)
	if !*noProgress {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNoTrades) {
			logger.Warn("Backtest produced no trades, nothing to report")
			return
		}
		logger.Error("Backtest failed", "error", err)
		os.Exit(1)
	}

	record := store.NewRunRecord(strat.Name())
	record.Mode = cfg.Mode.String()
	record.Symbols = cfg.Symbols
	record.Params = map[string]float64{
		"fast":     float64(app.Cfg.Strategy.FastWindow),
		"slow":     float64(app.Cfg.Strategy.SlowWindow),
		"volume":   float64(app.Cfg.Strategy.Volume),
		"stopLoss": app.Cfg.Strategy.StopLossPercent,
	}
	record.Metrics = report.Metrics
	record.Days = report.Days
	if err := resultStore.SaveRun(ctx, record); err != nil {
		logger.Warn("Failed to persist run", "error", err, "run_id", record.ID)
	} else {
		logger.Info("Run persisted", "run_id", record.ID)
	}

	printReport(report)
}

func initProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func printReport(report *engine.RunReport) {
	m := report.Metrics
	day := "2006-01-02"

	fmt.Println()
	fmt.Println("Backtest result")
	fmt.Println("===============")
	fmt.Printf("%-20s %s .. %s\n", "Period:", m.StartDate.Format(day), m.EndDate.Format(day))
	fmt.Printf("%-20s %d (%d up, %d down)\n", "Trading days:", m.TotalDays, m.ProfitDays, m.LossDays)
	fmt.Printf("%-20s %.2f\n", "Capital:", m.Capital)
	fmt.Printf("%-20s %.2f\n", "End balance:", m.EndBalance)
	fmt.Printf("%-20s %.2f\n", "Total net pnl:", m.TotalNetPnl)
	fmt.Printf("%-20s %.2f (%.2f%%)\n", "Max drawdown:", m.MaxDrawdown, m.MaxDrawdownPercent)
	fmt.Printf("%-20s %.2f\n", "Total commission:", m.TotalCommission)
	fmt.Printf("%-20s %.2f\n", "Total slippage:", m.TotalSlippage)
	fmt.Printf("%-20s %.2f\n", "Total turnover:", m.TotalTurnover)
	fmt.Printf("%-20s %d\n", "Trade count:", m.TotalTradeCount)
	fmt.Printf("%-20s %.2f%%\n", "Total return:", m.TotalReturn)
	fmt.Printf("%-20s %.2f%%\n", "Annual return:", m.AnnualizedReturn)
	fmt.Printf("%-20s %.4f\n", "Sharpe ratio:", m.SharpeRatio)
	fmt.Printf("%-20s %.4f\n", "Kelly fraction:", m.KellyFraction)

	if s := report.Summary; s != nil {
		fmt.Println()
		fmt.Println("Round trips")
		fmt.Println("-----------")
		fmt.Printf("%-20s %d (%d wins, %d losses)\n", "Closed trips:", s.TotalRoundTrips, s.WinningCount, s.LosingCount)
		fmt.Printf("%-20s %.2f%%\n", "Winning rate:", s.WinningRate)
		fmt.Printf("%-20s %s\n", "Average winning:", s.AverageWinning.StringFixed(2))
		fmt.Printf("%-20s %s\n", "Average losing:", s.AverageLosing.StringFixed(2))
		fmt.Printf("%-20s %.2f\n", "Profit/loss ratio:", s.ProfitLossRatio)
	}
}
