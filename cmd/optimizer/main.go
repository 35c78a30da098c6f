package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"

	"backtest_engine/internal/bootstrap"
	"backtest_engine/internal/optimize"
	"backtest_engine/internal/store"
	"backtest_engine/pkg/telemetry"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/backtest.yaml", "Path to configuration file")
	sequential := flag.Bool("sequential", false, "Run assignments one at a time, stopping at the first failure")
	metricsPort := flag.Int("metrics-port", 0, "Expose Prometheus metrics on this port (0 disables)")
	noProgress := flag.Bool("no-progress", false, "Disable the progress bar")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("optimizer version %s (built %s)\n", version, buildTime)
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

	factory, err := app.StrategyFactory()
	if err != nil {
		logger.Error("Failed to create strategy factory", "error", err)
		os.Exit(1)
	}
	grid, err := app.Grid()
	if err != nil {
		logger.Error("Failed to build parameter grid", "error", err)
		os.Exit(1)
	}

	if *metricsPort > 0 {
		metrics := telemetry.NewServer(*metricsPort, logger)
		metrics.Start()
		defer func() { _ = metrics.Stop(context.Background()) }()
	}

	logger.Info("Starting grid search",
		"version", version,
		"strategy", app.Cfg.Strategy.Name,
		"assignments", grid.Size(),
		"target", grid.Target(),
		"workers", app.Cfg.Optimizer.Workers,
		"sequential", *sequential,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := optimize.NewScheduler(cfg, provider, factory, logger)
	scheduler.SetWorkers(app.Cfg.Optimizer.Workers)
	if !*noProgress {
		bar := initProgressBar(grid.Size())
		scheduler.SetProgress(func(done, total int) {
			_ = bar.Set(done)
		})
	}

	var results []optimize.Result
	if *sequential {
		results, err = scheduler.RunSequential(ctx, grid)
	} else {
		results, err = scheduler.RunParallel(ctx, grid)
	}
	if !*noProgress {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		logger.Error("Grid search failed", "error", err)
		os.Exit(1)
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("Some assignments failed", "failed", failed, "total", len(results))
	}

	ranked := optimize.Rank(results)
	persistStudy(ctx, app, resultStore, ranked)
	printRanking(grid.Target(), ranked)
}

// persistStudy saves one run record per ranked assignment
func persistStudy(ctx context.Context, app *bootstrap.App, resultStore store.ResultStore, ranked []optimize.Result) {
	for _, res := range ranked {
		record := store.NewRunRecord(app.Cfg.Strategy.Name)
		record.Mode = app.Cfg.Data.Mode
		record.Symbols = app.Cfg.Data.Symbols
		record.Params = res.Assignment.Params
		if res.Report != nil {
			record.Metrics = res.Report.Metrics
			record.Days = res.Report.Days
		}
		if err := resultStore.SaveRun(ctx, record); err != nil {
			app.Logger.Warn("Failed to persist assignment", "error", err, "params", res.Assignment.String())
		}
	}
	app.Logger.Info("Study persisted", "runs", len(ranked))
}

func printRanking(target string, ranked []optimize.Result) {
	fmt.Println()
	fmt.Printf("Ranked assignments by %s\n", target)
	fmt.Println("======================")
	for i, res := range ranked {
		fmt.Printf("%3d. %-44s %14.4f\n", i+1, res.Assignment.String(), res.Value)
	}
}

func initProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Grid search in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
