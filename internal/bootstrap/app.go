// Package bootstrap wires one configuration file into the components the
// backtester and optimizer binaries share.
package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"backtest_engine/internal/config"
	"backtest_engine/internal/core"
	"backtest_engine/pkg/logging"
)

// App holds the dependencies both binaries build from one config file.
type App struct {
	Cfg    *config.Config
	Logger core.ILogger
}

// NewApp creates a new App instance by bootstrapping all dependencies.
func NewApp(configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logging.SetGlobalLogger(logger)

	return &App{
		Cfg:    cfg,
		Logger: logger,
	}, nil
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(cfg *config.Config) error {
	if strings.ToLower(cfg.Data.Provider) == "csv" {
		info, err := os.Stat(cfg.Data.CSVDir)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("csv_dir not found: %s", cfg.Data.CSVDir)
			}
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("csv_dir is not a directory: %s", cfg.Data.CSVDir)
		}
	}
	return nil
}
