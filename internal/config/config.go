// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for one backtest or one
// optimization study.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Costs     CostsConfig     `yaml:"costs"`
	Engine    EngineConfig    `yaml:"engine"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Store     StoreConfig     `yaml:"store"`
	System    SystemConfig    `yaml:"system"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

// DataConfig selects the history source and the replay window
type DataConfig struct {
	Mode     string        `yaml:"mode"`      // bar or tick
	Symbols  []string      `yaml:"symbols"`   // instruments to replay
	Start    string        `yaml:"start"`     // YYYY-MM-DD or RFC3339
	End      string        `yaml:"end"`       // inclusive window end
	InitDays int           `yaml:"init_days"` // warmup days ahead of start
	Provider string        `yaml:"provider"`  // memory, csv or binance
	CSVDir   string        `yaml:"csv_dir"`   // history directory for the csv provider
	Binance  BinanceConfig `yaml:"binance"`
}

// BinanceConfig tunes the Binance kline provider. Keys are optional; the
// kline endpoints are public.
type BinanceConfig struct {
	BaseURL   string  `yaml:"base_url"`
	Interval  string  `yaml:"interval"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second
	APIKey    Secret  `yaml:"api_key"`
	SecretKey Secret  `yaml:"secret_key"`
}

// CostsConfig parameterizes the transaction cost model
type CostsConfig struct {
	Size      float64 `yaml:"size"`     // contract multiplier
	Rate      float64 `yaml:"rate"`     // commission rate on turnover
	Slippage  float64 `yaml:"slippage"` // cost per unit per leg
	PriceTick float64 `yaml:"price_tick"`
}

// EngineConfig contains replay-level settings
type EngineConfig struct {
	Capital float64 `yaml:"capital"`
}

// StrategyConfig parameterizes the shipped strategy. The optimizer uses
// these values as the base that grid parameters override.
type StrategyConfig struct {
	Name            string  `yaml:"name"`
	Symbol          string  `yaml:"symbol"`
	FastWindow      int     `yaml:"fast_window"`
	SlowWindow      int     `yaml:"slow_window"`
	Volume          int64   `yaml:"volume"`
	StopLossPercent float64 `yaml:"stop_loss_percent"`
}

// StoreConfig selects where finished runs are persisted
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory or sqlite
	Path   string `yaml:"path"`   // database file for the sqlite driver
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// OptimizerConfig drives the grid search
type OptimizerConfig struct {
	Workers    int                       `yaml:"workers"` // 0 means hardware parallelism
	Target     string                    `yaml:"target"`  // metric name to rank by
	Parameters map[string]ParameterRange `yaml:"parameters"`
}

// ParameterRange is either a pinned value or an inclusive start/end/step
// sweep over one strategy parameter.
type ParameterRange struct {
	Value *float64 `yaml:"value"`
	Start float64  `yaml:"start"`
	End   float64  `yaml:"end"`
	Step  float64  `yaml:"step"`
}

// Fixed reports whether the range pins a single value
func (p ParameterRange) Fixed() bool {
	return p.Value != nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateData(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateCosts(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateEngine(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateStrategy(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateStore(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateSystem(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateOptimizer(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateData() error {
	validModes := []string{"bar", "tick"}
	if !contains(validModes, strings.ToLower(c.Data.Mode)) {
		return ValidationError{
			Field:   "data.mode",
			Value:   c.Data.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validModes, ", ")),
		}
	}

	if len(c.Data.Symbols) == 0 {
		return ValidationError{
			Field:   "data.symbols",
			Message: "at least one symbol is required",
		}
	}

	start, err := parseDate(c.Data.Start)
	if err != nil {
		return ValidationError{
			Field:   "data.start",
			Value:   c.Data.Start,
			Message: "unparseable date, want YYYY-MM-DD or RFC3339",
		}
	}
	end, err := parseDate(c.Data.End)
	if err != nil {
		return ValidationError{
			Field:   "data.end",
			Value:   c.Data.End,
			Message: "unparseable date, want YYYY-MM-DD or RFC3339",
		}
	}
	if end.Before(start) {
		return ValidationError{
			Field:   "data.end",
			Value:   c.Data.End,
			Message: "window end precedes start",
		}
	}

	if c.Data.InitDays < 0 {
		return ValidationError{
			Field:   "data.init_days",
			Value:   c.Data.InitDays,
			Message: "must not be negative",
		}
	}

	validProviders := []string{"memory", "csv", "binance"}
	provider := strings.ToLower(c.Data.Provider)
	if !contains(validProviders, provider) {
		return ValidationError{
			Field:   "data.provider",
			Value:   c.Data.Provider,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validProviders, ", ")),
		}
	}
	if provider == "csv" && c.Data.CSVDir == "" {
		return ValidationError{
			Field:   "data.csv_dir",
			Message: "history directory is required for the csv provider",
		}
	}
	if c.Data.Binance.RateLimit < 0 {
		return ValidationError{
			Field:   "data.binance.rate_limit",
			Value:   c.Data.Binance.RateLimit,
			Message: "must not be negative",
		}
	}

	return nil
}

func (c *Config) validateCosts() error {
	if c.Costs.Size < 0 {
		return ValidationError{
			Field:   "costs.size",
			Value:   c.Costs.Size,
			Message: "must not be negative",
		}
	}
	if c.Costs.Rate < 0 || c.Costs.Rate > 1 {
		return ValidationError{
			Field:   "costs.rate",
			Value:   c.Costs.Rate,
			Message: "must be between 0 and 1",
		}
	}
	if c.Costs.Slippage < 0 {
		return ValidationError{
			Field:   "costs.slippage",
			Value:   c.Costs.Slippage,
			Message: "must not be negative",
		}
	}
	if c.Costs.PriceTick < 0 {
		return ValidationError{
			Field:   "costs.price_tick",
			Value:   c.Costs.PriceTick,
			Message: "must not be negative",
		}
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.Capital <= 0 {
		return ValidationError{
			Field:   "engine.capital",
			Value:   c.Engine.Capital,
			Message: "starting capital must be positive",
		}
	}
	return nil
}

func (c *Config) validateStrategy() error {
	validStrategies := []string{"double_sma"}
	if !contains(validStrategies, c.Strategy.Name) {
		return ValidationError{
			Field:   "strategy.name",
			Value:   c.Strategy.Name,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validStrategies, ", ")),
		}
	}

	if c.Strategy.Symbol == "" {
		return ValidationError{
			Field:   "strategy.symbol",
			Message: "strategy symbol is required",
		}
	}
	if !contains(c.Data.Symbols, c.Strategy.Symbol) {
		return ValidationError{
			Field:   "strategy.symbol",
			Value:   c.Strategy.Symbol,
			Message: "not among data.symbols",
		}
	}

	if c.Strategy.FastWindow < 0 {
		return ValidationError{
			Field:   "strategy.fast_window",
			Value:   c.Strategy.FastWindow,
			Message: "must not be negative",
		}
	}
	if c.Strategy.SlowWindow < 0 {
		return ValidationError{
			Field:   "strategy.slow_window",
			Value:   c.Strategy.SlowWindow,
			Message: "must not be negative",
		}
	}
	if c.Strategy.FastWindow > 0 && c.Strategy.SlowWindow > 0 &&
		c.Strategy.FastWindow >= c.Strategy.SlowWindow {
		return ValidationError{
			Field:   "strategy.fast_window",
			Value:   c.Strategy.FastWindow,
			Message: "must be below slow_window",
		}
	}

	if c.Strategy.Volume < 0 {
		return ValidationError{
			Field:   "strategy.volume",
			Value:   c.Strategy.Volume,
			Message: "must not be negative",
		}
	}
	if c.Strategy.StopLossPercent < 0 || c.Strategy.StopLossPercent >= 100 {
		return ValidationError{
			Field:   "strategy.stop_loss_percent",
			Value:   c.Strategy.StopLossPercent,
			Message: "must be between 0 and 100",
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	validDrivers := []string{"memory", "sqlite"}
	driver := strings.ToLower(c.Store.Driver)
	if !contains(validDrivers, driver) {
		return ValidationError{
			Field:   "store.driver",
			Value:   c.Store.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validDrivers, ", ")),
		}
	}
	if driver == "sqlite" && c.Store.Path == "" {
		return ValidationError{
			Field:   "store.path",
			Message: "database file is required for the sqlite driver",
		}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateOptimizer() error {
	if c.Optimizer.Workers < 0 {
		return ValidationError{
			Field:   "optimizer.workers",
			Value:   c.Optimizer.Workers,
			Message: "must not be negative",
		}
	}

	if len(c.Optimizer.Parameters) == 0 {
		return nil
	}
	if c.Optimizer.Target == "" {
		return ValidationError{
			Field:   "optimizer.target",
			Message: "target metric is required when parameters are set",
		}
	}

	for name, p := range c.Optimizer.Parameters {
		if name == "" {
			return ValidationError{
				Field:   "optimizer.parameters",
				Message: "parameter names must not be empty",
			}
		}
		if p.Fixed() {
			continue
		}
		if p.Step <= 0 {
			return ValidationError{
				Field:   "optimizer.parameters." + name,
				Value:   p.Step,
				Message: "step must be positive",
			}
		}
		if p.End < p.Start {
			return ValidationError{
				Field:   "optimizer.parameters." + name,
				Value:   p.End,
				Message: "end must not precede start",
			}
		}
	}
	return nil
}

// Window returns the parsed replay window in UTC
func (d DataConfig) Window() (time.Time, time.Time, error) {
	start, err := parseDate(d.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("data.start: %w", err)
	}
	end, err := parseDate(d.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("data.end: %w", err)
	}
	return start, end, nil
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

// Helper functions

var dateLayouts = []string{"2006-01-02", time.RFC3339}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a runnable configuration for tests and as the base
// the CLI flags override
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Mode:     "bar",
			Symbols:  []string{"BTCUSDT"},
			Start:    "2024-01-01",
			End:      "2024-06-30",
			Provider: "memory",
			Binance: BinanceConfig{
				Interval:  "1d",
				RateLimit: 5,
			},
		},
		Costs: CostsConfig{
			Size:      1,
			Rate:      0.0002,
			Slippage:  0,
			PriceTick: 0.01,
		},
		Engine: EngineConfig{
			Capital: 100000,
		},
		Strategy: StrategyConfig{
			Name:       "double_sma",
			Symbol:     "BTCUSDT",
			FastWindow: 5,
			SlowWindow: 20,
			Volume:     1,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Optimizer: OptimizerConfig{
			Target: "sharpeRatio",
		},
	}
}
