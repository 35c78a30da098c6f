package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "csv_dir: ${TEST_HISTORY_DIR}",
			envVars: map[string]string{
				"TEST_HISTORY_DIR": "/srv/history",
			},
			expected: "csv_dir: /srv/history",
		},
		{
			name:  "expand multiple env vars",
			input: "api_key: ${API_KEY}\nsecret_key: ${SECRET_KEY}",
			envVars: map[string]string{
				"API_KEY":    "key_value",
				"SECRET_KEY": "secret_value",
			},
			expected: "api_key: key_value\nsecret_key: secret_value",
		},
		{
			name:     "missing env var returns empty string",
			input:    "path: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "path: ",
		},
		{
			name:  "mixed static and env vars",
			input: "capital: 100000\npath: ${TEST_RUN_DB}",
			envVars: map[string]string{
				"TEST_RUN_DB": "runs.db",
			},
			expected: "capital: 100000\npath: runs.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	content := `data:
  mode: bar
  symbols: [BTCUSDT, ETHUSDT]
  start: "2024-01-01"
  end: "2024-06-30"
  init_days: 10
  provider: csv
  csv_dir: ${TEST_HISTORY_DIR}

costs:
  size: 1
  rate: 0.0002
  slippage: 0.5
  price_tick: 0.01

engine:
  capital: 100000

strategy:
  name: double_sma
  symbol: BTCUSDT
  fast_window: 5
  slow_window: 20
  volume: 2
  stop_loss_percent: 3

store:
  driver: sqlite
  path: runs.db

system:
  log_level: INFO

optimizer:
  workers: 4
  target: sharpeRatio
  parameters:
    fast:
      start: 5
      end: 15
      step: 5
    slow:
      value: 20
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("TEST_HISTORY_DIR", "/srv/history")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "bar", cfg.Data.Mode)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Data.Symbols)
	assert.Equal(t, 10, cfg.Data.InitDays)
	assert.Equal(t, "/srv/history", cfg.Data.CSVDir)

	start, end, err := cfg.Data.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), end)

	assert.InDelta(t, 0.5, cfg.Costs.Slippage, 1e-12)
	assert.InDelta(t, 100000, cfg.Engine.Capital, 1e-12)
	assert.Equal(t, int64(2), cfg.Strategy.Volume)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "runs.db", cfg.Store.Path)
	assert.Equal(t, 4, cfg.Optimizer.Workers)

	fast := cfg.Optimizer.Parameters["fast"]
	assert.False(t, fast.Fixed())
	assert.InDelta(t, 15, fast.End, 1e-12)
	slow := cfg.Optimizer.Parameters["slow"]
	require.True(t, slow.Fixed())
	assert.InDelta(t, 20, *slow.Value, 1e-12)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestConfig_Validate(t *testing.T) {
	fixed := func(v float64) ParameterRange {
		return ParameterRange{Value: &v}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Data.Mode = "candles" },
			wantErr: "data.mode",
		},
		{
			name:    "no symbols",
			mutate:  func(c *Config) { c.Data.Symbols = nil },
			wantErr: "data.symbols",
		},
		{
			name:    "bad start date",
			mutate:  func(c *Config) { c.Data.Start = "01/02/2024" },
			wantErr: "data.start",
		},
		{
			name: "window end precedes start",
			mutate: func(c *Config) {
				c.Data.Start = "2024-06-30"
				c.Data.End = "2024-01-01"
			},
			wantErr: "data.end",
		},
		{
			name:    "negative init days",
			mutate:  func(c *Config) { c.Data.InitDays = -1 },
			wantErr: "data.init_days",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Data.Provider = "postgres" },
			wantErr: "data.provider",
		},
		{
			name:    "csv provider without directory",
			mutate:  func(c *Config) { c.Data.Provider = "csv" },
			wantErr: "data.csv_dir",
		},
		{
			name:    "commission rate above one",
			mutate:  func(c *Config) { c.Costs.Rate = 1.5 },
			wantErr: "costs.rate",
		},
		{
			name:    "zero capital",
			mutate:  func(c *Config) { c.Engine.Capital = 0 },
			wantErr: "engine.capital",
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Config) { c.Strategy.Name = "triple_ema" },
			wantErr: "strategy.name",
		},
		{
			name:    "strategy symbol not replayed",
			mutate:  func(c *Config) { c.Strategy.Symbol = "ETHUSDT" },
			wantErr: "strategy.symbol",
		},
		{
			name: "fast window at slow window",
			mutate: func(c *Config) {
				c.Strategy.FastWindow = 20
				c.Strategy.SlowWindow = 20
			},
			wantErr: "strategy.fast_window",
		},
		{
			name:    "stop loss too large",
			mutate:  func(c *Config) { c.Strategy.StopLossPercent = 100 },
			wantErr: "strategy.stop_loss_percent",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Store.Driver = "sqlite" },
			wantErr: "store.path",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.System.LogLevel = "TRACE" },
			wantErr: "system.log_level",
		},
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Optimizer.Workers = -2 },
			wantErr: "optimizer.workers",
		},
		{
			name: "parameters without target",
			mutate: func(c *Config) {
				c.Optimizer.Target = ""
				c.Optimizer.Parameters = map[string]ParameterRange{"fast": fixed(5)}
			},
			wantErr: "optimizer.target",
		},
		{
			name: "sweep without step",
			mutate: func(c *Config) {
				c.Optimizer.Parameters = map[string]ParameterRange{
					"fast": {Start: 5, End: 15},
				}
			},
			wantErr: "step must be positive",
		},
		{
			name: "sweep end precedes start",
			mutate: func(c *Config) {
				c.Optimizer.Parameters = map[string]ParameterRange{
					"fast": {Start: 15, End: 5, Step: 5},
				}
			},
			wantErr: "end must not precede start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_String(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Data.Provider = "binance"
	cfg.Data.Binance.APIKey = Secret("my_super_secret_api_key")
	cfg.Data.Binance.SecretKey = Secret("my_super_secret_secret_key")

	output := cfg.String()

	assert.Contains(t, output, "[REDACTED]")
	assert.NotContains(t, output, "my_super_secret_api_key", "output should NOT contain full API key")
	assert.NotContains(t, output, "my_super_secret_secret_key", "output should NOT contain full secret key")
	assert.Contains(t, output, "BTCUSDT")
}

func TestDataConfig_Window(t *testing.T) {
	d := DataConfig{Start: "2024-01-02", End: "2024-03-04T15:00:00Z"}

	start, end, err := d.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), end)

	_, _, err = DataConfig{Start: "yesterday", End: "2024-03-04"}.Window()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.start")
}
