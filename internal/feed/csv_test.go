package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest_engine/internal/core"
	apperrors "backtest_engine/pkg/errors"
)

type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...interface{})                {}
func (noopLogger) Info(msg string, fields ...interface{})                 {}
func (noopLogger) Warn(msg string, fields ...interface{})                 {}
func (noopLogger) Error(msg string, fields ...interface{})                {}
func (noopLogger) Fatal(msg string, fields ...interface{})                {}
func (n noopLogger) WithField(key string, value interface{}) core.ILogger { return n }
func (n noopLogger) WithFields(fields map[string]interface{}) core.ILogger {
	return n
}

func writeHistory(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func fullWindow() (time.Time, time.Time) {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
}

func TestCSVProvider_BarsParseAndSort(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, "BTCUSDT.csv", `datetime,open,high,low,close,volume
2024-01-03 10:00:00,110,115,105,112,9
2024-01-02T10:00:00Z,100.5,105,95,101,10
`)

	p := NewCSVProvider(dir, noopLogger{})
	start, end := fullWindow()
	bars, err := p.Bars(context.Background(), "BTCUSDT", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	// rows are sorted by datetime regardless of file order
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), bars[0].Datetime)
	assert.True(t, bars[0].Open.Equal(decimal.NewFromFloat(100.5)), "open %s", bars[0].Open)
	assert.True(t, bars[0].Volume.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "BTCUSDT", bars[0].Symbol)
	assert.Equal(t, time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC), bars[1].Datetime)
}

func TestCSVProvider_WindowFilter(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, "BTCUSDT.csv", `datetime,open,high,low,close,volume
2024-01-02T10:00:00Z,100,105,95,101,10
2024-01-03T10:00:00Z,110,115,105,112,9
2024-01-04T10:00:00Z,120,125,115,122,8
`)

	p := NewCSVProvider(dir, noopLogger{})
	bars, err := p.Bars(context.Background(), "BTCUSDT",
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 23, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Close.Equal(decimal.NewFromInt(112)))
}

func TestCSVProvider_Ticks(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, "ETHUSDT.ticks.csv", `datetime,last_price,bid_price,ask_price,volume
2024-01-02T10:00:01Z,2000,1999.5,2000.5,3
2024-01-02T10:00:00Z,1999,1998.5,1999.5,2
`)

	p := NewCSVProvider(dir, noopLogger{})
	start, end := fullWindow()
	ticks, err := p.Ticks(context.Background(), "ETHUSDT", start, end)
	require.NoError(t, err)
	require.Len(t, ticks, 2)

	assert.True(t, ticks[0].LastPrice.Equal(decimal.NewFromInt(1999)))
	assert.True(t, ticks[0].BidPrice1.Equal(decimal.NewFromFloat(1998.5)))
	assert.True(t, ticks[1].AskPrice1.Equal(decimal.NewFromFloat(2000.5)))
}

func TestCSVProvider_MissingFile(t *testing.T) {
	p := NewCSVProvider(t.TempDir(), noopLogger{})

	start, end := fullWindow()
	_, err := p.Bars(context.Background(), "NOPE", start, end)
	assert.ErrorIs(t, err, apperrors.ErrUnknownSymbol)
}

func TestCSVProvider_BadDatetime(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, "BTCUSDT.csv", `datetime,open,high,low,close,volume
02/01/2024,100,105,95,101,10
`)

	p := NewCSVProvider(dir, noopLogger{})
	start, end := fullWindow()
	_, err := p.Bars(context.Background(), "BTCUSDT", start, end)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable datetime")
}

func TestCSVProvider_CachesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BTCUSDT.csv")
	writeHistory(t, dir, "BTCUSDT.csv", `datetime,open,high,low,close,volume
2024-01-02T10:00:00Z,100,105,95,101,10
`)

	p := NewCSVProvider(dir, noopLogger{})
	start, end := fullWindow()
	first, err := p.Bars(context.Background(), "BTCUSDT", start, end)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// the file is gone but the second read is served from cache
	require.NoError(t, os.Remove(path))
	second, err := p.Bars(context.Background(), "BTCUSDT", start, end)
	require.NoError(t, err)
	assert.Len(t, second, 1)
}
