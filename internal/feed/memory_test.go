package feed

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest_engine/internal/core"
	apperrors "backtest_engine/pkg/errors"
)

func dayBar(symbol string, day int, close float64) *core.Bar {
	return &core.Bar{
		Symbol:   symbol,
		Datetime: time.Date(2024, 1, day, 10, 0, 0, 0, time.UTC),
		Close:    decimal.NewFromFloat(close),
	}
}

func TestMemoryProvider_WindowIsInclusive(t *testing.T) {
	p := NewMemoryProvider()
	p.AddBars("BTCUSDT", dayBar("BTCUSDT", 3, 3), dayBar("BTCUSDT", 1, 1), dayBar("BTCUSDT", 2, 2))

	bars, err := p.Bars(context.Background(),
		"BTCUSDT",
		time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	// sorted on insert, both boundary records included
	assert.True(t, bars[0].Close.Equal(decimal.NewFromInt(2)))
	assert.True(t, bars[1].Close.Equal(decimal.NewFromInt(3)))
}

func TestMemoryProvider_UnknownSymbol(t *testing.T) {
	p := NewMemoryProvider()

	_, err := p.Bars(context.Background(), "NOPE", time.Time{}, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrUnknownSymbol)

	_, err = p.Ticks(context.Background(), "NOPE", time.Time{}, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrUnknownSymbol)
}

func TestMemoryProvider_EmptyWindow(t *testing.T) {
	p := NewMemoryProvider()
	p.AddBars("BTCUSDT", dayBar("BTCUSDT", 1, 1))

	bars, err := p.Bars(context.Background(),
		"BTCUSDT",
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestMemoryProvider_Ticks(t *testing.T) {
	p := NewMemoryProvider()
	p.AddTicks("ETHUSDT",
		&core.Tick{Symbol: "ETHUSDT", Datetime: time.Date(2024, 1, 2, 10, 0, 1, 0, time.UTC), LastPrice: decimal.NewFromInt(2000)},
		&core.Tick{Symbol: "ETHUSDT", Datetime: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), LastPrice: decimal.NewFromInt(1999)},
	)

	ticks, err := p.Ticks(context.Background(), "ETHUSDT",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.True(t, ticks[0].LastPrice.Equal(decimal.NewFromInt(1999)))
}
