package replay

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest_engine/internal/core"
)

func testBar(symbol string, minute int) *core.Bar {
	return &core.Bar{
		Symbol:   symbol,
		Datetime: time.Date(2024, 1, 2, 9, minute, 0, 0, time.UTC),
		Open:     decimal.NewFromInt(100),
		High:     decimal.NewFromInt(101),
		Low:      decimal.NewFromInt(99),
		Close:    decimal.NewFromInt(100),
	}
}

func TestSynchronizer_SingleSymbolPreservesOrder(t *testing.T) {
	sync := NewBarSynchronizer(map[string][]*core.Bar{
		"BTCUSDT": {testBar("BTCUSDT", 0), testBar("BTCUSDT", 1), testBar("BTCUSDT", 2)},
	})

	assert.Equal(t, 3, sync.Total())

	var minutes []int
	for {
		snap, ok := sync.Next()
		if !ok {
			break
		}
		require.Len(t, snap, 1)
		minutes = append(minutes, snap["BTCUSDT"].Datetime.Minute())
	}
	assert.Equal(t, []int{0, 1, 2}, minutes)
	assert.Equal(t, 3, sync.Consumed())
}

func TestSynchronizer_GroupsEqualTimestamps(t *testing.T) {
	sync := NewBarSynchronizer(map[string][]*core.Bar{
		"BTCUSDT": {testBar("BTCUSDT", 0), testBar("BTCUSDT", 1)},
		"ETHUSDT": {testBar("ETHUSDT", 0), testBar("ETHUSDT", 1)},
	})

	snap, ok := sync.Next()
	require.True(t, ok)
	assert.Len(t, snap, 2)
	assert.Contains(t, snap, "BTCUSDT")
	assert.Contains(t, snap, "ETHUSDT")

	snap, ok = sync.Next()
	require.True(t, ok)
	assert.Len(t, snap, 2)

	_, ok = sync.Next()
	assert.False(t, ok)
}

func TestSynchronizer_InterleavesBySmallestTimestamp(t *testing.T) {
	// BTC trades minutes 0,2 while ETH trades minutes 1,2. Snapshots must
	// come out at 0, 1, 2 with only the instruments present at each minute.
	sync := NewBarSynchronizer(map[string][]*core.Bar{
		"BTCUSDT": {testBar("BTCUSDT", 0), testBar("BTCUSDT", 2)},
		"ETHUSDT": {testBar("ETHUSDT", 1), testBar("ETHUSDT", 2)},
	})

	snap, ok := sync.Next()
	require.True(t, ok)
	require.Len(t, snap, 1)
	assert.Contains(t, snap, "BTCUSDT")
	assert.Equal(t, 0, snap["BTCUSDT"].Datetime.Minute())

	snap, ok = sync.Next()
	require.True(t, ok)
	require.Len(t, snap, 1)
	assert.Contains(t, snap, "ETHUSDT")
	assert.Equal(t, 1, snap["ETHUSDT"].Datetime.Minute())

	snap, ok = sync.Next()
	require.True(t, ok)
	assert.Len(t, snap, 2)

	_, ok = sync.Next()
	assert.False(t, ok)
	assert.Equal(t, 4, sync.Consumed())
}

func TestSynchronizer_ExhaustedInstrumentDropsOut(t *testing.T) {
	sync := NewBarSynchronizer(map[string][]*core.Bar{
		"BTCUSDT": {testBar("BTCUSDT", 0)},
		"ETHUSDT": {testBar("ETHUSDT", 0), testBar("ETHUSDT", 1), testBar("ETHUSDT", 2)},
	})

	snap, ok := sync.Next()
	require.True(t, ok)
	assert.Len(t, snap, 2)

	for i := 1; i <= 2; i++ {
		snap, ok = sync.Next()
		require.True(t, ok)
		require.Len(t, snap, 1)
		assert.Contains(t, snap, "ETHUSDT")
		assert.Equal(t, i, snap["ETHUSDT"].Datetime.Minute())
	}

	_, ok = sync.Next()
	assert.False(t, ok)
}

func TestSynchronizer_EmptySeries(t *testing.T) {
	sync := NewBarSynchronizer(map[string][]*core.Bar{})
	_, ok := sync.Next()
	assert.False(t, ok)
	assert.Zero(t, sync.Total())

	sync = NewBarSynchronizer(map[string][]*core.Bar{"BTCUSDT": nil})
	_, ok = sync.Next()
	assert.False(t, ok)
}

func TestSynchronizer_Ticks(t *testing.T) {
	at := func(sec int) time.Time {
		return time.Date(2024, 1, 2, 9, 0, sec, 0, time.UTC)
	}
	sync := NewTickSynchronizer(map[string][]*core.Tick{
		"BTCUSDT": {
			{Symbol: "BTCUSDT", Datetime: at(0), LastPrice: decimal.NewFromInt(100)},
			{Symbol: "BTCUSDT", Datetime: at(1), LastPrice: decimal.NewFromInt(101)},
		},
	})

	snap, ok := sync.Next()
	require.True(t, ok)
	assert.True(t, snap["BTCUSDT"].LastPrice.Equal(decimal.NewFromInt(100)))

	snap, ok = sync.Next()
	require.True(t, ok)
	assert.True(t, snap["BTCUSDT"].LastPrice.Equal(decimal.NewFromInt(101)))

	_, ok = sync.Next()
	assert.False(t, ok)
}
