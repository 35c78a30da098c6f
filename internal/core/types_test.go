package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarketMode(t *testing.T) {
	tests := []struct {
		in      string
		want    MarketMode
		wantErr bool
	}{
		{"bar", BarMode, false},
		{"BAR", BarMode, false},
		{"tick", TickMode, false},
		{"Tick", TickMode, false},
		{"candles", BarMode, true},
		{"", BarMode, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMarketMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOrderKind_Split(t *testing.T) {
	tests := []struct {
		kind      OrderKind
		direction Direction
		offset    Offset
	}{
		{OrderBuy, DirectionLong, OffsetOpen},
		{OrderSell, DirectionShort, OffsetClose},
		{OrderShort, DirectionShort, OffsetOpen},
		{OrderCover, DirectionLong, OffsetClose},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			d, o := tt.kind.Split()
			assert.Equal(t, tt.direction, d)
			assert.Equal(t, tt.offset, o)
		})
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusSubmitted.IsTerminal())
	assert.False(t, StatusNotTraded.IsTerminal())
	assert.True(t, StatusAllTraded.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}
