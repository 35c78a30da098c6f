package tradingutils

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		tick     string
		expected string
	}{
		{"zero tick passthrough", "105.37", "0", "105.37"},
		{"round down", "105.2", "0.5", "105"},
		{"round up", "105.3", "0.5", "105.5"},
		{"half rounds away from zero", "105.25", "0.5", "105.5"},
		{"integer tick", "2017.4", "1", "2017"},
		{"already aligned", "2018", "1", "2018"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := decimal.RequireFromString(tt.price)
			tick := decimal.RequireFromString(tt.tick)
			got := RoundToTick(price, tick)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.expected)),
				"got %s, want %s", got, tt.expected)
		})
	}
}

func TestMeanAndSampleStd(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, SampleStd(nil))
	assert.Equal(t, 0.0, SampleStd([]float64{1.5}))

	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(xs), 1e-12)
	// Sample variance of this series is 32/7.
	assert.InDelta(t, math.Sqrt(32.0/7.0), SampleStd(xs), 1e-12)
}

func TestDropNaN(t *testing.T) {
	xs := []float64{1, math.NaN(), 2, math.NaN(), 3}
	assert.Equal(t, []float64{1, 2, 3}, DropNaN(xs))
}
