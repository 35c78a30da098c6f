package accounting

import (
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"backtest_engine/internal/core"
)

func signedTrades(symbol string, volumes []int64, secondOffset int) []*core.Trade {
	trades := make([]*core.Trade, 0, len(volumes))
	for i, v := range volumes {
		dir := core.DirectionLong
		vol := v
		if v < 0 {
			dir = core.DirectionShort
			vol = -v
		}
		trades = append(trades, &core.Trade{
			Symbol:    symbol,
			Direction: dir,
			Price:     decimal.NewFromInt(100 + int64(i%7)),
			Volume:    vol,
			Timestamp: time.Date(2024, 1, 2, 9, 0, secondOffset+i, 0, time.UTC),
		})
	}
	return trades
}

// Property: every traded unit is closed exactly once. After the final
// force-close the absolute round-trip volumes sum to the larger side's
// total volume, no round trip carries zero volume, and nothing stays open.
func TestProperty_VolumeConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	volumesGen := gen.SliceOf(gen.Int64Range(-10, 10).SuchThat(func(v int64) bool { return v != 0 }))

	properties.Property("closed volume equals the larger side", prop.ForAll(
		func(volumes []int64) bool {
			a := NewAccountant(CostModel{})
			var totalLong, totalShort int64
			for _, trade := range signedTrades("BTCUSDT", volumes, 0) {
				if trade.Direction == core.DirectionLong {
					totalLong += trade.Volume
				} else {
					totalShort += trade.Volume
				}
				a.OnTrade(trade)
			}
			a.CloseAll(
				map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(105)},
				time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			)

			var closed int64
			for _, trip := range a.RoundTrips() {
				if trip.Volume == 0 {
					t.Log("zero-volume round trip emitted")
					return false
				}
				if trip.Volume > 0 {
					closed += trip.Volume
				} else {
					closed -= trip.Volume
				}
			}

			want := totalLong
			if totalShort > want {
				want = totalShort
			}
			if closed != want {
				t.Logf("closed %d, want %d (long %d short %d)", closed, want, totalLong, totalShort)
				return false
			}
			return a.OpenVolume("BTCUSDT") == 0
		},
		volumesGen,
	))

	properties.TestingRun(t)
}

// Property: pairing is independent per instrument. Feeding an interleaved
// two-symbol stream produces, per symbol, exactly the round trips of a solo
// run over that symbol's trades.
func TestProperty_InstrumentIsolation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	volumesGen := gen.SliceOf(gen.Int64Range(-10, 10).SuchThat(func(v int64) bool { return v != 0 }))

	type tripKey struct {
		entry, exit string
		volume      int64
	}
	keysFor := func(trips []RoundTrip, symbol string) []tripKey {
		keys := make([]tripKey, 0, len(trips))
		for _, trip := range trips {
			if trip.Symbol != symbol {
				continue
			}
			keys = append(keys, tripKey{
				entry:  trip.EntryPrice.String(),
				exit:   trip.ExitPrice.String(),
				volume: trip.Volume,
			})
		}
		return keys
	}

	properties.Property("interleaved stream pairs like solo streams", prop.ForAll(
		func(btcVolumes, ethVolumes []int64) bool {
			btc := signedTrades("BTCUSDT", btcVolumes, 0)
			eth := signedTrades("ETHUSDT", ethVolumes, len(btcVolumes))

			combined := NewAccountant(CostModel{})
			for i := 0; i < len(btc) || i < len(eth); i++ {
				if i < len(btc) {
					combined.OnTrade(btc[i])
				}
				if i < len(eth) {
					combined.OnTrade(eth[i])
				}
			}

			soloBTC := NewAccountant(CostModel{})
			for _, trade := range btc {
				soloBTC.OnTrade(trade)
			}
			soloETH := NewAccountant(CostModel{})
			for _, trade := range eth {
				soloETH.OnTrade(trade)
			}

			if !reflect.DeepEqual(keysFor(combined.RoundTrips(), "BTCUSDT"), keysFor(soloBTC.RoundTrips(), "BTCUSDT")) {
				t.Log("BTCUSDT trips diverged from solo run")
				return false
			}
			if !reflect.DeepEqual(keysFor(combined.RoundTrips(), "ETHUSDT"), keysFor(soloETH.RoundTrips(), "ETHUSDT")) {
				t.Log("ETHUSDT trips diverged from solo run")
				return false
			}
			return true
		},
		volumesGen,
		volumesGen,
	))

	properties.TestingRun(t)
}
