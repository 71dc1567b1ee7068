package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/barreplay/internal/domain"
)

func candlesFromCloses(closes []float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	prev := closes[0]
	for i, c := range closes {
		open := prev
		hi, lo := open, c
		if c > hi {
			hi, lo = c, open
		}
		out[i] = domain.Candle{Time: int64(i * 60), Open: open, High: hi + 0.5, Low: lo - 0.5, Close: c, Volume: 1}
		prev = c
	}
	return out
}

func ramp(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func permissive() Thresholds {
	th := DefaultThresholds()
	th.RSIOverbought = 100.1
	th.RSIOversold = -0.1
	th.ADXMin = 0
	th.UseMACD = false
	return th
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	th := DefaultThresholds()
	th.SlowPeriod = th.FastPeriod
	assert.Error(t, th.Validate())

	th = DefaultThresholds()
	th.RSIOversold = 80
	assert.Error(t, th.Validate())

	_, err := NewEvaluator(Thresholds{})
	assert.Error(t, err)
}

func TestEvaluate_WarmingUp(t *testing.T) {
	ev, err := NewEvaluator(DefaultThresholds())
	require.NoError(t, err)

	sig := ev.Evaluate(candlesFromCloses(ramp(100, 1, 10)), "")
	assert.Equal(t, domain.RecommendNone, sig.Recommendation)
	assert.Equal(t, "warming up", sig.Reason)
}

func TestEvaluate_CrossoverEntries(t *testing.T) {
	ev, err := NewEvaluator(permissive())
	require.NoError(t, err)

	t.Run("buy on the bar the fast EMA crosses up", func(t *testing.T) {
		closes := append(ramp(200, -1, 60), ramp(141, 3, 30)...)
		candles := candlesFromCloses(closes)

		buys := 0
		for n := 30; n <= len(candles); n++ {
			sig := ev.Evaluate(candles[:n], "")
			if sig.Recommendation == domain.RecommendBuy {
				buys++
				assert.True(t, sig.Readings.CrossUp)
				assert.Greater(t, sig.Readings.FastEMA, sig.Readings.SlowEMA)
			}
			assert.NotEqual(t, domain.RecommendSell, sig.Recommendation, "bar %d", n)
		}
		assert.Equal(t, 1, buys, "a single crossover yields a single entry")
	})

	t.Run("sell on the bar the fast EMA crosses down", func(t *testing.T) {
		closes := append(ramp(100, 1, 60), ramp(159, -3, 30)...)
		candles := candlesFromCloses(closes)

		sells := 0
		for n := 30; n <= len(candles); n++ {
			if ev.Evaluate(candles[:n], "").Recommendation == domain.RecommendSell {
				sells++
			}
		}
		assert.Equal(t, 1, sells)
	})
}

func TestEvaluate_Exits(t *testing.T) {
	th := DefaultThresholds()
	th.UseMACD = false
	ev, err := NewEvaluator(th)
	require.NoError(t, err)

	rising := candlesFromCloses(ramp(100, 1, 60))
	falling := candlesFromCloses(ramp(200, -1, 60))

	sig := ev.Evaluate(rising, domain.PositionSideLong)
	assert.Equal(t, domain.RecommendCloseLong, sig.Recommendation, sig.Reason)
	assert.InDelta(t, 100.0, sig.Readings.RSI, 1e-9)

	sig = ev.Evaluate(falling, domain.PositionSideShort)
	assert.Equal(t, domain.RecommendCloseShort, sig.Recommendation, sig.Reason)

	sig = ev.Evaluate(rising, domain.PositionSideShort)
	assert.Equal(t, domain.RecommendNone, sig.Recommendation)
	assert.Equal(t, "holding short", sig.Reason)

	// no crossover in a straight trend
	sig = ev.Evaluate(rising, "")
	assert.Equal(t, domain.RecommendNone, sig.Recommendation)
}

func TestEvaluate_ADXFilter(t *testing.T) {
	th := permissive()
	th.ADXMin = 101
	ev, err := NewEvaluator(th)
	require.NoError(t, err)

	closes := append(ramp(200, -1, 60), ramp(141, 3, 30)...)
	candles := candlesFromCloses(closes)
	for n := 30; n <= len(candles); n++ {
		assert.Equal(t, domain.RecommendNone, ev.Evaluate(candles[:n], "").Recommendation)
	}
}

func TestEvaluate_MACDReadings(t *testing.T) {
	th := permissive()
	th.UseMACD = true
	ev, err := NewEvaluator(th)
	require.NoError(t, err)

	sig := ev.Evaluate(candlesFromCloses(ramp(100, 1, 80)), "")
	assert.True(t, sig.Readings.HasMACD)
	assert.True(t, sig.Readings.HasADX)
	assert.Equal(t, 80, sig.Readings.BarsUsed)
}
