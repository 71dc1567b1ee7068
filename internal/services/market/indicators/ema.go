package indicators

import "github.com/vadiminshakov/barreplay/internal/domain"

// ema is an exponential moving average seeded with the first bar's price
// (not an SMA over the first period bars), so every bar emits a point.
type ema struct {
	period     int
	multiplier float64
	src        domain.SourceField
	values     []float64
}

func newEMA(period int, src domain.SourceField) *ema {
	return &ema{
		period:     period,
		multiplier: 2.0 / float64(period+1),
		src:        src,
	}
}

func (e *ema) minBars() int { return 1 }
func (e *ema) grow()        { e.values = append(e.values, 0) }
func (e *ema) reset()       { e.values = e.values[:0] }

func (e *ema) compute(history []domain.Candle, i int) (float64, bool) {
	price := history[i].Field(e.src)
	if i == 0 {
		e.values[0] = price
		return price, true
	}
	// EMA = price*k + prev*(1-k); prev is the slot below, so revising bar i
	// never reads its own already-mutated value
	v := price*e.multiplier + e.values[i-1]*(1-e.multiplier)
	e.values[i] = v
	return v, true
}
