package indicators

import "github.com/vadiminshakov/barreplay/internal/domain"

// rsi is the relative strength index with Wilder smoothing.
// Averages are kept per bar so that revising the last bar restarts from the
// previous bar's averages instead of the already-mutated current ones.
type rsi struct {
	period  int
	src     domain.SourceField
	avgGain []float64
	avgLoss []float64
}

func newRSI(period int, src domain.SourceField) *rsi {
	return &rsi{period: period, src: src}
}

// minBars is period+1: changes start at index 1.
func (r *rsi) minBars() int { return r.period + 1 }

func (r *rsi) grow() {
	r.avgGain = append(r.avgGain, 0)
	r.avgLoss = append(r.avgLoss, 0)
}

func (r *rsi) reset() {
	r.avgGain = r.avgGain[:0]
	r.avgLoss = r.avgLoss[:0]
}

func (r *rsi) change(history []domain.Candle, i int) (gain, loss float64) {
	delta := history[i].Field(r.src) - history[i-1].Field(r.src)
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func (r *rsi) compute(history []domain.Candle, i int) (float64, bool) {
	switch {
	case i < r.period:
		return 0, false
	case i == r.period:
		var sumGain, sumLoss float64
		for j := 1; j <= i; j++ {
			g, l := r.change(history, j)
			sumGain += g
			sumLoss += l
		}
		r.avgGain[i] = sumGain / float64(r.period)
		r.avgLoss[i] = sumLoss / float64(r.period)
	default:
		g, l := r.change(history, i)
		r.avgGain[i] = wilder(r.avgGain[i-1], g, r.period)
		r.avgLoss[i] = wilder(r.avgLoss[i-1], l, r.period)
	}
	return rsiValue(r.avgGain[i], r.avgLoss[i]), true
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	case avgGain == 0:
		return 0
	}
	v := 100 - 100/(1+avgGain/avgLoss)
	// clamp rounding noise
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
