package indicators

import "github.com/vadiminshakov/barreplay/internal/domain"

// atr is the average true range: the mean of the first period true ranges,
// Wilder-smoothed afterwards.
type atr struct {
	period int
	tr     []float64
	atr    []float64
}

func newATR(period int) *atr {
	return &atr{period: period}
}

func (a *atr) minBars() int { return a.period }

func (a *atr) grow() {
	a.tr = append(a.tr, 0)
	a.atr = append(a.atr, 0)
}

func (a *atr) reset() {
	a.tr = a.tr[:0]
	a.atr = a.atr[:0]
}

func (a *atr) compute(history []domain.Candle, i int) (float64, bool) {
	a.tr[i] = trueRange(history, i)
	switch {
	case i < a.period-1:
		return 0, false
	case i == a.period-1:
		sum := 0.0
		for j := 0; j <= i; j++ {
			sum += a.tr[j]
		}
		a.atr[i] = sum / float64(a.period)
	default:
		a.atr[i] = wilder(a.atr[i-1], a.tr[i], a.period)
	}
	return a.atr[i], true
}
