package indicators

import (
	"math"

	"github.com/vadiminshakov/barreplay/internal/domain"
)

// adx is the average directional index.
//
// Raw TR, +DM and -DM start at bar 1. Their Wilder sums are seeded at bar
// period with the plain sum of bars 1..period. DX is available from bar period
// and ADX is seeded at bar 2*period-1 with the mean of the first period DX values.
type adx struct {
	period int

	tr, plusDM, minusDM    []float64
	sTR, sPlusDM, sMinusDM []float64
	dx, adx                []float64
}

func newADX(period int) *adx {
	return &adx{period: period}
}

func (a *adx) minBars() int { return 2 * a.period }

func (a *adx) grow() {
	for _, s := range a.slices() {
		*s = append(*s, 0)
	}
}

func (a *adx) reset() {
	for _, s := range a.slices() {
		*s = (*s)[:0]
	}
}

func (a *adx) slices() []*[]float64 {
	return []*[]float64{&a.tr, &a.plusDM, &a.minusDM, &a.sTR, &a.sPlusDM, &a.sMinusDM, &a.dx, &a.adx}
}

func (a *adx) compute(history []domain.Candle, i int) (float64, bool) {
	if i == 0 {
		return 0, false
	}

	cur, prev := history[i], history[i-1]
	up := cur.High - prev.High
	down := prev.Low - cur.Low
	a.plusDM[i], a.minusDM[i] = 0, 0
	if up > down && up > 0 {
		a.plusDM[i] = up
	}
	if down > up && down > 0 {
		a.minusDM[i] = down
	}
	a.tr[i] = trueRange(history, i)

	p := a.period
	switch {
	case i < p:
		return 0, false
	case i == p:
		a.sTR[i], a.sPlusDM[i], a.sMinusDM[i] = 0, 0, 0
		for j := 1; j <= p; j++ {
			a.sTR[i] += a.tr[j]
			a.sPlusDM[i] += a.plusDM[j]
			a.sMinusDM[i] += a.minusDM[j]
		}
	default:
		fp := float64(p)
		a.sTR[i] = a.sTR[i-1] - a.sTR[i-1]/fp + a.tr[i]
		a.sPlusDM[i] = a.sPlusDM[i-1] - a.sPlusDM[i-1]/fp + a.plusDM[i]
		a.sMinusDM[i] = a.sMinusDM[i-1] - a.sMinusDM[i-1]/fp + a.minusDM[i]
	}

	a.dx[i] = directionalIndex(a.sTR[i], a.sPlusDM[i], a.sMinusDM[i])

	switch {
	case i < 2*p-1:
		return 0, false
	case i == 2*p-1:
		sum := 0.0
		for j := p; j <= i; j++ {
			sum += a.dx[j]
		}
		a.adx[i] = sum / float64(p)
	default:
		a.adx[i] = wilder(a.adx[i-1], a.dx[i], p)
	}
	return a.adx[i], true
}

// directionalIndex returns DX from smoothed sums; zero denominators yield 0.
func directionalIndex(sTR, sPlus, sMinus float64) float64 {
	if sTR == 0 {
		return 0
	}
	plusDI := 100 * sPlus / sTR
	minusDI := 100 * sMinus / sTR
	sum := plusDI + minusDI
	if sum == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / sum
}
