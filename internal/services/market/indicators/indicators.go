// Package indicators provides streaming technical indicators (SMA, EMA, ATR, RSI, ADX)
// that produce the same series whether computed in one batch pass over history
// or incrementally bar by bar.
package indicators

import (
	"fmt"
	"math"

	"github.com/vadiminshakov/barreplay/internal/domain"
)

// UpdateMode tells whether an Update call appends a new bar or revises the last one.
type UpdateMode int

const (
	// UpdateAppend adds a bar with a time later than every bar seen so far.
	UpdateAppend UpdateMode = iota
	// UpdateReplaceLast revises the still-forming last bar (same time).
	UpdateReplaceLast
	// UpdateRejected marks a bar older than the last seen one.
	UpdateRejected
)

// String returns a human-readable representation.
func (m UpdateMode) String() string {
	switch m {
	case UpdateAppend:
		return "append"
	case UpdateReplaceLast:
		return "replace_last"
	default:
		return "rejected"
	}
}

// Calculator is the contract shared by every indicator kind.
type Calculator interface {
	// Definition returns the configuration the calculator was built from.
	Definition() domain.IndicatorDefinition
	// Calculate discards all state and recomputes the full series over history.
	Calculate(history []domain.Candle) []domain.Point
	// Update extends (or revises) the series with exactly one bar.
	// It returns false while history is too short to emit a point.
	Update(bar domain.Candle) (domain.Point, bool)
	// ModeFor reports how Update would treat the bar.
	ModeFor(bar domain.Candle) UpdateMode
	// Reset drops all state.
	Reset()
	// Series returns a copy of the emitted series.
	Series() []domain.Point
	// Last returns the newest emitted point.
	Last() (domain.Point, bool)
	// Len returns the number of bars seen.
	Len() int
	// MinBars is the shortest history that emits a point.
	MinBars() int
}

// rolling is the algorithm-specific per-bar state of one indicator kind.
// All per-bar arrays are indexed positionally alongside history.
type rolling interface {
	minBars() int
	// grow appends one slot to every per-bar array.
	grow()
	// compute fills slot i from history[:i+1] and slots below i.
	compute(history []domain.Candle, i int) (float64, bool)
	reset()
}

// batcher is implemented by kinds whose full pass differs from repeated compute calls.
type batcher interface {
	batch(history []domain.Candle) []domain.Point
}

// New creates a calculator for the definition.
func New(def domain.IndicatorDefinition) (Calculator, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	var state rolling
	switch def.Kind {
	case domain.IndicatorSMA:
		state = newSMA(def.Period, def.Source)
	case domain.IndicatorEMA:
		state = newEMA(def.Period, def.Source)
	case domain.IndicatorATR:
		state = newATR(def.Period)
	case domain.IndicatorRSI:
		state = newRSI(def.Period, def.Source)
	case domain.IndicatorADX:
		state = newADX(def.Period)
	default:
		return nil, fmt.Errorf("unsupported indicator type %q", def.Kind)
	}

	return &indicator{def: def, state: state}, nil
}

// MustNew is like New but panics on an invalid definition.
// Definitions are validated at startup, so a failure here is a programming error.
func MustNew(def domain.IndicatorDefinition) Calculator {
	c, err := New(def)
	if err != nil {
		panic(err)
	}
	return c
}

// indicator owns the candles it has seen and the series it emitted.
type indicator struct {
	def     domain.IndicatorDefinition
	history []domain.Candle
	points  []domain.Point
	state   rolling
}

func (ind *indicator) Definition() domain.IndicatorDefinition { return ind.def }
func (ind *indicator) Len() int                               { return len(ind.history) }
func (ind *indicator) MinBars() int                           { return ind.state.minBars() }

func (ind *indicator) Reset() {
	ind.history = nil
	ind.points = nil
	ind.state.reset()
}

func (ind *indicator) Calculate(history []domain.Candle) []domain.Point {
	ind.Reset()
	ind.history = make([]domain.Candle, 0, len(history))

	if b, ok := ind.state.(batcher); ok {
		ind.history = append(ind.history, history...)
		for range history {
			ind.state.grow()
		}
		ind.points = b.batch(ind.history)
		return ind.Series()
	}

	for i, bar := range history {
		ind.history = append(ind.history, bar)
		ind.state.grow()
		if v, ok := ind.state.compute(ind.history, i); ok {
			ind.points = append(ind.points, domain.Point{Time: bar.Time, Value: v})
		}
	}
	return ind.Series()
}

// ModeFor derives the update mode by comparing bar time with the last seen bar.
func (ind *indicator) ModeFor(bar domain.Candle) UpdateMode {
	if len(ind.history) == 0 {
		return UpdateAppend
	}
	last := ind.history[len(ind.history)-1].Time
	switch {
	case bar.Time == last:
		return UpdateReplaceLast
	case bar.Time > last:
		return UpdateAppend
	default:
		return UpdateRejected
	}
}

func (ind *indicator) Update(bar domain.Candle) (domain.Point, bool) {
	mode := ind.ModeFor(bar)
	switch mode {
	case UpdateRejected:
		return domain.Point{}, false
	case UpdateReplaceLast:
		ind.history[len(ind.history)-1] = bar
	default:
		ind.history = append(ind.history, bar)
		ind.state.grow()
	}

	i := len(ind.history) - 1
	v, ok := ind.state.compute(ind.history, i)
	lastIsBar := len(ind.points) > 0 && ind.points[len(ind.points)-1].Time == bar.Time
	if !ok {
		if lastIsBar {
			ind.points = ind.points[:len(ind.points)-1]
		}
		return domain.Point{}, false
	}

	p := domain.Point{Time: bar.Time, Value: v}
	if lastIsBar {
		ind.points[len(ind.points)-1] = p
	} else {
		ind.points = append(ind.points, p)
	}
	return p, true
}

func (ind *indicator) Series() []domain.Point {
	out := make([]domain.Point, len(ind.points))
	copy(out, ind.points)
	return out
}

func (ind *indicator) Last() (domain.Point, bool) {
	if len(ind.points) == 0 {
		return domain.Point{}, false
	}
	return ind.points[len(ind.points)-1], true
}

// wilder applies Wilder smoothing with factor 1/period.
func wilder(prev, x float64, period int) float64 {
	p := float64(period)
	return (prev*(p-1) + x) / p
}

// trueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
// The first bar has no previous close and uses high-low.
func trueRange(history []domain.Candle, i int) float64 {
	c := history[i]
	hl := c.High - c.Low
	if i == 0 {
		return hl
	}
	pc := history[i-1].Close
	tr := hl
	if v := math.Abs(c.High - pc); v > tr {
		tr = v
	}
	if v := math.Abs(c.Low - pc); v > tr {
		tr = v
	}
	return tr
}
