package replay

import (
	"github.com/vadiminshakov/barreplay/internal/domain"
)

// Clock returns the replay clock in unix seconds.
func (e *Engine) Clock() int64 { return e.clock }

// ActiveTimeframe returns the timeframe driving the clock.
func (e *Engine) ActiveTimeframe() domain.Timeframe { return e.active }

// Timeframes returns the loaded timeframes, shortest first.
func (e *Engine) Timeframes() []domain.Timeframe {
	return append([]domain.Timeframe(nil), e.timeframes...)
}

// Index returns the index of the last visible candle of the active
// timeframe, or -1 when nothing is visible.
func (e *Engine) Index() int {
	return e.visibleLen[e.active] - 1
}

// Len returns the full history length of tf.
func (e *Engine) Len(tf domain.Timeframe) int {
	return len(e.history[tf])
}

// Bounds returns the first and last candle times of tf.
func (e *Engine) Bounds(tf domain.Timeframe) (first, last int64, ok bool) {
	candles := e.history[tf]
	if len(candles) == 0 {
		return 0, 0, false
	}
	return candles[0].Time, candles[len(candles)-1].Time, true
}

// Visible returns a copy of the candles of tf visible at the clock.
func (e *Engine) Visible(tf domain.Timeframe) []domain.Candle {
	n := e.visibleLen[tf]
	out := make([]domain.Candle, n)
	copy(out, e.history[tf][:n])
	return out
}

// LatestBar returns the last visible candle of tf.
func (e *Engine) LatestBar(tf domain.Timeframe) (domain.Candle, bool) {
	n := e.visibleLen[tf]
	if n == 0 {
		return domain.Candle{}, false
	}
	return e.history[tf][n-1], true
}

// Definitions returns every configured indicator.
func (e *Engine) Definitions() []domain.IndicatorDefinition {
	return append([]domain.IndicatorDefinition(nil), e.defs...)
}

// ActiveIndicators returns the enabled indicators in configuration order.
func (e *Engine) ActiveIndicators() []domain.IndicatorDefinition {
	var out []domain.IndicatorDefinition
	for _, d := range e.defs {
		if e.enabled[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// Series returns the indicator series of id on tf. ok is false when the
// indicator is inactive or unknown.
func (e *Engine) Series(tf domain.Timeframe, id string) ([]domain.Point, bool) {
	calc, ok := e.instances[tf][id]
	if !ok {
		return nil, false
	}
	return calc.Series(), true
}

// LatestValues returns the newest point of every active indicator on tf that
// has emitted one.
func (e *Engine) LatestValues(tf domain.Timeframe) map[string]domain.Point {
	out := make(map[string]domain.Point, len(e.instances[tf]))
	for id, calc := range e.instances[tf] {
		if p, ok := calc.Last(); ok {
			out[id] = p
		}
	}
	return out
}
