// Package replay owns the virtual clock of a bar replay and the projection of
// full candle history onto the slices visible at that clock.
package replay

import (
	"github.com/pkg/errors"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/services/market/indicators"
	"go.uber.org/zap"
)

var (
	ErrNoHistory        = errors.New("no candle history loaded")
	ErrUnknownTimeframe = errors.New("unknown timeframe")
	ErrUnknownIndicator = errors.New("unknown indicator")
)

// RevealEvent describes a clock change on the active timeframe.
// Revealed holds the bars that became visible moving forward, oldest first.
type RevealEvent struct {
	Timeframe  domain.Timeframe
	Transition Transition
	Clock      int64
	Revealed   []domain.Candle
}

// Hooks lets the owner observe recomputation. Any field may be nil.
type Hooks struct {
	// OnTransition is called for every timeframe on every recompute.
	OnTransition func(tf domain.Timeframe, tr Transition)
	// OnIndicator is called per indicator instance; full is false for incremental updates.
	OnIndicator func(tf domain.Timeframe, id string, full bool)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHooks registers recompute hooks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// Engine drives the replay clock and the per-timeframe indicator instances.
// It is not safe for concurrent use; the session serializes access.
type Engine struct {
	logger *zap.Logger
	hooks  Hooks

	history    map[domain.Timeframe][]domain.Candle
	timeframes []domain.Timeframe
	active     domain.Timeframe
	clock      int64

	visibleLen  map[domain.Timeframe]int
	lastVisible map[domain.Timeframe]domain.Candle

	defs      []domain.IndicatorDefinition
	enabled   map[string]bool
	instances map[domain.Timeframe]map[string]indicators.Calculator

	listeners []func(RevealEvent)
}

// NewEngine validates indicator definitions and creates an empty engine.
// Definitions marked Visible start active.
func NewEngine(defs []domain.IndicatorDefinition, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:      zap.NewNop(),
		history:     make(map[domain.Timeframe][]domain.Candle),
		visibleLen:  make(map[domain.Timeframe]int),
		lastVisible: make(map[domain.Timeframe]domain.Candle),
		enabled:     make(map[string]bool),
		instances:   make(map[domain.Timeframe]map[string]indicators.Calculator),
	}
	for _, opt := range opts {
		opt(e)
	}

	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[def.ID]; dup {
			return nil, errors.Errorf("duplicate indicator id %q", def.ID)
		}
		// fail fast on kinds the calculator factory cannot build
		if _, err := indicators.New(def); err != nil {
			return nil, err
		}
		seen[def.ID] = struct{}{}
		e.defs = append(e.defs, def)
		if def.Visible {
			e.enabled[def.ID] = true
		}
	}
	return e, nil
}

// OnBarsRevealed registers a listener for active-timeframe clock changes.
func (e *Engine) OnBarsRevealed(fn func(RevealEvent)) {
	e.listeners = append(e.listeners, fn)
}

// LoadHistory replaces all history, parks the clock on the last candle of the
// active timeframe and recomputes everything from scratch. The candles must
// already be ascending and deduplicated.
func (e *Engine) LoadHistory(series map[domain.Timeframe][]domain.Candle) error {
	history := make(map[domain.Timeframe][]domain.Candle, len(series))
	var tfs []domain.Timeframe
	for tf, candles := range series {
		if !tf.IsValid() {
			return errors.Wrapf(ErrUnknownTimeframe, "%q", tf)
		}
		if len(candles) == 0 {
			continue
		}
		cp := make([]domain.Candle, len(candles))
		copy(cp, candles)
		history[tf] = cp
		tfs = append(tfs, tf)
	}
	if len(tfs) == 0 {
		return ErrNoHistory
	}
	domain.SortTimeframes(tfs)

	e.history = history
	e.timeframes = tfs
	if _, ok := history[e.active]; !ok {
		e.active = tfs[0]
	}
	active := history[e.active]
	e.clock = active[len(active)-1].Time

	e.visibleLen = make(map[domain.Timeframe]int, len(tfs))
	e.lastVisible = make(map[domain.Timeframe]domain.Candle, len(tfs))
	e.instances = make(map[domain.Timeframe]map[string]indicators.Calculator, len(tfs))
	for _, tf := range tfs {
		e.instances[tf] = make(map[string]indicators.Calculator)
		for id := range e.enabled {
			e.instances[tf][id] = e.newCalculator(id)
		}
	}

	e.logger.Info("history loaded",
		zap.Int("timeframes", len(tfs)),
		zap.String("active", e.active.String()),
		zap.Int64("clock", e.clock))
	e.recompute(true)
	return nil
}

// Advance moves the clock forward by one native interval of the active
// timeframe. It returns false, leaving the clock untouched, when that would
// pass the last candle.
func (e *Engine) Advance() bool {
	candles := e.history[e.active]
	if len(candles) == 0 {
		return false
	}
	next := e.clock + e.active.Seconds()
	if next > candles[len(candles)-1].Time {
		return false
	}
	e.clock = next
	e.recompute(false)
	return true
}

// JumpToIndex sets the clock to the time of candle i of the active timeframe.
// Out-of-range indexes clamp.
func (e *Engine) JumpToIndex(i int) error {
	candles := e.history[e.active]
	if len(candles) == 0 {
		return ErrNoHistory
	}
	if i < 0 {
		i = 0
	}
	if i >= len(candles) {
		i = len(candles) - 1
	}
	e.clock = candles[i].Time
	e.recompute(false)
	return nil
}

// JumpToTimestamp sets the clock to the time of the active candle closest to
// ts, the earlier one on a tie.
func (e *Engine) JumpToTimestamp(ts int64) error {
	candles := e.history[e.active]
	if len(candles) == 0 {
		return ErrNoHistory
	}
	e.clock = candles[nearestIndex(candles, ts)].Time
	e.recompute(false)
	return nil
}

// SetStart positions the clock on the rightmost active candle at or before ts
// (clamped to the first one) and forces a full recompute.
func (e *Engine) SetStart(ts int64) error {
	candles := e.history[e.active]
	if len(candles) == 0 {
		return ErrNoHistory
	}
	e.clock = candles[floorIndex(candles, ts)].Time
	e.logger.Info("replay start set", zap.Int64("clock", e.clock))
	e.recompute(true)
	return nil
}

// SetActiveTimeframe switches the timeframe that drives stepping and the
// index scrubber, clamping the clock into its range.
func (e *Engine) SetActiveTimeframe(tf domain.Timeframe) error {
	candles, ok := e.history[tf]
	if !ok {
		return errors.Wrapf(ErrUnknownTimeframe, "%q", tf)
	}
	e.active = tf
	if first := candles[0].Time; e.clock < first {
		e.clock = first
	}
	if last := candles[len(candles)-1].Time; e.clock > last {
		e.clock = last
	}
	e.recompute(false)
	return nil
}

// ToggleIndicator activates or deactivates an indicator on every timeframe and
// returns the new state. Activation computes a fresh instance over the
// visible slice; deactivation drops all state.
func (e *Engine) ToggleIndicator(id string) (bool, error) {
	if _, ok := e.definition(id); !ok {
		return false, errors.Wrapf(ErrUnknownIndicator, "%q", id)
	}

	if e.enabled[id] {
		delete(e.enabled, id)
		for _, inst := range e.instances {
			delete(inst, id)
		}
		e.logger.Debug("indicator disabled", zap.String("id", id))
		return false, nil
	}

	e.enabled[id] = true
	for _, tf := range e.timeframes {
		calc := e.newCalculator(id)
		calc.Calculate(e.history[tf][:e.visibleLen[tf]])
		e.instances[tf][id] = calc
		if e.hooks.OnIndicator != nil {
			e.hooks.OnIndicator(tf, id, true)
		}
	}
	e.logger.Debug("indicator enabled", zap.String("id", id))
	return true, nil
}

// ReplaceLastBar revises the bar of tf sharing candle.Time, modelling a
// still-forming bar. Indicators take the incremental path when it is the last
// visible bar.
func (e *Engine) ReplaceLastBar(tf domain.Timeframe, candle domain.Candle) error {
	candles, ok := e.history[tf]
	if !ok {
		return errors.Wrapf(ErrUnknownTimeframe, "%q", tf)
	}
	if err := candle.Validate(); err != nil {
		return err
	}
	idx := len(candles) - 1
	if candles[idx].Time != candle.Time {
		return errors.Errorf("bar %d is not the last bar of %s", candle.Time, tf)
	}
	candles[idx] = candle

	// a bar beyond the clock is picked up when it becomes visible
	if idx == e.visibleLen[tf]-1 {
		e.recompute(false)
	}
	return nil
}

func (e *Engine) definition(id string) (domain.IndicatorDefinition, bool) {
	for _, d := range e.defs {
		if d.ID == id {
			return d, true
		}
	}
	return domain.IndicatorDefinition{}, false
}

func (e *Engine) newCalculator(id string) indicators.Calculator {
	def, _ := e.definition(id)
	return indicators.MustNew(def)
}

// recompute re-derives every visible slice from the clock and routes each
// indicator instance to a full or incremental recomputation.
func (e *Engine) recompute(force bool) {
	var event *RevealEvent

	for _, tf := range e.timeframes {
		candles := e.history[tf]
		prev := e.visibleLen[tf]
		n := visibleCount(candles, e.clock)
		lastChanged := n > 0 && n == prev && !candles[n-1].SameOHLCV(e.lastVisible[tf])

		tr := Classify(prev, n, lastChanged)
		if force && tr != TransitionEmpty {
			tr = TransitionReset
		}

		visible := candles[:n]
		for id, calc := range e.instances[tf] {
			switch tr {
			case TransitionEmpty:
				calc.Reset()
			case TransitionStep:
				calc.Update(visible[n-1])
			case TransitionJump, TransitionReset:
				calc.Calculate(visible)
			default:
				continue
			}
			if e.hooks.OnIndicator != nil {
				e.hooks.OnIndicator(tf, id, tr != TransitionStep)
			}
		}

		e.visibleLen[tf] = n
		if n > 0 {
			e.lastVisible[tf] = candles[n-1]
		} else {
			delete(e.lastVisible, tf)
		}
		if e.hooks.OnTransition != nil {
			e.hooks.OnTransition(tf, tr)
		}

		if tf == e.active {
			ev := RevealEvent{Timeframe: tf, Transition: tr, Clock: e.clock}
			if !force && n > prev {
				ev.Revealed = append([]domain.Candle(nil), candles[prev:n]...)
			}
			event = &ev
		}
	}

	if event != nil {
		e.logger.Debug("replay transition",
			zap.String("timeframe", event.Timeframe.String()),
			zap.String("transition", event.Transition.String()),
			zap.Int64("clock", event.Clock),
			zap.Int("revealed", len(event.Revealed)))
		for _, fn := range e.listeners {
			fn(*event)
		}
	}
}
