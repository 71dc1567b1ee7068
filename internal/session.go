package internal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/barreplay/config"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/events"
	"github.com/vadiminshakov/barreplay/internal/metrics"
	"github.com/vadiminshakov/barreplay/internal/services/replay"
	"github.com/vadiminshakov/barreplay/internal/services/strategy"
	"github.com/vadiminshakov/barreplay/internal/services/trader"
	"github.com/vadiminshakov/barreplay/internal/storage/prefs"
	"go.uber.org/zap"
)

// ErrNoPrice is returned by market orders before any bar is visible.
var ErrNoPrice = errors.New("no visible bar to price the order")

// Journal records closed trades.
type Journal interface {
	Save(entry domain.JournalEntry) (uint64, error)
}

// Deps are the collaborators of a Session. Nil fields get defaults.
type Deps struct {
	Prefs   *prefs.Prefs
	Journal Journal
	Frames  *events.Broadcaster
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// IndicatorStyle is the user-editable look of an indicator.
type IndicatorStyle struct {
	Color   string `json:"color"`
	Visible bool   `json:"visible"`
}

// Resume is the replay position saved when a session closes.
type Resume struct {
	Clock     int64            `json:"clock"`
	Timeframe domain.Timeframe `json:"timeframe"`
	Speed     float64          `json:"speed"`
	Leverage  int              `json:"leverage"`
}

// Session ties the replay clock, the ledger, the player and the strategy
// together. Every method takes the session lock, so player ticks, web
// requests and CLI commands never interleave.
type Session struct {
	mu sync.Mutex

	id     string
	conf   config.Config
	replay *replay.Engine
	trader *trader.Engine
	player *replay.Player
	eval   *strategy.Evaluator

	prefs   *prefs.Prefs
	journal Journal
	frames  *events.Broadcaster
	metrics *metrics.Metrics
	logger  *zap.Logger

	styles  map[string]IndicatorStyle
	closed  []domain.ClosedTrade
	seq     uint64
	playing bool
	speed   float64
	signal  strategy.Signal
}

// NewSession loads series into a fresh replay and restores saved preferences.
func NewSession(conf config.Config, series map[domain.Timeframe][]domain.Candle, deps Deps) (*Session, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		id:      uuid.NewString(),
		conf:    conf,
		prefs:   deps.Prefs,
		journal: deps.Journal,
		frames:  deps.Frames,
		metrics: deps.Metrics,
		styles:  make(map[string]IndicatorStyle),
		speed:   conf.Speed,
	}
	s.logger = logger.With(zap.String("session", s.id), zap.String("symbol", conf.Symbol))
	if s.prefs == nil {
		s.prefs = prefs.Open(nil, s.logger)
	}
	if s.frames == nil {
		s.frames = events.NewBroadcaster(256)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	eval, err := strategy.NewEvaluator(conf.Strategy)
	if err != nil {
		return nil, errors.Wrap(err, "strategy")
	}
	s.eval = eval

	s.trader, err = trader.NewEngine(conf.StartingBalance,
		trader.WithLogger(s.logger.Named("trader")),
		trader.WithLeverage(conf.Leverage),
		trader.WithHistoryCap(conf.HistoryCap),
		trader.WithHooks(trader.Hooks{
			OnClose: func(t domain.ClosedTrade) { s.closed = append(s.closed, t) },
		}),
	)
	if err != nil {
		return nil, err
	}

	s.replay, err = replay.NewEngine(conf.Indicators,
		replay.WithLogger(s.logger.Named("replay")),
		replay.WithHooks(replay.Hooks{
			OnTransition: func(_ domain.Timeframe, tr replay.Transition) {
				s.metrics.Transitions.WithLabelValues(tr.String()).Inc()
			},
			OnIndicator: func(_ domain.Timeframe, _ string, full bool) {
				s.metrics.ObserveIndicator(full)
			},
		}),
	)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.replay.LoadHistory(series); err != nil {
		return nil, err
	}
	if conf.ActiveTimeframe != "" {
		if err := s.replay.SetActiveTimeframe(conf.ActiveTimeframe); err != nil {
			return nil, err
		}
	}
	s.restoreStylesLocked()
	s.restorePositionLocked()
	s.replay.OnBarsRevealed(s.onReveal)

	s.player = replay.NewPlayer(s.step, conf.StepInterval, s.logger.Named("player"))

	s.logger.Info("session ready",
		zap.String("timeframe", s.replay.ActiveTimeframe().String()),
		zap.Int64("clock", s.replay.Clock()),
		zap.Int("bars", s.replay.Len(s.replay.ActiveTimeframe())))
	s.publishLocked("load", nil)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Symbol returns the replayed symbol.
func (s *Session) Symbol() string { return s.conf.Symbol }

// Frames returns the broadcaster frames are published on.
func (s *Session) Frames() *events.Broadcaster { return s.frames }

// Metrics returns the session collectors.
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

func (s *Session) restoreStylesLocked() {
	enabled := make(map[string]bool)
	for _, d := range s.replay.ActiveIndicators() {
		enabled[d.ID] = true
	}

	for _, def := range s.replay.Definitions() {
		style := IndicatorStyle{Color: def.Color, Visible: enabled[def.ID]}
		var saved IndicatorStyle
		if s.prefs.Get(styleKey(def.ID), &saved) {
			if saved.Color != "" {
				style.Color = saved.Color
			}
			if saved.Visible != style.Visible {
				if _, err := s.replay.ToggleIndicator(def.ID); err == nil {
					style.Visible = saved.Visible
				}
			}
		}
		s.styles[def.ID] = style
	}
}

func (s *Session) restorePositionLocked() {
	if !s.conf.StartAt.IsZero() {
		if err := s.replay.SetStart(s.conf.StartAt.Unix()); err != nil {
			s.logger.Warn("failed to apply configured start", zap.Error(err))
		}
		return
	}

	var saved Resume
	if !s.prefs.Get(resumeKey(s.conf.Symbol), &saved) {
		return
	}
	if saved.Timeframe != "" && saved.Timeframe != s.replay.ActiveTimeframe() {
		if err := s.replay.SetActiveTimeframe(saved.Timeframe); err != nil {
			s.logger.Warn("ignoring saved timeframe", zap.Error(err))
		}
	}
	if saved.Clock > 0 {
		if err := s.replay.SetStart(saved.Clock); err != nil {
			s.logger.Warn("ignoring saved clock", zap.Error(err))
		}
	}
	if saved.Speed > 0 {
		s.speed = saved.Speed
	}
	if saved.Leverage > 0 {
		s.trader.SetLeverage(saved.Leverage)
	}
	s.logger.Info("resumed replay position", zap.Int64("clock", s.replay.Clock()))
}

// onReveal runs under the session lock: every replay mutation is made by a
// session method.
func (s *Session) onReveal(ev replay.RevealEvent) {
	for _, bar := range ev.Revealed {
		res := s.trader.CheckOrders(bar)
		if res.Empty() {
			continue
		}
		for _, f := range res.Fills {
			if f.Executed {
				s.metrics.OrdersFilled.WithLabelValues(string(f.Order.Type)).Inc()
				s.logger.Info("pending order filled",
					zap.Int64("order", f.Order.ID),
					zap.String("side", f.Order.Side.String()),
					zap.String("price", f.Price.String()),
					zap.Int64("bar", bar.Time))
			} else {
				s.metrics.FillsSkipped.Inc()
			}
		}
		for _, t := range res.Triggered {
			s.metrics.Brackets.WithLabelValues(string(t.Reason)).Inc()
			s.logger.Info("bracket triggered",
				zap.Int64("position", t.PositionID),
				zap.String("reason", string(t.Reason)),
				zap.String("price", t.ExitPrice.String()),
				zap.String("pnl", t.PnL.String()))
		}
	}
	s.publishLocked(ev.Transition.String(), ev.Revealed)
}

// step is the player tick.
func (s *Session) step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Ticks.Inc()
	if s.replay.Advance() {
		return true
	}
	s.playing = false
	s.publishLocked("end", nil)
	return false
}

// Step advances one bar of the active timeframe.
func (s *Session) Step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replay.Advance()
}

// Play starts auto-advance at speed; non-positive keeps the current speed.
func (s *Session) Play(speed float64) float64 {
	s.mu.Lock()
	if speed <= 0 {
		speed = s.speed
	}
	s.mu.Unlock()

	// player calls wait for the in-flight tick, which needs the session lock
	s.player.Play(speed)
	applied, playing := s.player.Speed(), s.player.Playing()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing, s.speed = playing, applied
	s.publishLocked("play", nil)
	return applied
}

// Pause stops auto-advance.
func (s *Session) Pause() {
	s.player.Pause()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.publishLocked("pause", nil)
}

// SetSpeed changes the playback speed and returns the clamped value.
func (s *Session) SetSpeed(speed float64) float64 {
	applied := s.player.SetSpeed(speed)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = applied
	s.publishLocked("speed", nil)
	return applied
}

// JumpToIndex moves the clock to candle i of the active timeframe.
func (s *Session) JumpToIndex(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replay.JumpToIndex(i)
}

// JumpToTimestamp moves the clock to the active candle nearest ts.
func (s *Session) JumpToTimestamp(ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replay.JumpToTimestamp(ts)
}

// SetStart starts a fresh training run at ts: the ledger is reset and the
// clock is placed on the bar at or before ts.
func (s *Session) SetStart(ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, ok := s.replay.Bounds(s.replay.ActiveTimeframe()); !ok {
		return replay.ErrNoHistory
	}
	if err := s.trader.Reset(s.conf.StartingBalance); err != nil {
		return err
	}
	s.closed = nil
	return s.replay.SetStart(ts)
}

// SetTimeframe switches the active timeframe.
func (s *Session) SetTimeframe(tf domain.Timeframe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replay.SetActiveTimeframe(tf)
}

// UpdateFormingBar revises the last bar of tf in place.
func (s *Session) UpdateFormingBar(tf domain.Timeframe, candle domain.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replay.ReplaceLastBar(tf, candle)
}

// ToggleIndicator flips an indicator on or off and remembers the choice.
func (s *Session) ToggleIndicator(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	on, err := s.replay.ToggleIndicator(id)
	if err != nil {
		return false, err
	}
	style := s.styles[id]
	style.Visible = on
	s.styles[id] = style
	s.prefs.Set(styleKey(id), style)
	s.publishLocked("indicator", nil)
	return on, nil
}

// SetIndicatorColor overrides the display color of an indicator.
func (s *Session) SetIndicatorColor(id, color string) (IndicatorStyle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	style, ok := s.styles[id]
	if !ok {
		return IndicatorStyle{}, errors.Wrapf(replay.ErrUnknownIndicator, "%q", id)
	}
	style.Color = color
	s.styles[id] = style
	s.prefs.Set(styleKey(id), style)
	return style, nil
}

// IndicatorStyles returns the style of every configured indicator.
func (s *Session) IndicatorStyles() map[string]IndicatorStyle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]IndicatorStyle, len(s.styles))
	for k, v := range s.styles {
		out[k] = v
	}
	return out
}

// Drawings returns the stored drawing state of the symbol, if any.
func (s *Session) Drawings() (json.RawMessage, bool) {
	return s.prefs.Raw(drawingsKey(s.conf.Symbol))
}

// SetDrawings replaces the drawing state of the symbol.
func (s *Session) SetDrawings(raw json.RawMessage) error {
	if !json.Valid(raw) {
		return errors.New("drawings must be valid JSON")
	}
	s.prefs.SetRaw(drawingsKey(s.conf.Symbol), raw)
	return nil
}

// Timeframes lists the loaded timeframes, shortest first.
func (s *Session) Timeframes() []domain.Timeframe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replay.Timeframes()
}

// Candles returns the visible bars of tf.
func (s *Session) Candles(tf domain.Timeframe) ([]domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replay.Len(tf) == 0 {
		return nil, errors.Wrapf(replay.ErrUnknownTimeframe, "%q", tf)
	}
	return s.replay.Visible(tf), nil
}

// Series returns the indicator series of id on tf.
func (s *Session) Series(tf domain.Timeframe, id string) ([]domain.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	points, ok := s.replay.Series(tf, id)
	if !ok {
		return nil, errors.Wrapf(replay.ErrUnknownIndicator, "%q on %s", id, tf)
	}
	return points, nil
}

// markLocked is the close of the latest visible active bar and its time.
func (s *Session) markLocked() (decimal.Decimal, int64, bool) {
	bar, ok := s.replay.LatestBar(s.replay.ActiveTimeframe())
	if !ok {
		return decimal.Zero, 0, false
	}
	return decimal.NewFromFloat(bar.Close), s.replay.Clock(), true
}

// MarketOrder executes at the latest visible close.
func (s *Session) MarketOrder(side domain.PositionSide, size decimal.Decimal, brackets domain.Brackets) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ts, ok := s.markLocked()
	if !ok {
		return false, ErrNoPrice
	}

	var (
		executed bool
		err      error
	)
	switch side {
	case domain.PositionSideLong:
		executed, err = s.trader.MarketBuy(size, price, ts, brackets)
	case domain.PositionSideShort:
		executed, err = s.trader.MarketSell(size, price, ts, brackets)
	default:
		return false, errors.Wrapf(trader.ErrInvalidSide, "%q", side)
	}
	if err != nil {
		return false, err
	}
	s.publishLocked("order", nil)
	return executed, nil
}

// PlaceOrder rests a limit or stop order.
func (s *Session) PlaceOrder(side domain.PositionSide, typ domain.OrderType, price, size decimal.Decimal, brackets domain.Brackets) (domain.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.trader.PlaceOrder(side, typ, price, size, s.replay.Clock(), brackets)
	if err != nil {
		return domain.PendingOrder{}, err
	}
	s.publishLocked("order", nil)
	return order, nil
}

// CancelOrder removes a pending order.
func (s *Session) CancelOrder(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.trader.CancelOrder(id); err != nil {
		return err
	}
	s.publishLocked("order", nil)
	return nil
}

// ClosePosition closes one position at the latest visible close.
func (s *Session) ClosePosition(id int64) (domain.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ts, ok := s.markLocked()
	if !ok {
		return domain.ClosedTrade{}, ErrNoPrice
	}
	trade, err := s.trader.ClosePosition(id, price, ts)
	if err != nil {
		return domain.ClosedTrade{}, err
	}
	s.publishLocked("close", nil)
	return trade, nil
}

// CloseAll closes every open position at the latest visible close.
func (s *Session) CloseAll() ([]domain.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ts, ok := s.markLocked()
	if !ok {
		return nil, ErrNoPrice
	}
	trades, err := s.trader.CloseAllPositions(price, ts)
	if err != nil {
		return nil, err
	}
	s.publishLocked("close", nil)
	return trades, nil
}

// SetStops edits the brackets of an open position.
func (s *Session) SetStops(id int64, brackets domain.Brackets) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.trader.SetPositionStops(id, brackets); err != nil {
		return err
	}
	s.publishLocked("stops", nil)
	return nil
}

// SetLeverage sets the leverage of new positions and returns the clamped value.
func (s *Session) SetLeverage(l int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := s.trader.SetLeverage(l)
	s.publishLocked("leverage", nil)
	return applied
}

// Account returns the ledger valued at the latest visible close.
func (s *Session) Account() trader.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	mark, _, _ := s.markLocked()
	return s.trader.Snapshot(mark)
}

// State builds a frame of the current state without publishing it.
func (s *Session) State() events.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.frameLocked("state", nil)
	return f
}

func (s *Session) exposureLocked() domain.PositionSide {
	positions := s.trader.Positions()
	if len(positions) == 0 {
		return ""
	}
	// netting keeps all open lots on one side
	return positions[0].Side
}

func (s *Session) frameLocked(transition string, revealed []domain.Candle) events.Frame {
	tf := s.replay.ActiveTimeframe()
	mark, _, _ := s.markLocked()

	account := s.trader.Snapshot(mark)
	// history is served by the state endpoint, frames carry the summary only
	account.History = nil

	f := events.Frame{
		SessionID:  s.id,
		Timestamp:  time.Now().UTC(),
		Symbol:     s.conf.Symbol,
		Timeframe:  tf,
		Transition: transition,
		Clock:      s.replay.Clock(),
		Index:      s.replay.Index(),
		Revealed:   revealed,
		Indicators: s.replay.LatestValues(tf),
		Account:    account,
		Playing:    s.playing,
		Speed:      s.speed,
	}
	if bar, ok := s.replay.LatestBar(tf); ok {
		f.Latest = &bar
	}
	sig := s.signal
	f.Signal = &sig
	return f
}

func (s *Session) publishLocked(transition string, revealed []domain.Candle) {
	s.signal = s.eval.Evaluate(s.replay.Visible(s.replay.ActiveTimeframe()), s.exposureLocked())

	s.seq++
	f := s.frameLocked(transition, revealed)
	f.Seq = s.seq

	eq, _ := f.Account.Equity.Float64()
	s.metrics.Equity.Set(eq)
	s.metrics.OpenPositions.Set(float64(len(f.Account.Positions)))
	s.metrics.PendingOrders.Set(float64(len(f.Account.Orders)))
	s.metrics.Clock.Set(float64(f.Clock))

	s.flushJournalLocked(f.Account.Equity)

	dropped := s.frames.Dropped()
	s.frames.Publish(f)
	if d := s.frames.Dropped() - dropped; d > 0 {
		s.metrics.FramesDropped.Add(float64(d))
	}
}

func (s *Session) flushJournalLocked(equity decimal.Decimal) {
	if len(s.closed) == 0 {
		return
	}
	closed := s.closed
	s.closed = nil

	s.metrics.TradesClosed.Add(float64(len(closed)))
	if s.journal == nil {
		return
	}
	for _, t := range closed {
		_, err := s.journal.Save(domain.JournalEntry{
			SessionID: s.id,
			Symbol:    s.conf.Symbol,
			Timeframe: s.replay.ActiveTimeframe(),
			Trade:     t,
			Equity:    equity.String(),
		})
		if err != nil {
			s.logger.Warn("failed to journal closed trade", zap.Int64("position", t.PositionID), zap.Error(err))
		}
	}
}

// Close stops playback and saves the replay position.
func (s *Session) Close() error {
	s.player.Pause()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.playing = false
	s.prefs.Set(resumeKey(s.conf.Symbol), Resume{
		Clock:     s.replay.Clock(),
		Timeframe: s.replay.ActiveTimeframe(),
		Speed:     s.speed,
		Leverage:  s.trader.Leverage(),
	})
	s.logger.Info("session closed", zap.Int64("clock", s.replay.Clock()))
	return nil
}

func styleKey(id string) string        { return fmt.Sprintf("indicator.%s", id) }
func drawingsKey(symbol string) string { return fmt.Sprintf("drawings.%s", symbol) }
func resumeKey(symbol string) string   { return fmt.Sprintf("session.%s", symbol) }
