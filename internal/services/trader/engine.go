// Package trader implements the paper-trading ledger driven by replayed bars:
// leveraged positions with margin accounting, FIFO netting, stop-loss and
// take-profit brackets, and pending limit/stop orders.
package trader

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"go.uber.org/zap"
)

const (
	MinLeverage       = 1
	MaxLeverage       = 25
	DefaultHistoryCap = 500
)

// sizeEpsilon is the remaining size under which a position counts as closed.
var sizeEpsilon = decimal.New(1, -12)

var (
	ErrInvalidSize        = errors.New("size must be greater than zero")
	ErrInvalidPrice       = errors.New("price must be greater than zero")
	ErrInvalidBracket     = errors.New("stop loss and take profit must be positive")
	ErrInvalidSide        = errors.New("side must be long or short")
	ErrInvalidOrderType   = errors.New("order type must be limit or stop")
	ErrInsufficientMargin = errors.New("insufficient cash for margin")
	ErrPositionNotFound   = errors.New("position not found")
	ErrOrderNotFound      = errors.New("order not found")
)

// Hooks lets the owner observe ledger events. Any field may be nil.
type Hooks struct {
	// OnOpen is called after a position is opened.
	OnOpen func(pos domain.Position)
	// OnClose is called for every full or partial close.
	OnClose func(trade domain.ClosedTrade)
	// OnFill is called when a pending order triggers, executed or not.
	OnFill func(order domain.PendingOrder, price decimal.Decimal, executed bool)
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

// WithLeverage sets the initial leverage (clamped).
func WithLeverage(l int) Option {
	return func(e *Engine) { e.leverage = clampLeverage(l) }
}

// WithHistoryCap bounds the closed-trade history.
func WithHistoryCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyCap = n
		}
	}
}

// WithHooks registers ledger event hooks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// Engine owns cash, open positions, pending orders and trade history.
// Positions and orders are kept in insertion order: netting closes the
// oldest opposing lot first.
type Engine struct {
	mu     sync.RWMutex
	logger *zap.Logger
	hooks  Hooks

	startingBalance decimal.Decimal
	cash            decimal.Decimal
	realized        decimal.Decimal
	leverage        int
	historyCap      int

	positions []*domain.Position
	orders    []*domain.PendingOrder
	history   []domain.ClosedTrade

	nextPositionID int64
	nextOrderID    int64
}

// NewEngine creates a ledger holding startingBalance in cash.
func NewEngine(startingBalance decimal.Decimal, opts ...Option) (*Engine, error) {
	if startingBalance.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("starting balance must be positive, got %s", startingBalance)
	}

	e := &Engine{
		logger:     zap.NewNop(),
		leverage:   MinLeverage,
		historyCap: DefaultHistoryCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reset(startingBalance)

	e.logger.Info("trader init",
		zap.String("balance", startingBalance.String()),
		zap.Int("leverage", e.leverage),
		zap.Int("history_cap", e.historyCap))
	return e, nil
}

// Reset discards all positions, orders and history and restores cash.
// Leverage is kept.
func (e *Engine) Reset(startingBalance decimal.Decimal) error {
	if startingBalance.LessThanOrEqual(decimal.Zero) {
		return errors.Errorf("starting balance must be positive, got %s", startingBalance)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset(startingBalance)
	e.logger.Info("ledger reset", zap.String("balance", startingBalance.String()))
	return nil
}

func (e *Engine) reset(balance decimal.Decimal) {
	e.startingBalance = balance
	e.cash = balance
	e.realized = decimal.Zero
	e.positions = nil
	e.orders = nil
	e.history = nil
	e.nextPositionID = 1
	e.nextOrderID = 1
}

func clampLeverage(l int) int {
	if l < MinLeverage {
		return MinLeverage
	}
	if l > MaxLeverage {
		return MaxLeverage
	}
	return l
}

// SetLeverage changes leverage for future entries and returns the clamped value.
// Open positions keep the leverage they were opened with.
func (e *Engine) SetLeverage(l int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leverage = clampLeverage(l)
	return e.leverage
}

// Leverage returns the leverage applied to new entries.
func (e *Engine) Leverage() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leverage
}

// MarketBuy nets size against open shorts, then opens a long with the rest.
// It reports whether anything executed.
func (e *Engine) MarketBuy(size, price decimal.Decimal, ts int64, brackets domain.Brackets) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.market(domain.PositionSideLong, size, price, ts, brackets)
}

// MarketSell nets size against open longs, then opens a short with the rest.
// It reports whether anything executed.
func (e *Engine) MarketSell(size, price decimal.Decimal, ts int64, brackets domain.Brackets) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.market(domain.PositionSideShort, size, price, ts, brackets)
}

func validateEntry(size, price decimal.Decimal, brackets domain.Brackets) error {
	if size.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidSize
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidPrice
	}
	if err := brackets.Validate(); err != nil {
		return errors.Wrap(ErrInvalidBracket, err.Error())
	}
	return nil
}

// market executes one market order. Any size left after netting opens a new
// position only if cash covers its full margin; otherwise it is dropped.
func (e *Engine) market(side domain.PositionSide, size, price decimal.Decimal, ts int64, brackets domain.Brackets) (bool, error) {
	if err := validateEntry(size, price, brackets); err != nil {
		return false, err
	}

	remaining, netted := e.net(side, size, price, ts)
	if remaining.LessThanOrEqual(sizeEpsilon) {
		return netted, nil
	}

	margin := domain.RequiredMargin(remaining, price, e.leverage)
	if e.cash.LessThan(margin) {
		if netted {
			e.logger.Warn("dropping leftover size after netting: insufficient cash",
				zap.String("side", side.String()),
				zap.String("leftover", remaining.String()),
				zap.String("margin", margin.String()),
				zap.String("cash", e.cash.String()))
			return true, nil
		}
		return false, errors.Wrapf(ErrInsufficientMargin, "need %s have %s", margin, e.cash)
	}

	pos, err := domain.NewPosition(e.nextPositionID, side, remaining, price, ts, e.leverage, brackets)
	if err != nil {
		return netted, err
	}
	e.nextPositionID++
	e.cash = e.cash.Sub(pos.Margin)
	e.positions = append(e.positions, pos)

	e.logger.Info("position opened",
		zap.Int64("id", pos.ID),
		zap.String("side", side.String()),
		zap.String("size", pos.Size.String()),
		zap.String("price", price.String()),
		zap.String("margin", pos.Margin.String()),
		zap.Int("leverage", pos.Leverage))
	if e.hooks.OnOpen != nil {
		e.hooks.OnOpen(*pos)
	}
	return true, nil
}

// net closes opposing positions oldest first until size is used up.
func (e *Engine) net(side domain.PositionSide, size, price decimal.Decimal, ts int64) (decimal.Decimal, bool) {
	remaining := size
	netted := false
	opposite := side.Opposite()

	kept := e.positions[:0:0]
	for _, pos := range e.positions {
		if pos.Side != opposite || remaining.LessThanOrEqual(sizeEpsilon) {
			kept = append(kept, pos)
			continue
		}
		closeSize := decimal.Min(remaining, pos.Size)
		e.closePart(pos, closeSize, price, ts, domain.CloseReasonNetting)
		remaining = remaining.Sub(closeSize)
		netted = true
		if pos.Size.GreaterThan(sizeEpsilon) {
			kept = append(kept, pos)
		}
	}
	e.positions = kept
	return remaining, netted
}

// closePart realizes PnL on size units of pos and releases the matching share
// of its margin. The caller removes pos once its size reaches zero.
func (e *Engine) closePart(pos *domain.Position, size, price decimal.Decimal, ts int64, reason domain.CloseReason) domain.ClosedTrade {
	released := pos.Margin
	if size.LessThan(pos.Size) {
		released = pos.Margin.Mul(size).Div(pos.Size)
	}
	pnl := pos.PnLFor(size, price)

	e.cash = e.cash.Add(released).Add(pnl)
	e.realized = e.realized.Add(pnl)
	pos.Size = pos.Size.Sub(size)
	pos.Margin = pos.Margin.Sub(released)

	trade := domain.ClosedTrade{
		PositionID:      pos.ID,
		Side:            pos.Side,
		Size:            size,
		EntryPrice:      pos.EntryPrice,
		EntryTime:       pos.EntryTime,
		ExitPrice:       price,
		ExitTime:        ts,
		Margin:          released,
		Leverage:        pos.Leverage,
		StopLoss:        pos.StopLoss,
		TakeProfit:      pos.TakeProfit,
		PnL:             pnl,
		DurationSeconds: ts - pos.EntryTime,
		RiskReward:      domain.Brackets{StopLoss: pos.StopLoss, TakeProfit: pos.TakeProfit}.RiskReward(pos.EntryPrice),
		Reason:          reason,
	}
	e.appendHistory(trade)

	e.logger.Info("position closed",
		zap.Int64("id", pos.ID),
		zap.String("side", pos.Side.String()),
		zap.String("size", size.String()),
		zap.String("exit", price.String()),
		zap.String("pnl", pnl.String()),
		zap.String("reason", string(reason)))
	if e.hooks.OnClose != nil {
		e.hooks.OnClose(trade)
	}
	return trade
}

func (e *Engine) appendHistory(trade domain.ClosedTrade) {
	e.history = append(e.history, trade)
	if over := len(e.history) - e.historyCap; over > 0 {
		e.history = append(e.history[:0:0], e.history[over:]...)
	}
}

// ClosePosition closes the full remaining size of one position.
func (e *Engine) ClosePosition(id int64, price decimal.Decimal, ts int64) (domain.ClosedTrade, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return domain.ClosedTrade{}, ErrInvalidPrice
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.positionIndex(id)
	if idx < 0 {
		return domain.ClosedTrade{}, errors.Wrapf(ErrPositionNotFound, "id %d", id)
	}
	return e.closeAt(idx, price, ts, domain.CloseReasonManual), nil
}

// closeAt fully closes positions[idx] and removes it preserving order.
func (e *Engine) closeAt(idx int, price decimal.Decimal, ts int64, reason domain.CloseReason) domain.ClosedTrade {
	pos := e.positions[idx]
	trade := e.closePart(pos, pos.Size, price, ts, reason)
	e.positions = append(e.positions[:idx:idx], e.positions[idx+1:]...)
	return trade
}

// CloseAllPositions closes every long, then every short, at price.
func (e *Engine) CloseAllPositions(price decimal.Decimal, ts int64) ([]domain.ClosedTrade, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidPrice
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var trades []domain.ClosedTrade
	for _, side := range []domain.PositionSide{domain.PositionSideLong, domain.PositionSideShort} {
		for i := 0; i < len(e.positions); {
			if e.positions[i].Side != side {
				i++
				continue
			}
			trades = append(trades, e.closeAt(i, price, ts, domain.CloseReasonCloseAll))
		}
	}
	return trades, nil
}

// SetPositionStops replaces the bracket of an open position. Zero clears a level.
func (e *Engine) SetPositionStops(id int64, brackets domain.Brackets) error {
	if err := brackets.Validate(); err != nil {
		return errors.Wrap(ErrInvalidBracket, err.Error())
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.positionIndex(id)
	if idx < 0 {
		return errors.Wrapf(ErrPositionNotFound, "id %d", id)
	}
	e.positions[idx].StopLoss = brackets.StopLoss
	e.positions[idx].TakeProfit = brackets.TakeProfit
	return nil
}

func (e *Engine) positionIndex(id int64) int {
	for i, p := range e.positions {
		if p.ID == id {
			return i
		}
	}
	return -1
}
