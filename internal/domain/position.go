package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PositionSide represents the direction of a trading position
type PositionSide string

const (
	// PositionSideLong represents a long position (buy to open)
	PositionSideLong PositionSide = "long"
	// PositionSideShort represents a short position (sell to open)
	PositionSideShort PositionSide = "short"
)

// IsValid checks if the side is long or short.
func (s PositionSide) IsValid() bool {
	return s == PositionSideLong || s == PositionSideShort
}

// Direction returns +1 for long and -1 for short.
func (s PositionSide) Direction() decimal.Decimal {
	if s == PositionSideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Opposite returns the other side.
func (s PositionSide) Opposite() PositionSide {
	if s == PositionSideShort {
		return PositionSideLong
	}
	return PositionSideShort
}

// String returns the string representation.
func (s PositionSide) String() string {
	return string(s)
}

// Position represents an open leveraged position.
// StopLoss and TakeProfit are zero when unset.
type Position struct {
	ID         int64           `json:"id"`
	Side       PositionSide    `json:"side"`
	Size       decimal.Decimal `json:"size"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	EntryTime  int64           `json:"entry_time"`
	Margin     decimal.Decimal `json:"margin"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Leverage   int             `json:"leverage"`
}

// NewPosition constructs a position and commits size*price/leverage as margin.
func NewPosition(id int64, side PositionSide, size, entryPrice decimal.Decimal, entryTime int64, leverage int, brackets Brackets) (*Position, error) {
	if !side.IsValid() {
		return nil, errors.Errorf("invalid position side %q", side)
	}
	if size.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("position size must be greater than zero")
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry price must be greater than zero")
	}
	if leverage < 1 {
		leverage = 1
	}

	return &Position{
		ID:         id,
		Side:       side,
		Size:       size,
		EntryPrice: entryPrice,
		EntryTime:  entryTime,
		Margin:     RequiredMargin(size, entryPrice, leverage),
		StopLoss:   brackets.StopLoss,
		TakeProfit: brackets.TakeProfit,
		Leverage:   leverage,
	}, nil
}

// RequiredMargin returns size*price/leverage.
func RequiredMargin(size, price decimal.Decimal, leverage int) decimal.Decimal {
	if leverage < 1 {
		leverage = 1
	}
	return size.Mul(price).Div(decimal.NewFromInt(int64(leverage)))
}

// PnL calculates profit and loss of the whole remaining size at the given mark price.
func (p *Position) PnL(mark decimal.Decimal) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.PnLFor(p.Size, mark)
}

// PnLFor calculates profit and loss for a part of the position.
func (p *Position) PnLFor(size, mark decimal.Decimal) decimal.Decimal {
	// long: (mark - entry) * size, short: (entry - mark) * size
	return mark.Sub(p.EntryPrice).Mul(size).Mul(p.Side.Direction())
}

// HasStopLoss reports whether a stop-loss level is attached.
func (p *Position) HasStopLoss() bool {
	return p.StopLoss.GreaterThan(decimal.Zero)
}

// HasTakeProfit reports whether a take-profit level is attached.
func (p *Position) HasTakeProfit() bool {
	return p.TakeProfit.GreaterThan(decimal.Zero)
}

// Brackets is an optional stop-loss/take-profit pair. Zero means unset.
type Brackets struct {
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
}

// Validate rejects negative levels. Zero leaves a level unset.
func (b Brackets) Validate() error {
	if b.StopLoss.IsNegative() {
		return errors.Errorf("stop loss must be positive, got %s", b.StopLoss)
	}
	if b.TakeProfit.IsNegative() {
		return errors.Errorf("take profit must be positive, got %s", b.TakeProfit)
	}
	return nil
}

// RiskReward returns |tp-entry| / |entry-sl|, or zero when either level is unset.
func (b Brackets) RiskReward(entry decimal.Decimal) decimal.Decimal {
	if !b.StopLoss.IsPositive() || !b.TakeProfit.IsPositive() {
		return decimal.Zero
	}
	risk := entry.Sub(b.StopLoss).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	return b.TakeProfit.Sub(entry).Abs().Div(risk)
}
