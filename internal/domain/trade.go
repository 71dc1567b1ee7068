package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes pending limit orders from pending stop orders.
type OrderType string

const (
	OrderTypeLimit OrderType = "limit"
	OrderTypeStop  OrderType = "stop"
)

// IsValid checks if the order type is known.
func (o OrderType) IsValid() bool {
	return o == OrderTypeLimit || o == OrderTypeStop
}

// PendingOrder waits for a bar whose range crosses Price.
// It reserves no margin until filled.
type PendingOrder struct {
	ID          int64           `json:"id"`
	Side        PositionSide    `json:"side"`
	Type        OrderType       `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Size        decimal.Decimal `json:"size"`
	CreatedTime int64           `json:"created_time"`
	Brackets    Brackets        `json:"brackets"`
}

// String returns a human-readable string representation.
func (o *PendingOrder) String() string {
	return fmt.Sprintf("#%d %s %s %s @ %s", o.ID, o.Side, o.Type, o.Size.String(), o.Price.String())
}

// CloseReason records why a position (or part of it) was closed.
type CloseReason string

const (
	CloseReasonManual     CloseReason = "manual"
	CloseReasonNetting    CloseReason = "netting"
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
	CloseReasonCloseAll   CloseReason = "close_all"
)

// ClosedTrade is an immutable snapshot of a fully or partially closed position.
type ClosedTrade struct {
	PositionID      int64           `json:"position_id"`
	Side            PositionSide    `json:"side"`
	Size            decimal.Decimal `json:"size"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	EntryTime       int64           `json:"entry_time"`
	ExitPrice       decimal.Decimal `json:"exit_price"`
	ExitTime        int64           `json:"exit_time"`
	Margin          decimal.Decimal `json:"margin"`
	Leverage        int             `json:"leverage"`
	StopLoss        decimal.Decimal `json:"stop_loss"`
	TakeProfit      decimal.Decimal `json:"take_profit"`
	PnL             decimal.Decimal `json:"pnl"`
	DurationSeconds int64           `json:"duration_seconds"`
	RiskReward      decimal.Decimal `json:"risk_reward"`
	Reason          CloseReason     `json:"reason"`
}

// String returns a human-readable string representation.
func (t *ClosedTrade) String() string {
	return fmt.Sprintf("#%d %s %s %s->%s pnl=%s (%s)", t.PositionID, t.Side, t.Size.String(),
		t.EntryPrice.String(), t.ExitPrice.String(), t.PnL.String(), t.Reason)
}
