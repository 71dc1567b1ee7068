package trader

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/barreplay/internal/domain"
)

// Account is a point-in-time view of the ledger valued at a mark price.
type Account struct {
	StartingBalance decimal.Decimal       `json:"starting_balance"`
	Cash            decimal.Decimal       `json:"cash"`
	MarginUsed      decimal.Decimal       `json:"margin_used"`
	Equity          decimal.Decimal       `json:"equity"`
	RealizedPnL     decimal.Decimal       `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal       `json:"unrealized_pnl"`
	Leverage        int                   `json:"leverage"`
	Positions       []domain.Position     `json:"positions"`
	Orders          []domain.PendingOrder `json:"orders"`
	History         []domain.ClosedTrade  `json:"history"`
	Stats           Stats                 `json:"stats"`
}

// Stats summarises the closed-trade history.
type Stats struct {
	Trades  int             `json:"trades"`
	Wins    int             `json:"wins"`
	Losses  int             `json:"losses"`
	WinRate decimal.Decimal `json:"win_rate"`
	Best    decimal.Decimal `json:"best"`
	Worst   decimal.Decimal `json:"worst"`
}

// Cash returns free cash.
func (e *Engine) Cash() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cash
}

// RealizedPnL returns the running sum of closed-trade PnL.
func (e *Engine) RealizedPnL() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.realized
}

// MarginUsed returns the margin committed to open positions.
func (e *Engine) MarginUsed() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.marginUsed()
}

func (e *Engine) marginUsed() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range e.positions {
		sum = sum.Add(p.Margin)
	}
	return sum
}

// UnrealizedPnL values all open positions at mark.
func (e *Engine) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.unrealized(mark)
}

func (e *Engine) unrealized(mark decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range e.positions {
		sum = sum.Add(p.PnL(mark))
	}
	return sum
}

// Equity is cash plus committed margin plus unrealized PnL at mark, which
// equals starting balance + realized + unrealized.
func (e *Engine) Equity(mark decimal.Decimal) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cash.Add(e.marginUsed()).Add(e.unrealized(mark))
}

// Positions returns copies of the open positions in insertion order.
func (e *Engine) Positions() []domain.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.positionsCopy()
}

func (e *Engine) positionsCopy() []domain.Position {
	out := make([]domain.Position, len(e.positions))
	for i, p := range e.positions {
		out[i] = *p
	}
	return out
}

// Orders returns copies of the pending orders in insertion order.
func (e *Engine) Orders() []domain.PendingOrder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ordersCopy()
}

func (e *Engine) ordersCopy() []domain.PendingOrder {
	out := make([]domain.PendingOrder, len(e.orders))
	for i, o := range e.orders {
		out[i] = *o
	}
	return out
}

// History returns the closed trades, oldest first.
func (e *Engine) History() []domain.ClosedTrade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.ClosedTrade, len(e.history))
	copy(out, e.history)
	return out
}

// Snapshot values the whole ledger at mark.
func (e *Engine) Snapshot(mark decimal.Decimal) Account {
	e.mu.RLock()
	defer e.mu.RUnlock()

	margin := e.marginUsed()
	unrealized := e.unrealized(mark)
	history := make([]domain.ClosedTrade, len(e.history))
	copy(history, e.history)

	return Account{
		StartingBalance: e.startingBalance,
		Cash:            e.cash,
		MarginUsed:      margin,
		Equity:          e.cash.Add(margin).Add(unrealized),
		RealizedPnL:     e.realized,
		UnrealizedPnL:   unrealized,
		Leverage:        e.leverage,
		Positions:       e.positionsCopy(),
		Orders:          e.ordersCopy(),
		History:         history,
		Stats:           computeStats(history),
	}
}

func computeStats(history []domain.ClosedTrade) Stats {
	s := Stats{Trades: len(history), WinRate: decimal.Zero, Best: decimal.Zero, Worst: decimal.Zero}
	for i, t := range history {
		switch {
		case t.PnL.IsPositive():
			s.Wins++
		case t.PnL.IsNegative():
			s.Losses++
		}
		if i == 0 || t.PnL.GreaterThan(s.Best) {
			s.Best = t.PnL
		}
		if i == 0 || t.PnL.LessThan(s.Worst) {
			s.Worst = t.PnL
		}
	}
	if s.Trades > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).Div(decimal.NewFromInt(int64(s.Trades)))
	}
	return s
}
