package trader

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/barreplay/internal/domain"
)

// Fill describes a pending order that triggered on a bar.
type Fill struct {
	Order    domain.PendingOrder `json:"order"`
	Price    decimal.Decimal     `json:"price"`
	Executed bool                `json:"executed"`
}

// CheckResult is everything one bar did to the ledger.
type CheckResult struct {
	Fills     []Fill               `json:"fills,omitempty"`
	Triggered []domain.ClosedTrade `json:"triggered,omitempty"`
}

// Empty reports whether the bar changed nothing.
func (r CheckResult) Empty() bool {
	return len(r.Fills) == 0 && len(r.Triggered) == 0
}

// CheckOrders applies one newly revealed bar: pending orders first, then the
// stop-loss/take-profit brackets of every open position, including positions
// the pending fills just opened.
func (e *Engine) CheckOrders(bar domain.Candle) CheckResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res CheckResult
	res.Fills = e.fillOrders(bar)

	for i := 0; i < len(e.positions); {
		price, reason, ok := bracketTrigger(e.positions[i], bar)
		if !ok {
			i++
			continue
		}
		res.Triggered = append(res.Triggered, e.closeAt(i, price, bar.Time, reason))
	}
	return res
}

// bracketTrigger returns the first bracket level the bar hits, if any.
// The bar direction approximates the intrabar path: a bullish bar is assumed
// to visit its low before its high, a bearish bar the reverse.
func bracketTrigger(pos *domain.Position, bar domain.Candle) (decimal.Decimal, domain.CloseReason, bool) {
	long := pos.Side == domain.PositionSideLong

	slHit := func() bool {
		if !pos.HasStopLoss() {
			return false
		}
		sl, _ := pos.StopLoss.Float64()
		if long {
			return bar.Low <= sl
		}
		return bar.High >= sl
	}
	tpHit := func() bool {
		if !pos.HasTakeProfit() {
			return false
		}
		tp, _ := pos.TakeProfit.Float64()
		if long {
			return bar.High >= tp
		}
		return bar.Low <= tp
	}

	// long on a bullish bar, or short on a bearish one, meets the stop first
	stopFirst := long == bar.Bullish()
	if stopFirst {
		if slHit() {
			return pos.StopLoss, domain.CloseReasonStopLoss, true
		}
		if tpHit() {
			return pos.TakeProfit, domain.CloseReasonTakeProfit, true
		}
		return decimal.Zero, "", false
	}
	if tpHit() {
		return pos.TakeProfit, domain.CloseReasonTakeProfit, true
	}
	if slHit() {
		return pos.StopLoss, domain.CloseReasonStopLoss, true
	}
	return decimal.Zero, "", false
}
