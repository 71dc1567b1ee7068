package trader

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"go.uber.org/zap"
)

// PlaceOrder queues a pending limit or stop order. No margin is reserved
// until it fills.
func (e *Engine) PlaceOrder(side domain.PositionSide, typ domain.OrderType, price, size decimal.Decimal, ts int64, brackets domain.Brackets) (domain.PendingOrder, error) {
	if !side.IsValid() {
		return domain.PendingOrder{}, ErrInvalidSide
	}
	if !typ.IsValid() {
		return domain.PendingOrder{}, ErrInvalidOrderType
	}
	if err := validateEntry(size, price, brackets); err != nil {
		return domain.PendingOrder{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	order := &domain.PendingOrder{
		ID:          e.nextOrderID,
		Side:        side,
		Type:        typ,
		Price:       price,
		Size:        size,
		CreatedTime: ts,
		Brackets:    brackets,
	}
	e.nextOrderID++
	e.orders = append(e.orders, order)

	e.logger.Info("order placed", zap.String("order", order.String()))
	return *order, nil
}

// CancelOrder removes a pending order.
func (e *Engine) CancelOrder(id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, o := range e.orders {
		if o.ID == id {
			e.orders = append(e.orders[:i:i], e.orders[i+1:]...)
			e.logger.Info("order cancelled", zap.Int64("id", id))
			return nil
		}
	}
	return errors.Wrapf(ErrOrderNotFound, "id %d", id)
}

// fillPrice reports whether bar crosses the order and at which price it fills.
// When the bar opens beyond the order level the fill happens at the open.
func fillPrice(o *domain.PendingOrder, bar domain.Candle) (decimal.Decimal, bool) {
	p, _ := o.Price.Float64()

	var triggered, gapped bool
	switch {
	case o.Side == domain.PositionSideLong && o.Type == domain.OrderTypeLimit:
		triggered, gapped = bar.Low <= p, bar.Open <= p
	case o.Side == domain.PositionSideLong && o.Type == domain.OrderTypeStop:
		triggered, gapped = bar.High >= p, bar.Open >= p
	case o.Side == domain.PositionSideShort && o.Type == domain.OrderTypeLimit:
		triggered, gapped = bar.High >= p, bar.Open >= p
	case o.Side == domain.PositionSideShort && o.Type == domain.OrderTypeStop:
		triggered, gapped = bar.Low <= p, bar.Open <= p
	}

	if !triggered {
		return decimal.Zero, false
	}
	if gapped {
		return decimal.NewFromFloat(bar.Open), true
	}
	return o.Price, true
}

// fillOrders resolves pending orders against bar in insertion order.
// A triggered order is consumed even when it cannot execute.
func (e *Engine) fillOrders(bar domain.Candle) []Fill {
	var (
		fills []Fill
		kept  = e.orders[:0:0]
	)
	for _, o := range e.orders {
		price, ok := fillPrice(o, bar)
		if !ok {
			kept = append(kept, o)
			continue
		}

		executed, err := e.market(o.Side, o.Size, price, bar.Time, o.Brackets)
		if err != nil {
			e.logger.Warn("pending order triggered but not executed",
				zap.String("order", o.String()),
				zap.String("price", price.String()),
				zap.Error(err))
		} else {
			e.logger.Info("pending order filled",
				zap.String("order", o.String()),
				zap.String("price", price.String()))
		}

		fills = append(fills, Fill{Order: *o, Price: price, Executed: executed})
		if e.hooks.OnFill != nil {
			e.hooks.OnFill(*o, price, executed)
		}
	}
	e.orders = kept
	return fills
}
