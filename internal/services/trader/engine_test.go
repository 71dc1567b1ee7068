package trader

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func newEngine(t *testing.T, balance string, leverage int, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop()), WithLeverage(leverage)}, opts...)
	e, err := NewEngine(dec(balance), opts...)
	require.NoError(t, err)
	return e
}

func TestEngine_LongRoundTrip(t *testing.T) {
	e := newEngine(t, "10000", 5)

	executed, err := e.MarketBuy(dec("2"), dec("100"), 0, domain.Brackets{})
	require.NoError(t, err)
	require.True(t, executed)

	assertDecimal(t, "9960", e.Cash())
	positions := e.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, domain.PositionSideLong, positions[0].Side)
	assertDecimal(t, "2", positions[0].Size)
	assertDecimal(t, "100", positions[0].EntryPrice)
	assertDecimal(t, "40", positions[0].Margin)

	executed, err = e.MarketSell(dec("2"), dec("110"), 100, domain.Brackets{})
	require.NoError(t, err)
	require.True(t, executed)

	assertDecimal(t, "10020", e.Cash())
	assertDecimal(t, "20", e.RealizedPnL())
	assert.Empty(t, e.Positions())

	history := e.History()
	require.Len(t, history, 1)
	assertDecimal(t, "20", history[0].PnL)
	assert.Equal(t, int64(100), history[0].DurationSeconds)
	assert.Equal(t, domain.CloseReasonNetting, history[0].Reason)
}

func TestEngine_InvalidOrdersDoNotMutate(t *testing.T) {
	e := newEngine(t, "1000", 1)

	cases := []struct {
		name     string
		size     string
		price    string
		brackets domain.Brackets
		err      error
	}{
		{"zero size", "0", "100", domain.Brackets{}, ErrInvalidSize},
		{"negative size", "-1", "100", domain.Brackets{}, ErrInvalidSize},
		{"zero price", "1", "0", domain.Brackets{}, ErrInvalidPrice},
		{"negative stop", "1", "100", domain.Brackets{StopLoss: dec("-5")}, ErrInvalidBracket},
		{"insufficient margin", "11", "100", domain.Brackets{}, ErrInsufficientMargin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			executed, err := e.MarketBuy(dec(tc.size), dec(tc.price), 0, tc.brackets)
			assert.False(t, executed)
			assert.ErrorIs(t, err, tc.err)
			assertDecimal(t, "1000", e.Cash())
			assert.Empty(t, e.Positions())
		})
	}
}

func TestEngine_FIFONetting(t *testing.T) {
	e := newEngine(t, "10000", 1)

	_, err := e.MarketSell(dec("1"), dec("100"), 0, domain.Brackets{})
	require.NoError(t, err)
	_, err = e.MarketSell(dec("1"), dec("110"), 60, domain.Brackets{})
	require.NoError(t, err)
	assertDecimal(t, "9790", e.Cash())

	executed, err := e.MarketBuy(dec("1.5"), dec("105"), 120, domain.Brackets{})
	require.NoError(t, err)
	require.True(t, executed)

	positions := e.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, int64(2), positions[0].ID, "oldest short is netted first")
	assertDecimal(t, "0.5", positions[0].Size)
	assertDecimal(t, "55", positions[0].Margin)

	history := e.History()
	require.Len(t, history, 2)
	assertDecimal(t, "-5", history[0].PnL)
	assertDecimal(t, "2.5", history[1].PnL)
	assertDecimal(t, "-2.5", e.RealizedPnL())
	assertDecimal(t, "9942.5", e.Cash())
}

func TestEngine_LeftoverDroppedWhenCashShort(t *testing.T) {
	e := newEngine(t, "10000", 1)

	_, err := e.MarketSell(dec("50"), dec("100"), 0, domain.Brackets{})
	require.NoError(t, err)
	assertDecimal(t, "5000", e.Cash())

	// nets 50, the 150 leftover would need 15000 of margin
	executed, err := e.MarketBuy(dec("200"), dec("100"), 60, domain.Brackets{})
	require.NoError(t, err)
	assert.True(t, executed)
	assert.Empty(t, e.Positions())
	assertDecimal(t, "10000", e.Cash())
}

func TestEngine_NettingFlipsSide(t *testing.T) {
	e := newEngine(t, "10000", 2)

	_, err := e.MarketBuy(dec("1"), dec("100"), 0, domain.Brackets{})
	require.NoError(t, err)
	_, err = e.MarketSell(dec("3"), dec("90"), 60, domain.Brackets{})
	require.NoError(t, err)

	positions := e.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, domain.PositionSideShort, positions[0].Side)
	assertDecimal(t, "2", positions[0].Size)
	assertDecimal(t, "90", positions[0].Margin)
	assertDecimal(t, "-10", e.RealizedPnL())
}

func TestEngine_StopsTriggerOrdering(t *testing.T) {
	brackets := domain.Brackets{StopLoss: dec("95"), TakeProfit: dec("110")}

	t.Run("bearish bar checks take profit first", func(t *testing.T) {
		e := newEngine(t, "10000", 1)
		_, err := e.MarketBuy(dec("1"), dec("100"), 0, brackets)
		require.NoError(t, err)

		res := e.CheckOrders(domain.Candle{Time: 60, Open: 105, High: 112, Low: 90, Close: 102})
		require.Len(t, res.Triggered, 1)
		assert.Equal(t, domain.CloseReasonTakeProfit, res.Triggered[0].Reason)
		assertDecimal(t, "110", res.Triggered[0].ExitPrice)
		assertDecimal(t, "2", res.Triggered[0].RiskReward)
		assert.Empty(t, e.Positions())
	})

	t.Run("bullish bar checks stop loss first", func(t *testing.T) {
		e := newEngine(t, "10000", 1)
		_, err := e.MarketBuy(dec("1"), dec("100"), 0, brackets)
		require.NoError(t, err)

		res := e.CheckOrders(domain.Candle{Time: 60, Open: 98, High: 112, Low: 90, Close: 108})
		require.Len(t, res.Triggered, 1)
		assert.Equal(t, domain.CloseReasonStopLoss, res.Triggered[0].Reason)
		assertDecimal(t, "95", res.Triggered[0].ExitPrice)
		assertDecimal(t, "-5", e.RealizedPnL())
	})

	t.Run("short mirrors the order", func(t *testing.T) {
		e := newEngine(t, "10000", 1)
		_, err := e.MarketSell(dec("1"), dec("100"), 0, domain.Brackets{StopLoss: dec("105"), TakeProfit: dec("90")})
		require.NoError(t, err)

		res := e.CheckOrders(domain.Candle{Time: 60, Open: 100, High: 106, Low: 89, Close: 104})
		require.Len(t, res.Triggered, 1)
		assert.Equal(t, domain.CloseReasonTakeProfit, res.Triggered[0].Reason)
		assertDecimal(t, "10", e.RealizedPnL())
	})

	t.Run("untouched bar keeps the position", func(t *testing.T) {
		e := newEngine(t, "10000", 1)
		_, err := e.MarketBuy(dec("1"), dec("100"), 0, brackets)
		require.NoError(t, err)

		res := e.CheckOrders(domain.Candle{Time: 60, Open: 100, High: 105, Low: 97, Close: 101})
		assert.True(t, res.Empty())
		assert.Len(t, e.Positions(), 1)
	})
}

func TestEngine_PendingOrders(t *testing.T) {
	t.Run("stop order gaps to the open", func(t *testing.T) {
		e := newEngine(t, "10000", 1)
		_, err := e.PlaceOrder(domain.PositionSideLong, domain.OrderTypeStop, dec("100"), dec("1"), 0, domain.Brackets{})
		require.NoError(t, err)
		assertDecimal(t, "10000", e.Cash(), "pending orders reserve nothing")

		res := e.CheckOrders(domain.Candle{Time: 60, Open: 105, High: 108, Low: 104, Close: 107})
		require.Len(t, res.Fills, 1)
		assert.True(t, res.Fills[0].Executed)
		assertDecimal(t, "105", res.Fills[0].Price)

		positions := e.Positions()
		require.Len(t, positions, 1)
		assertDecimal(t, "105", positions[0].EntryPrice)
		assert.Empty(t, e.Orders())
	})

	t.Run("fill price per side and type", func(t *testing.T) {
		bar := domain.Candle{Time: 60, Open: 100, High: 110, Low: 90, Close: 105}
		cases := []struct {
			side  domain.PositionSide
			typ   domain.OrderType
			price string
			want  string
			fill  bool
		}{
			{domain.PositionSideLong, domain.OrderTypeLimit, "95", "95", true},
			{domain.PositionSideLong, domain.OrderTypeLimit, "102", "100", true},
			{domain.PositionSideLong, domain.OrderTypeLimit, "85", "", false},
			{domain.PositionSideLong, domain.OrderTypeStop, "108", "108", true},
			{domain.PositionSideLong, domain.OrderTypeStop, "98", "100", true},
			{domain.PositionSideLong, domain.OrderTypeStop, "111", "", false},
			{domain.PositionSideShort, domain.OrderTypeLimit, "108", "108", true},
			{domain.PositionSideShort, domain.OrderTypeLimit, "98", "100", true},
			{domain.PositionSideShort, domain.OrderTypeStop, "92", "92", true},
			{domain.PositionSideShort, domain.OrderTypeStop, "103", "100", true},
			{domain.PositionSideShort, domain.OrderTypeStop, "89", "", false},
		}
		for _, tc := range cases {
			o := &domain.PendingOrder{Side: tc.side, Type: tc.typ, Price: dec(tc.price), Size: dec("1")}
			price, ok := fillPrice(o, bar)
			require.Equal(t, tc.fill, ok, o.String())
			if ok {
				assertDecimal(t, tc.want, price, o.String())
			}
		}
	})

	t.Run("filled order brackets are checked on the same bar", func(t *testing.T) {
		e := newEngine(t, "10000", 1)
		_, err := e.PlaceOrder(domain.PositionSideLong, domain.OrderTypeLimit, dec("100"), dec("1"), 0,
			domain.Brackets{StopLoss: dec("92")})
		require.NoError(t, err)

		res := e.CheckOrders(domain.Candle{Time: 60, Open: 104, High: 105, Low: 90, Close: 91})
		require.Len(t, res.Fills, 1)
		require.Len(t, res.Triggered, 1)
		assertDecimal(t, "-8", e.RealizedPnL())
	})

	t.Run("insufficient margin consumes the order", func(t *testing.T) {
		e := newEngine(t, "100", 1)
		_, err := e.PlaceOrder(domain.PositionSideShort, domain.OrderTypeLimit, dec("100"), dec("5"), 0, domain.Brackets{})
		require.NoError(t, err)

		res := e.CheckOrders(domain.Candle{Time: 60, Open: 99, High: 101, Low: 98, Close: 100})
		require.Len(t, res.Fills, 1)
		assert.False(t, res.Fills[0].Executed)
		assert.Empty(t, e.Orders())
		assert.Empty(t, e.Positions())
		assertDecimal(t, "100", e.Cash())
	})

	t.Run("cancel", func(t *testing.T) {
		e := newEngine(t, "10000", 1)
		o, err := e.PlaceOrder(domain.PositionSideLong, domain.OrderTypeLimit, dec("90"), dec("1"), 0, domain.Brackets{})
		require.NoError(t, err)
		require.NoError(t, e.CancelOrder(o.ID))
		assert.ErrorIs(t, e.CancelOrder(o.ID), ErrOrderNotFound)
		assert.Empty(t, e.Orders())
	})

	t.Run("validation", func(t *testing.T) {
		e := newEngine(t, "10000", 1)
		_, err := e.PlaceOrder("sideways", domain.OrderTypeLimit, dec("90"), dec("1"), 0, domain.Brackets{})
		assert.ErrorIs(t, err, ErrInvalidSide)
		_, err = e.PlaceOrder(domain.PositionSideLong, "market", dec("90"), dec("1"), 0, domain.Brackets{})
		assert.ErrorIs(t, err, ErrInvalidOrderType)
		_, err = e.PlaceOrder(domain.PositionSideLong, domain.OrderTypeStop, dec("0"), dec("1"), 0, domain.Brackets{})
		assert.ErrorIs(t, err, ErrInvalidPrice)
		assert.Empty(t, e.Orders())
	})
}

func TestEngine_LeverageClampedAndFrozenPerPosition(t *testing.T) {
	e := newEngine(t, "10000", 10)
	assert.Equal(t, 25, e.SetLeverage(100))
	assert.Equal(t, 1, e.SetLeverage(0))
	e.SetLeverage(10)

	_, err := e.MarketBuy(dec("10"), dec("100"), 0, domain.Brackets{})
	require.NoError(t, err)
	e.SetLeverage(2)

	positions := e.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, 10, positions[0].Leverage)
	assertDecimal(t, "100", positions[0].Margin)
	assert.Equal(t, 2, e.Leverage())
}

func TestEngine_CloseAndStops(t *testing.T) {
	e := newEngine(t, "10000", 1)
	_, err := e.MarketBuy(dec("1"), dec("100"), 0, domain.Brackets{})
	require.NoError(t, err)
	_, err = e.MarketBuy(dec("2"), dec("101"), 60, domain.Brackets{})
	require.NoError(t, err)

	positions := e.Positions()
	require.Len(t, positions, 2)

	require.NoError(t, e.SetPositionStops(positions[1].ID, domain.Brackets{TakeProfit: dec("120")}))
	assert.ErrorIs(t, e.SetPositionStops(99, domain.Brackets{}), ErrPositionNotFound)
	assert.ErrorIs(t, e.SetPositionStops(positions[1].ID, domain.Brackets{StopLoss: dec("-1")}), ErrInvalidBracket)

	trade, err := e.ClosePosition(positions[0].ID, dec("105"), 120)
	require.NoError(t, err)
	assert.Equal(t, domain.CloseReasonManual, trade.Reason)
	assertDecimal(t, "5", trade.PnL)

	_, err = e.ClosePosition(positions[0].ID, dec("105"), 120)
	assert.ErrorIs(t, err, ErrPositionNotFound)

	trades, err := e.CloseAllPositions(dec("100"), 180)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assertDecimal(t, "120", trades[0].TakeProfit)
	assert.Equal(t, domain.CloseReasonCloseAll, trades[0].Reason)
	assert.Empty(t, e.Positions())
	assertDecimal(t, "10003", e.Cash())
}

func TestEngine_HistoryCap(t *testing.T) {
	e := newEngine(t, "10000", 1, WithHistoryCap(2))
	for i := 0; i < 3; i++ {
		_, err := e.MarketBuy(dec("1"), dec("100"), int64(i*120), domain.Brackets{})
		require.NoError(t, err)
		_, err = e.MarketSell(dec("1"), decimal.NewFromInt(int64(101+i)), int64(i*120+60), domain.Brackets{})
		require.NoError(t, err)
	}

	history := e.History()
	require.Len(t, history, 2)
	assertDecimal(t, "2", history[0].PnL)
	assertDecimal(t, "3", history[1].PnL)
	assertDecimal(t, "6", e.RealizedPnL(), "realized pnl keeps evicted trades")
}

func TestEngine_LedgerConservation(t *testing.T) {
	e := newEngine(t, "10000", 3)
	start := dec("10000")

	steps := []func() error{
		func() error { _, err := e.MarketBuy(dec("5"), dec("100"), 0, domain.Brackets{}); return err },
		func() error { _, err := e.MarketBuy(dec("3"), dec("104"), 60, domain.Brackets{}); return err },
		func() error { _, err := e.MarketSell(dec("6"), dec("99"), 120, domain.Brackets{}); return err },
		func() error { _, err := e.MarketSell(dec("4.5"), dec("97.3"), 180, domain.Brackets{}); return err },
		func() error { e.SetLeverage(7); return nil },
		func() error { _, err := e.MarketBuy(dec("1.25"), dec("101.7"), 240, domain.Brackets{}); return err },
		func() error { _, err := e.MarketBuy(dec("8"), dec("95"), 300, domain.Brackets{}); return err },
		func() error { _, err := e.CloseAllPositions(dec("96.5"), 360); return err },
	}

	marks := []decimal.Decimal{dec("90"), dec("100"), dec("111.11")}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)

		snap := e.Snapshot(dec("100"))
		assert.True(t, snap.Cash.Add(snap.MarginUsed).Equal(start.Add(snap.RealizedPnL)), "step %d", i)
		for _, mark := range marks {
			want := start.Add(e.RealizedPnL()).Add(e.UnrealizedPnL(mark))
			assert.True(t, e.Equity(mark).Equal(want), "step %d mark %s", i, mark)
		}
	}
}

func TestEngine_SnapshotStatsAndReset(t *testing.T) {
	var opened, closed int
	e := newEngine(t, "1000", 1, WithHooks(Hooks{
		OnOpen:  func(domain.Position) { opened++ },
		OnClose: func(domain.ClosedTrade) { closed++ },
	}))

	_, _ = e.MarketBuy(dec("1"), dec("100"), 0, domain.Brackets{})
	_, _ = e.MarketSell(dec("1"), dec("110"), 60, domain.Brackets{})
	_, _ = e.MarketBuy(dec("1"), dec("100"), 120, domain.Brackets{})
	_, _ = e.MarketSell(dec("1"), dec("95"), 180, domain.Brackets{})
	_, _ = e.MarketBuy(dec("2"), dec("100"), 240, domain.Brackets{})

	snap := e.Snapshot(dec("101"))
	assert.Equal(t, 3, opened)
	assert.Equal(t, 2, closed)
	assert.Equal(t, 2, snap.Stats.Trades)
	assert.Equal(t, 1, snap.Stats.Wins)
	assert.Equal(t, 1, snap.Stats.Losses)
	assertDecimal(t, "0.5", snap.Stats.WinRate)
	assertDecimal(t, "10", snap.Stats.Best)
	assertDecimal(t, "-5", snap.Stats.Worst)
	assertDecimal(t, "2", snap.UnrealizedPnL)
	assertDecimal(t, "1007", snap.Equity)
	assertDecimal(t, "200", snap.MarginUsed)

	require.NoError(t, e.Reset(dec("500")))
	snap = e.Snapshot(dec("101"))
	assertDecimal(t, "500", snap.Cash)
	assert.Empty(t, snap.Positions)
	assert.Empty(t, snap.History)
	assert.Error(t, e.Reset(decimal.Zero))
}
