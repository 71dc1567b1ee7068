package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPosition_Margin(t *testing.T) {
	pos, err := NewPosition(1, PositionSideLong, decimal.NewFromInt(2), decimal.NewFromInt(100), 0, 5, Brackets{})
	require.NoError(t, err)
	assert.True(t, pos.Margin.Equal(decimal.NewFromInt(40)), "margin=%s", pos.Margin)
	assert.False(t, pos.HasStopLoss())
	assert.False(t, pos.HasTakeProfit())
}

func TestNewPosition_Invalid(t *testing.T) {
	_, err := NewPosition(1, PositionSideLong, decimal.Zero, decimal.NewFromInt(100), 0, 1, Brackets{})
	assert.Error(t, err)
	_, err = NewPosition(1, PositionSideShort, decimal.NewFromInt(1), decimal.Zero, 0, 1, Brackets{})
	assert.Error(t, err)
	_, err = NewPosition(1, PositionSide("flat"), decimal.NewFromInt(1), decimal.NewFromInt(1), 0, 1, Brackets{})
	assert.Error(t, err)
}

func TestPosition_PnL(t *testing.T) {
	tests := []struct {
		name     string
		side     PositionSide
		mark     int64
		expected int64
	}{
		{name: "Long, price up", side: PositionSideLong, mark: 110, expected: 20},
		{name: "Long, price down", side: PositionSideLong, mark: 95, expected: -10},
		{name: "Short, price down", side: PositionSideShort, mark: 90, expected: 20},
		{name: "Short, price up", side: PositionSideShort, mark: 105, expected: -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := NewPosition(1, tt.side, decimal.NewFromInt(2), decimal.NewFromInt(100), 0, 1, Brackets{})
			require.NoError(t, err)
			got := pos.PnL(decimal.NewFromInt(tt.mark))
			assert.True(t, got.Equal(decimal.NewFromInt(tt.expected)), "got %s", got)
		})
	}
}

func TestBrackets_RiskReward(t *testing.T) {
	b := Brackets{StopLoss: decimal.NewFromInt(95), TakeProfit: decimal.NewFromInt(110)}
	assert.True(t, b.RiskReward(decimal.NewFromInt(100)).Equal(decimal.NewFromInt(2)))
	assert.True(t, Brackets{TakeProfit: decimal.NewFromInt(110)}.RiskReward(decimal.NewFromInt(100)).IsZero())
	assert.Error(t, Brackets{StopLoss: decimal.NewFromInt(-1)}.Validate())
}

func TestCandle_Validate(t *testing.T) {
	ok := Candle{Time: 1, Open: 10, High: 12, Low: 9, Close: 11, Volume: 3}
	assert.NoError(t, ok.Validate())
	assert.True(t, ok.Bullish())

	bad := Candle{Time: 2, Open: 10, High: 10.5, Low: 9, Close: 11}
	assert.Error(t, bad.Validate())

	negVol := Candle{Time: 3, Open: 10, High: 10, Low: 10, Close: 10, Volume: -1}
	assert.Error(t, negVol.Validate())

	assert.Equal(t, 12.0, ok.Field(SourceHigh))
	assert.Equal(t, 11.0, ok.Field(""))
}

func TestTimeframe_Parse(t *testing.T) {
	tf, err := ParseTimeframe(" 1h ")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), tf.Seconds())

	_, err = ParseTimeframe("7m")
	assert.Error(t, err)

	tfs := []Timeframe{"1d", "15m", "1h"}
	SortTimeframes(tfs)
	assert.Equal(t, []Timeframe{"15m", "1h", "1d"}, tfs)
}

func TestIndicatorDefinition_Validate(t *testing.T) {
	def := IndicatorDefinition{ID: "rsi14", Kind: IndicatorRSI, Period: 14}
	require.NoError(t, def.Validate())
	assert.Equal(t, SourceClose, def.Source)
	assert.Equal(t, "RSI(14)", def.Label())

	bad := IndicatorDefinition{ID: "x", Kind: "macd", Period: 3}
	assert.Error(t, bad.Validate())

	zero := IndicatorDefinition{ID: "y", Kind: IndicatorSMA}
	assert.Error(t, zero.Validate())
}
