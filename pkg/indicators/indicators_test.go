package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateMACD(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	res, err := CalculateMACD(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	require.NoError(t, err)
	require.NotEmpty(t, res.Histogram)
	assert.Len(t, res.MACD, len(res.Histogram))
	assert.Len(t, res.Signal, len(res.Histogram))

	// a steady uptrend keeps the fast average above the slow one
	for _, v := range res.MACD {
		assert.Greater(t, v, 0.0)
	}
	_, ok := res.Last()
	assert.True(t, ok)
}

func TestCalculateMACD_Errors(t *testing.T) {
	_, err := CalculateMACD(make([]float64, 10), 12, 26, 9)
	assert.Error(t, err)

	_, err = CalculateMACD(make([]float64, 100), 26, 12, 9)
	assert.Error(t, err)

	_, ok := MACDResult{}.Last()
	assert.False(t, ok)
}
