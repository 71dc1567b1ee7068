package domain

import (
	"fmt"
	"math"
)

// SourceField selects which OHLC price an indicator reads.
type SourceField string

const (
	SourceOpen  SourceField = "open"
	SourceHigh  SourceField = "high"
	SourceLow   SourceField = "low"
	SourceClose SourceField = "close"
)

// IsValid checks if the SourceField value is valid.
func (s SourceField) IsValid() bool {
	switch s {
	case SourceOpen, SourceHigh, SourceLow, SourceClose:
		return true
	}
	return false
}

// Candle is one OHLCV bar. Time is the bar open time in unix seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Validate checks low <= min(open,close) <= max(open,close) <= high and volume >= 0.
func (c Candle) Validate() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("candle %d has non-finite value", c.Time)
		}
	}
	lo := math.Min(c.Open, c.Close)
	hi := math.Max(c.Open, c.Close)
	if c.Low > lo || hi > c.High {
		return fmt.Errorf("candle %d violates low<=body<=high (o=%v h=%v l=%v c=%v)",
			c.Time, c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle %d has negative volume %v", c.Time, c.Volume)
	}
	return nil
}

// Bullish reports whether the bar closed at or above its open.
func (c Candle) Bullish() bool {
	return c.Close >= c.Open
}

// Field returns the price selected by src. Unknown sources read the close.
func (c Candle) Field(src SourceField) float64 {
	switch src {
	case SourceOpen:
		return c.Open
	case SourceHigh:
		return c.High
	case SourceLow:
		return c.Low
	default:
		return c.Close
	}
}

// SameOHLCV reports whether two bars carry identical values.
func (c Candle) SameOHLCV(o Candle) bool {
	return c.Time == o.Time && c.Open == o.Open && c.High == o.High &&
		c.Low == o.Low && c.Close == o.Close && c.Volume == o.Volume
}
