// Package strategy turns indicator readings into trade recommendations.
// It never executes trades.
package strategy

import (
	"fmt"

	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/services/market/indicators"
	ta "github.com/vadiminshakov/barreplay/pkg/indicators"
)

// Thresholds configure the evaluator.
type Thresholds struct {
	FastPeriod    int     `yaml:"fast_period" json:"fast_period"`
	SlowPeriod    int     `yaml:"slow_period" json:"slow_period"`
	RSIPeriod     int     `yaml:"rsi_period" json:"rsi_period"`
	RSIOverbought float64 `yaml:"rsi_overbought" json:"rsi_overbought"`
	RSIOversold   float64 `yaml:"rsi_oversold" json:"rsi_oversold"`
	ADXPeriod     int     `yaml:"adx_period" json:"adx_period"`
	ADXMin        float64 `yaml:"adx_min" json:"adx_min"`
	// UseMACD requires the MACD histogram to agree with an entry.
	UseMACD bool `yaml:"use_macd" json:"use_macd"`
	// Lookback caps how many recent candles are read.
	Lookback int `yaml:"lookback" json:"lookback"`
}

// DefaultThresholds returns the EMA 9/21 crossover with RSI 14 and ADX 14 filters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FastPeriod:    9,
		SlowPeriod:    21,
		RSIPeriod:     14,
		RSIOverbought: 70,
		RSIOversold:   30,
		ADXPeriod:     14,
		ADXMin:        20,
		UseMACD:       true,
		Lookback:      300,
	}
}

// Validate checks periods and bounds.
func (t Thresholds) Validate() error {
	if t.FastPeriod <= 0 || t.SlowPeriod <= t.FastPeriod {
		return fmt.Errorf("fast period must be positive and below slow period, got %d/%d", t.FastPeriod, t.SlowPeriod)
	}
	if t.RSIPeriod <= 0 || t.ADXPeriod <= 0 {
		return fmt.Errorf("rsi and adx periods must be positive")
	}
	if t.RSIOversold >= t.RSIOverbought {
		return fmt.Errorf("rsi oversold %.2f must be below overbought %.2f", t.RSIOversold, t.RSIOverbought)
	}
	if t.Lookback < 0 {
		return fmt.Errorf("lookback must not be negative")
	}
	return nil
}

// Readings are the indicator values behind a signal.
type Readings struct {
	FastEMA    float64 `json:"fast_ema"`
	SlowEMA    float64 `json:"slow_ema"`
	RSI        float64 `json:"rsi"`
	ADX        float64 `json:"adx"`
	HasADX     bool    `json:"has_adx"`
	MACDHist   float64 `json:"macd_hist"`
	HasMACD    bool    `json:"has_macd"`
	CrossUp    bool    `json:"cross_up"`
	CrossDown  bool    `json:"cross_down"`
	LastClose  float64 `json:"last_close"`
	BarsUsed   int     `json:"bars_used"`
	Timestamp  int64   `json:"timestamp"`
	TrendReady bool    `json:"trend_ready"`
}

// Signal is a recommendation with its reason.
type Signal struct {
	Recommendation domain.Recommendation `json:"recommendation"`
	Reason         string                `json:"reason"`
	Readings       Readings              `json:"readings"`
}

// Evaluator is stateless: every call recomputes from the candles it is given.
type Evaluator struct {
	th Thresholds
}

// NewEvaluator creates an evaluator.
func NewEvaluator(th Thresholds) (*Evaluator, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{th: th}, nil
}

// Thresholds returns the configuration.
func (e *Evaluator) Thresholds() Thresholds { return e.th }

// Evaluate recommends an action for the latest candle. exposure is the side
// currently held, or empty when flat.
func (e *Evaluator) Evaluate(candles []domain.Candle, exposure domain.PositionSide) Signal {
	if e.th.Lookback > 0 && len(candles) > e.th.Lookback {
		candles = candles[len(candles)-e.th.Lookback:]
	}
	if len(candles) < e.th.SlowPeriod+1 || len(candles) < e.th.RSIPeriod+1 {
		return Signal{Recommendation: domain.RecommendNone, Reason: "warming up"}
	}

	r := e.read(candles)

	switch exposure {
	case domain.PositionSideLong:
		if r.CrossDown {
			return Signal{domain.RecommendCloseLong, "fast EMA crossed below slow EMA", r}
		}
		if r.RSI >= e.th.RSIOverbought {
			return Signal{domain.RecommendCloseLong, fmt.Sprintf("RSI %.1f overbought", r.RSI), r}
		}
		return Signal{domain.RecommendNone, "holding long", r}
	case domain.PositionSideShort:
		if r.CrossUp {
			return Signal{domain.RecommendCloseShort, "fast EMA crossed above slow EMA", r}
		}
		if r.RSI <= e.th.RSIOversold {
			return Signal{domain.RecommendCloseShort, fmt.Sprintf("RSI %.1f oversold", r.RSI), r}
		}
		return Signal{domain.RecommendNone, "holding short", r}
	}

	if r.HasADX && r.ADX < e.th.ADXMin {
		return Signal{domain.RecommendNone, fmt.Sprintf("ADX %.1f below %.1f", r.ADX, e.th.ADXMin), r}
	}
	if e.th.ADXMin > 0 && !r.HasADX {
		return Signal{domain.RecommendNone, "trend strength unknown", r}
	}

	switch {
	case r.CrossUp && r.RSI < e.th.RSIOverbought && e.macdAgrees(r, 1):
		return Signal{domain.RecommendBuy, "bullish EMA crossover", r}
	case r.CrossDown && r.RSI > e.th.RSIOversold && e.macdAgrees(r, -1):
		return Signal{domain.RecommendSell, "bearish EMA crossover", r}
	}
	return Signal{domain.RecommendNone, "no setup", r}
}

func (e *Evaluator) macdAgrees(r Readings, dir float64) bool {
	if !e.th.UseMACD || !r.HasMACD {
		return true
	}
	return r.MACDHist*dir > 0
}

func (e *Evaluator) read(candles []domain.Candle) Readings {
	last := candles[len(candles)-1]
	r := Readings{LastClose: last.Close, BarsUsed: len(candles), Timestamp: last.Time}

	fast := lastTwo(indicators.MustNew(domain.IndicatorDefinition{
		ID: "fast", Kind: domain.IndicatorEMA, Period: e.th.FastPeriod,
	}).Calculate(candles))
	slow := lastTwo(indicators.MustNew(domain.IndicatorDefinition{
		ID: "slow", Kind: domain.IndicatorEMA, Period: e.th.SlowPeriod,
	}).Calculate(candles))
	if len(fast) == 2 && len(slow) == 2 {
		r.FastEMA, r.SlowEMA = fast[1], slow[1]
		r.CrossUp = fast[0] <= slow[0] && fast[1] > slow[1]
		r.CrossDown = fast[0] >= slow[0] && fast[1] < slow[1]
		r.TrendReady = true
	}

	if rsi := indicators.MustNew(domain.IndicatorDefinition{
		ID: "rsi", Kind: domain.IndicatorRSI, Period: e.th.RSIPeriod,
	}).Calculate(candles); len(rsi) > 0 {
		r.RSI = rsi[len(rsi)-1].Value
	}

	if adx := indicators.MustNew(domain.IndicatorDefinition{
		ID: "adx", Kind: domain.IndicatorADX, Period: e.th.ADXPeriod,
	}).Calculate(candles); len(adx) > 0 {
		r.ADX, r.HasADX = adx[len(adx)-1].Value, true
	}

	if e.th.UseMACD {
		closes := make([]float64, len(candles))
		for i, c := range candles {
			closes[i] = c.Close
		}
		if res, err := ta.CalculateMACD(closes, ta.DefaultMACDFast, ta.DefaultMACDSlow, ta.DefaultMACDSignal); err == nil {
			r.MACDHist, r.HasMACD = res.Last()
		}
	}
	return r
}

func lastTwo(points []domain.Point) []float64 {
	if len(points) < 2 {
		return nil
	}
	return []float64{points[len(points)-2].Value, points[len(points)-1].Value}
}
