// Package indicators wraps github.com/cinar/indicator for one-shot batch
// calculations that the streaming engine does not provide (MACD).
package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// MACD default periods.
const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACDResult holds tail-aligned MACD, signal and histogram series.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// Last returns the newest histogram value.
func (r MACDResult) Last() (float64, bool) {
	if len(r.Histogram) == 0 {
		return 0, false
	}
	return r.Histogram[len(r.Histogram)-1], true
}

// CalculateMACD computes MACD over closes. The MACD and signal outputs are
// aligned on their newest values since their warm-up lengths differ.
func CalculateMACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return MACDResult{}, fmt.Errorf("invalid MACD periods %d/%d/%d", fast, slow, signal)
	}
	if need := slow + signal; len(closes) < need {
		return MACDResult{}, fmt.Errorf("not enough data points for MACD: need %d, got %d", need, len(closes))
	}

	macd := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdChan, signalChan := macd.Compute(helper.SliceToChan(closes))

	// both outputs must be drained concurrently or Compute blocks
	signalDone := make(chan []float64, 1)
	go func() {
		signalDone <- helper.ChanToSlice(signalChan)
	}()
	macdValues := helper.ChanToSlice(macdChan)
	signalValues := <-signalDone

	n := len(macdValues)
	if len(signalValues) < n {
		n = len(signalValues)
	}
	if n == 0 {
		return MACDResult{}, fmt.Errorf("MACD produced no values for %d closes", len(closes))
	}

	res := MACDResult{
		MACD:      append([]float64(nil), macdValues[len(macdValues)-n:]...),
		Signal:    append([]float64(nil), signalValues[len(signalValues)-n:]...),
		Histogram: make([]float64, n),
	}
	for i := range res.Histogram {
		res.Histogram[i] = res.MACD[i] - res.Signal[i]
	}
	return res, nil
}
