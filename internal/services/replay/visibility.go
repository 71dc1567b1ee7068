package replay

import (
	"sort"

	"github.com/vadiminshakov/barreplay/internal/domain"
)

// Transition classifies how a visible slice changed between two clock values.
type Transition int

const (
	// TransitionNone means nothing visible changed.
	TransitionNone Transition = iota
	// TransitionStep is exactly one new bar, or the last bar revised in place.
	TransitionStep
	// TransitionJump is more than one new bar.
	TransitionJump
	// TransitionReset is a shrinking slice or a forced full recompute.
	TransitionReset
	// TransitionEmpty is a slice with no bars.
	TransitionEmpty
)

// String returns a human-readable representation.
func (t Transition) String() string {
	switch t {
	case TransitionStep:
		return "step"
	case TransitionJump:
		return "jump"
	case TransitionReset:
		return "reset"
	case TransitionEmpty:
		return "empty"
	default:
		return "none"
	}
}

// Full reports whether indicators must recompute over the whole slice.
func (t Transition) Full() bool {
	return t == TransitionJump || t == TransitionReset
}

// Classify maps previous and new visible lengths to a transition.
// lastChanged tells whether the last bar was revised while the length stayed the same.
func Classify(prevLen, newLen int, lastChanged bool) Transition {
	switch {
	case newLen == 0:
		return TransitionEmpty
	case newLen < prevLen:
		return TransitionReset
	case newLen-prevLen > 1:
		return TransitionJump
	case newLen-prevLen == 1:
		return TransitionStep
	case lastChanged:
		return TransitionStep
	default:
		return TransitionNone
	}
}

// visibleCount returns how many candles have time <= clock.
// candles must be ascending by time.
func visibleCount(candles []domain.Candle, clock int64) int {
	return sort.Search(len(candles), func(i int) bool {
		return candles[i].Time > clock
	})
}

// floorIndex returns the index of the rightmost candle with time <= ts,
// clamped to the first candle. It returns -1 for an empty series.
func floorIndex(candles []domain.Candle, ts int64) int {
	if len(candles) == 0 {
		return -1
	}
	n := visibleCount(candles, ts)
	if n == 0 {
		return 0
	}
	return n - 1
}

// nearestIndex returns the index of the candle closest to ts, preferring the
// earlier candle on a tie. It returns -1 for an empty series.
func nearestIndex(candles []domain.Candle, ts int64) int {
	if len(candles) == 0 {
		return -1
	}
	right := sort.Search(len(candles), func(i int) bool {
		return candles[i].Time >= ts
	})
	switch {
	case right == 0:
		return 0
	case right == len(candles):
		return len(candles) - 1
	}
	left := right - 1
	if ts-candles[left].Time <= candles[right].Time-ts {
		return left
	}
	return right
}
