package domain

// Recommendation is the decision-support output of the strategy evaluator.
type Recommendation int

const (
	RecommendNone Recommendation = iota
	RecommendBuy
	RecommendSell
	RecommendCloseLong
	RecommendCloseShort
)

// recommendation string constants to avoid magic strings
const (
	recommendStringNone       = "NONE"
	recommendStringBuy        = "BUY"
	recommendStringSell       = "SELL"
	recommendStringCloseLong  = "CLOSE_LONG"
	recommendStringCloseShort = "CLOSE_SHORT"
)

// String returns the string representation of the recommendation
func (r Recommendation) String() string {
	switch r {
	case RecommendBuy:
		return recommendStringBuy
	case RecommendSell:
		return recommendStringSell
	case RecommendCloseLong:
		return recommendStringCloseLong
	case RecommendCloseShort:
		return recommendStringCloseShort
	default:
		return recommendStringNone
	}
}

// MarshalText encodes the recommendation as its string form.
func (r Recommendation) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
