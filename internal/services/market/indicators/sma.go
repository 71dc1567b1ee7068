package indicators

import "github.com/vadiminshakov/barreplay/internal/domain"

// sma is a simple moving average. It keeps no per-bar arrays: an incremental
// step walks back only period samples from the newest bar.
type sma struct {
	period int
	src    domain.SourceField
}

func newSMA(period int, src domain.SourceField) *sma {
	return &sma{period: period, src: src}
}

func (s *sma) minBars() int { return s.period }
func (s *sma) grow()        {}
func (s *sma) reset()       {}

func (s *sma) compute(history []domain.Candle, i int) (float64, bool) {
	if i+1 < s.period {
		return 0, false
	}
	sum := 0.0
	for j := i - s.period + 1; j <= i; j++ {
		sum += history[j].Field(s.src)
	}
	return sum / float64(s.period), true
}

// batch computes the full series with a rolling window sum.
func (s *sma) batch(history []domain.Candle) []domain.Point {
	if len(history) < s.period {
		return nil
	}
	out := make([]domain.Point, 0, len(history)-s.period+1)
	sum := 0.0
	for i, c := range history {
		sum += c.Field(s.src)
		if i >= s.period {
			sum -= history[i-s.period].Field(s.src)
		}
		if i >= s.period-1 {
			out = append(out, domain.Point{Time: c.Time, Value: sum / float64(s.period)})
		}
	}
	return out
}
