package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Timeframe is a bar interval label such as "15m" or "1h".
type Timeframe string

var timeframeSeconds = map[Timeframe]int64{
	"1m":  60,
	"3m":  3 * 60,
	"5m":  5 * 60,
	"15m": 15 * 60,
	"30m": 30 * 60,
	"1h":  3600,
	"2h":  2 * 3600,
	"4h":  4 * 3600,
	"6h":  6 * 3600,
	"8h":  8 * 3600,
	"12h": 12 * 3600,
	"1d":  86400,
	"3d":  3 * 86400,
	"1w":  7 * 86400,
}

// ParseTimeframe normalises and validates a timeframe label.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.TrimSpace(s))
	if _, ok := timeframeSeconds[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Seconds returns the native bar interval. Unknown timeframes return 0.
func (t Timeframe) Seconds() int64 {
	return timeframeSeconds[t]
}

// IsValid checks if the timeframe is known.
func (t Timeframe) IsValid() bool {
	_, ok := timeframeSeconds[t]
	return ok
}

// String returns the label.
func (t Timeframe) String() string {
	return string(t)
}

// SortTimeframes orders timeframes from the shortest interval to the longest.
func SortTimeframes(tfs []Timeframe) {
	sort.SliceStable(tfs, func(i, j int) bool {
		return tfs[i].Seconds() < tfs[j].Seconds()
	})
}
