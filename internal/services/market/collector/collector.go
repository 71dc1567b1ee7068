// Package collector provides historical candle data for the replay:
// CSV files grouped by a manifest, a SQLite candle table, and a Binance
// downloader that produces both.
package collector

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"go.uber.org/zap"
)

// Source reads raw candles for one (symbol, timeframe) pair.
// Returned candles may be unsorted, duplicated or invalid; Load cleans them.
type Source interface {
	// Timeframes lists the timeframes available for symbol.
	Timeframes(symbol string) []domain.Timeframe
	// Read returns every candle found for symbol and timeframe.
	Read(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.Candle, error)
}

// Entry locates one file of candles.
type Entry struct {
	Symbol    string           `yaml:"symbol" json:"symbol"`
	Timeframe domain.Timeframe `yaml:"timeframe" json:"timeframe"`
	Path      string           `yaml:"path" json:"path"`
}

// Manifest is a flat list of candle files grouped by (symbol, timeframe).
type Manifest []Entry

// Symbols returns the distinct symbols in manifest order.
func (m Manifest) Symbols() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range m {
		if _, ok := seen[e.Symbol]; ok {
			continue
		}
		seen[e.Symbol] = struct{}{}
		out = append(out, e.Symbol)
	}
	return out
}

// Timeframes returns the distinct timeframes of symbol, shortest first.
func (m Manifest) Timeframes(symbol string) []domain.Timeframe {
	seen := make(map[domain.Timeframe]struct{})
	var out []domain.Timeframe
	for _, e := range m {
		if e.Symbol != symbol {
			continue
		}
		if _, ok := seen[e.Timeframe]; ok {
			continue
		}
		seen[e.Timeframe] = struct{}{}
		out = append(out, e.Timeframe)
	}
	domain.SortTimeframes(out)
	return out
}

// Paths returns the files of one (symbol, timeframe) in manifest order.
func (m Manifest) Paths(symbol string, tf domain.Timeframe) []string {
	var out []string
	for _, e := range m {
		if e.Symbol == symbol && e.Timeframe == tf {
			out = append(out, e.Path)
		}
	}
	return out
}

// Validate checks that every entry is complete and uses a known timeframe.
func (m Manifest) Validate() error {
	if len(m) == 0 {
		return errors.New("manifest is empty")
	}
	for i, e := range m {
		if e.Symbol == "" || e.Path == "" {
			return errors.Errorf("manifest entry %d: symbol and path are required", i)
		}
		if !e.Timeframe.IsValid() {
			return errors.Errorf("manifest entry %d: unknown timeframe %q", i, e.Timeframe)
		}
	}
	return nil
}

// LoadStats reports what Load discarded.
type LoadStats struct {
	Duplicates int
	Invalid    int
}

// Load reads every timeframe of symbol from src and returns series that are
// ascending by time, free of duplicate timestamps (first occurrence wins)
// and free of candles violating the OHLC invariant.
func Load(ctx context.Context, src Source, symbol string, logger *zap.Logger) (map[domain.Timeframe][]domain.Candle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tfs := src.Timeframes(symbol)
	if len(tfs) == 0 {
		return nil, errors.Errorf("no timeframes available for %s", symbol)
	}

	out := make(map[domain.Timeframe][]domain.Candle, len(tfs))
	for _, tf := range tfs {
		raw, err := src.Read(ctx, symbol, tf)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s %s candles", symbol, tf)
		}

		candles, stats := Normalize(raw)
		if stats.Duplicates > 0 || stats.Invalid > 0 {
			logger.Warn("dropped candles while loading",
				zap.String("symbol", symbol),
				zap.String("timeframe", tf.String()),
				zap.Int("duplicates", stats.Duplicates),
				zap.Int("invalid", stats.Invalid))
		}
		if len(candles) == 0 {
			logger.Warn("timeframe has no usable candles",
				zap.String("symbol", symbol),
				zap.String("timeframe", tf.String()))
			continue
		}

		logger.Info("loaded candles",
			zap.String("symbol", symbol),
			zap.String("timeframe", tf.String()),
			zap.Int("count", len(candles)),
			zap.Int64("from", candles[0].Time),
			zap.Int64("to", candles[len(candles)-1].Time))
		out[tf] = candles
	}

	if len(out) == 0 {
		return nil, errors.Errorf("no usable candles for %s", symbol)
	}
	return out, nil
}

// Normalize stable-sorts candles by time, keeps the first candle of every
// timestamp and drops candles that fail validation.
func Normalize(raw []domain.Candle) ([]domain.Candle, LoadStats) {
	var stats LoadStats
	sorted := make([]domain.Candle, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	out := make([]domain.Candle, 0, len(sorted))
	for i, c := range sorted {
		if i > 0 && c.Time == sorted[i-1].Time {
			stats.Duplicates++
			continue
		}
		if err := c.Validate(); err != nil {
			stats.Invalid++
			continue
		}
		out = append(out, c)
	}
	return out, stats
}
