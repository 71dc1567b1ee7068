package collector

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"go.uber.org/zap"
)

// CSVSource reads candles from the files listed in a manifest.
type CSVSource struct {
	manifest Manifest
	logger   *zap.Logger
}

// NewCSVSource creates a source over manifest.
func NewCSVSource(manifest Manifest, logger *zap.Logger) (*CSVSource, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{manifest: manifest, logger: logger}, nil
}

// Timeframes implements Source.
func (s *CSVSource) Timeframes(symbol string) []domain.Timeframe {
	return s.manifest.Timeframes(symbol)
}

// Read concatenates every file of (symbol, tf) in manifest order.
func (s *CSVSource) Read(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.Candle, error) {
	var out []domain.Candle
	for _, path := range s.manifest.Paths(symbol, tf) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candles, skipped, err := readCSVFile(path)
		if err != nil {
			return nil, err
		}
		if skipped > 0 {
			s.logger.Debug("skipped malformed rows",
				zap.String("path", path),
				zap.Int("rows", skipped))
		}
		out = append(out, candles...)
	}
	return out, nil
}

func readCSVFile(path string) ([]domain.Candle, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	candles, skipped, err := ParseCSV(f)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to parse %s", path)
	}
	return candles, skipped, nil
}

// ParseCSV parses rows of [openTimeMillis, open, high, low, close, volume, ...].
// Rows whose time or open does not parse (a header, for instance) are skipped
// and counted. Missing high/low/close fall back to open, missing volume to 0.
func ParseCSV(r io.Reader) ([]domain.Candle, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	reader.TrimLeadingSpace = true

	var (
		out     []domain.Candle
		skipped int
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return nil, skipped, err
		}

		c, ok := parseRow(row)
		if !ok {
			skipped++
			continue
		}
		out = append(out, c)
	}
	return out, skipped, nil
}

func parseRow(row []string) (domain.Candle, bool) {
	if len(row) < 2 {
		return domain.Candle{}, false
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil {
		// some exports write the time as a float
		f, ferr := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if ferr != nil {
			return domain.Candle{}, false
		}
		ms = int64(f)
	}
	open, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	if err != nil {
		return domain.Candle{}, false
	}

	field := func(i int, fallback float64) float64 {
		if i >= len(row) {
			return fallback
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return fallback
		}
		return v
	}

	return domain.Candle{
		Time:   ms / 1000,
		Open:   open,
		High:   field(2, open),
		Low:    field(3, open),
		Close:  field(4, open),
		Volume: field(5, 0),
	}, true
}

// WriteCSV writes candles in the row format ParseCSV reads.
func WriteCSV(w io.Writer, candles []domain.Candle) error {
	writer := csv.NewWriter(w)
	for _, c := range candles {
		row := []string{
			strconv.FormatInt(c.Time*1000, 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return errors.Wrap(err, "failed to write csv row")
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "failed to flush csv")
}
