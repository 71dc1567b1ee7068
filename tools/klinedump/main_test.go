package main

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/services/market/collector"
)

func TestParseTimeframes(t *testing.T) {
	tfs, err := parseTimeframes("1h, 4h,,1d")
	require.NoError(t, err)
	assert.Equal(t, []domain.Timeframe{"1h", "4h", "1d"}, tfs)

	_, err = parseTimeframes(" , ")
	assert.Error(t, err)
	_, err = parseTimeframes("1h,7m")
	assert.Error(t, err)
}

func TestParseRange(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	from, to, err := parseRange("2024-01-01T00:00:00Z", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, now, to)

	_, _, err = parseRange("", "", now)
	assert.Error(t, err)
	_, _, err = parseRange("2024-02-01T00:00:00Z", "2024-01-01T00:00:00Z", now)
	assert.Error(t, err)
}

func TestWriteCSVFileIsReadable(t *testing.T) {
	candles := []domain.Candle{
		{Time: 1_700_000_000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3},
		{Time: 1_700_003_600, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 4},
	}
	path, err := writeCSVFile(t.TempDir(), "BTCUSDT", "1h", candles)
	require.NoError(t, err)
	assert.Contains(t, path, "btcusdt_1h.csv")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got, skipped, err := collector.ParseCSV(f)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, candles, got)
}
