package setup

import (
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/barreplay/config"
	"github.com/vadiminshakov/barreplay/internal/domain"
)

func TestWriteProducesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	a := defaultAnswers()
	a.Symbol = " ethusdt "
	a.Files = "1h=eth_1h.csv, 4h=eth_4h.csv"
	a.Timeframe = "4h"
	a.Leverage = "5"
	a.Speed = "2.5"
	a.StepInterval = "250ms"
	a.StartAt = "2024-01-02T00:00:00Z"
	require.NoError(t, Write(path, a))

	conf, err := config.Parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", conf.Symbol)
	assert.Equal(t, config.SourceCSV, conf.SourceKind)
	assert.Equal(t, []domain.Timeframe{"1h", "4h"}, conf.Manifest.Timeframes("ETHUSDT"))
	assert.Equal(t, domain.Timeframe("4h"), conf.ActiveTimeframe)
	assert.Equal(t, 5, conf.Leverage)
	assert.Equal(t, 2.5, conf.Speed)
	assert.Equal(t, 250*time.Millisecond, conf.StepInterval)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), conf.StartAt)
	assert.Equal(t, "10000", conf.StartingBalance.String())
}

func TestBuildSQLite(t *testing.T) {
	a := defaultAnswers()
	a.SourceKind = config.SourceSQLite
	a.SQLitePath = "candles.db"
	a.Files = "1h=ignored.csv"

	tmp, err := Build(a)
	require.NoError(t, err)
	assert.Equal(t, "candles.db", tmp.Source.SQLite)
	assert.Empty(t, tmp.Source.Files)
}

func TestBuildRejectsBadInput(t *testing.T) {
	a := defaultAnswers()
	a.Files = "1h"
	_, err := Build(a)
	assert.Error(t, err)

	a = defaultAnswers()
	a.Files = "1h=a.csv"
	a.Leverage = "x"
	_, err = Build(a)
	assert.Error(t, err)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateFiles("1h=a.csv,1d=b.csv"))
	assert.Error(t, validateFiles(""))
	assert.Error(t, validateFiles("7m=a.csv"))

	assert.NoError(t, validateTimeframe(""))
	assert.Error(t, validateTimeframe("2w"))

	assert.NoError(t, validateBalance("250.5"))
	assert.Error(t, validateBalance("-1"))

	assert.NoError(t, validateLeverage("25"))
	assert.Error(t, validateLeverage("26"))

	assert.Error(t, validateSpeed("0"))
	assert.Error(t, validateFile(filepath.Join(t.TempDir(), "missing.db")))
}

func TestBanner(t *testing.T) {
	conf, err := config.Parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--files", "1h=a.csv"})
	require.NoError(t, err)

	out := Banner(conf)
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "ema20, sma50")
	assert.Contains(t, out, "http://127.0.0.1:8090")
}
