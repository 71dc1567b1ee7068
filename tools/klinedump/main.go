// Command klinedump downloads historical Binance klines for replay, either as
// one CSV file per timeframe or into a SQLite candle database.
//
// Usage:
//
//	klinedump --symbol BTCUSDT --timeframes 1h,4h --from 2024-01-01T00:00:00Z --out ./data
//	klinedump --symbol BTCUSDT --timeframes 15m --from 2024-01-01T00:00:00Z --sqlite candles.db
//
// BINANCE_API_KEY and BINANCE_API_SECRET are read from the environment or
// .env when present; the klines endpoint also works without them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/services/market/collector"
	"go.uber.org/zap"
)

func main() {
	var (
		symbol     = flag.String("symbol", "BTCUSDT", "symbol to download")
		timeframes = flag.String("timeframes", "1h", "comma separated timeframes")
		fromStr    = flag.String("from", "", "range start, RFC3339")
		toStr      = flag.String("to", "", "range end, RFC3339 (default now)")
		outDir     = flag.String("out", ".", "directory for csv files")
		sqlitePath = flag.String("sqlite", "", "write into this sqlite database instead of csv")
	)
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Fatal("failed to load .env", zap.Error(err))
	}

	tfs, err := parseTimeframes(*timeframes)
	if err != nil {
		logger.Fatal("invalid timeframes", zap.Error(err))
	}
	from, to, err := parseRange(*fromStr, *toStr, time.Now().UTC())
	if err != nil {
		logger.Fatal("invalid range", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := binance.NewClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))
	downloader := collector.NewBinanceDownloader(collector.BinancePage(client), nil, logger.Named("binance"))

	sym := strings.ToUpper(*symbol)
	var sink func(tf domain.Timeframe, candles []domain.Candle) (string, error)
	if *sqlitePath != "" {
		db, err := collector.OpenSQLite(*sqlitePath, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite", zap.Error(err))
		}
		defer db.Close()
		sink = func(tf domain.Timeframe, candles []domain.Candle) (string, error) {
			return *sqlitePath, db.Insert(ctx, sym, tf, candles)
		}
	} else {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			logger.Fatal("failed to create output dir", zap.Error(err))
		}
		sink = func(tf domain.Timeframe, candles []domain.Candle) (string, error) {
			return writeCSVFile(*outDir, sym, tf, candles)
		}
	}

	var files []string
	for _, tf := range tfs {
		candles, err := downloader.Download(ctx, sym, tf, from, to)
		if err != nil {
			logger.Fatal("download failed", zap.String("timeframe", tf.String()), zap.Error(err))
		}
		dest, err := sink(tf, candles)
		if err != nil {
			logger.Fatal("write failed", zap.String("timeframe", tf.String()), zap.Error(err))
		}
		logger.Info("saved klines",
			zap.String("symbol", sym),
			zap.String("timeframe", tf.String()),
			zap.Int("count", len(candles)),
			zap.String("dest", dest))
		files = append(files, fmt.Sprintf("%s=%s", tf, dest))
	}

	if *sqlitePath != "" {
		fmt.Printf("barreplay --symbol %s --source sqlite --sqlite %s\n", sym, *sqlitePath)
		return
	}
	fmt.Printf("barreplay --symbol %s --files %s\n", sym, strings.Join(files, ","))
}

func parseTimeframes(s string) ([]domain.Timeframe, error) {
	var out []domain.Timeframe
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		tf, err := domain.ParseTimeframe(item)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one timeframe is required")
	}
	return out, nil
}

func parseRange(fromStr, toStr string, now time.Time) (time.Time, time.Time, error) {
	if fromStr == "" {
		return time.Time{}, time.Time{}, errors.New("--from is required")
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "--from")
	}
	to := now
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return time.Time{}, time.Time{}, errors.Wrap(err, "--to")
		}
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.Errorf("--from %s must be before --to %s", from, to)
	}
	return from, to, nil
}

func writeCSVFile(dir, symbol string, tf domain.Timeframe, candles []domain.Candle) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", strings.ToLower(symbol), tf))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create csv")
	}
	if err := collector.WriteCSV(f, candles); err != nil {
		f.Close()
		return "", err
	}
	return path, errors.Wrap(f.Close(), "close csv")
}
