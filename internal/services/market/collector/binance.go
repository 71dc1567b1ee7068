package collector

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/pkg/retrier"
	"go.uber.org/zap"
)

// binanceKlinesLimit is the maximum page size of the klines endpoint.
const binanceKlinesLimit = 1000

// KlinePage fetches one page of klines starting at startMs.
type KlinePage func(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*binance.Kline, error)

// BinancePage returns a KlinePage backed by the Binance REST client.
func BinancePage(client *binance.Client) KlinePage {
	return func(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*binance.Kline, error) {
		return client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(startMs).
			EndTime(endMs).
			Limit(limit).
			Do(ctx)
	}
}

// BinanceDownloader fetches historical klines page by page.
type BinanceDownloader struct {
	page    KlinePage
	retrier *retrier.Retrier
	logger  *zap.Logger
}

// NewBinanceDownloader creates a downloader. A nil retrier uses defaults.
func NewBinanceDownloader(page KlinePage, r *retrier.Retrier, logger *zap.Logger) *BinanceDownloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if r == nil {
		r = retrier.New(retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			logger.Warn("retrying kline page",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}))
	}
	return &BinanceDownloader{page: page, retrier: r, logger: logger}
}

// Download returns candles of symbol/tf with open time in [from, to].
func (d *BinanceDownloader) Download(ctx context.Context, symbol string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
	if !tf.IsValid() {
		return nil, errors.Errorf("unknown timeframe %q", tf)
	}
	if !from.Before(to) {
		return nil, errors.Errorf("invalid range %s..%s", from, to)
	}

	var (
		out    []domain.Candle
		cursor = from.UnixMilli()
		endMs  = to.UnixMilli()
		step   = tf.Seconds() * 1000
	)
	for cursor <= endMs {
		klines, err := retrier.DoWithData(d.retrier, ctx, func(ctx context.Context) ([]*binance.Kline, error) {
			return d.page(ctx, symbol, tf.String(), cursor, endMs, binanceKlinesLimit)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch klines for %s %s from %d", symbol, tf, cursor)
		}
		if len(klines) == 0 {
			break
		}

		for i, k := range klines {
			c, err := klineToCandle(k)
			if err != nil {
				return nil, errors.Wrapf(err, "kline %d of page at %d", i, cursor)
			}
			out = append(out, c)
		}

		last := klines[len(klines)-1].OpenTime
		d.logger.Debug("fetched kline page",
			zap.String("symbol", symbol),
			zap.String("timeframe", tf.String()),
			zap.Int("count", len(klines)),
			zap.Int64("last_open_ms", last))

		if len(klines) < binanceKlinesLimit {
			break
		}
		cursor = last + step
	}
	return out, nil
}

func klineToCandle(k *binance.Kline) (domain.Candle, error) {
	parse := func(name, v string) (float64, error) {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to parse %s %q", name, v)
		}
		return f, nil
	}

	open, err := parse("open", k.Open)
	if err != nil {
		return domain.Candle{}, err
	}
	high, err := parse("high", k.High)
	if err != nil {
		return domain.Candle{}, err
	}
	low, err := parse("low", k.Low)
	if err != nil {
		return domain.Candle{}, err
	}
	cl, err := parse("close", k.Close)
	if err != nil {
		return domain.Candle{}, err
	}
	volume, err := parse("volume", k.Volume)
	if err != nil {
		return domain.Candle{}, err
	}

	return domain.Candle{
		Time:   k.OpenTime / 1000,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  cl,
		Volume: volume,
	}, nil
}
