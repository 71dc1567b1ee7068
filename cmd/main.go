// Command barreplay replays historical candles bar by bar and lets you paper
// trade them through a browser UI.
//
// Usage:
//
//	barreplay --config config.yaml
//	barreplay --symbol BTCUSDT --files 1h=btc_1h.csv,4h=btc_4h.csv
//	barreplay setup (interactive wizard, then starts the replay)
//
// Optional environment variables:
//
//	BARREPLAY_STATE_DIR: directory for preferences and the trade journal
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/barreplay/config"
	"github.com/vadiminshakov/barreplay/internal"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/events"
	"github.com/vadiminshakov/barreplay/internal/metrics"
	"github.com/vadiminshakov/barreplay/internal/services/market/collector"
	"github.com/vadiminshakov/barreplay/internal/setup"
	"github.com/vadiminshakov/barreplay/internal/storage/journal"
	"github.com/vadiminshakov/barreplay/internal/storage/prefs"
	"github.com/vadiminshakov/barreplay/internal/web"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const frameBuffer = 256

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(setup.DefaultConfigFile); err != nil {
			log.Fatal(err)
		}
		os.Args = []string{os.Args[0], "--config", setup.DefaultConfigFile}
	}

	conf, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(conf.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, logger); err != nil {
		logger.Fatal("replay stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level == "debug" {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

func run(ctx context.Context, conf config.Config, logger *zap.Logger) error {
	series, err := loadSeries(ctx, conf, logger.Named("collector"))
	if err != nil {
		return err
	}

	backend, err := openPrefsBackend(conf)
	if err != nil {
		return err
	}
	store := prefs.Open(backend, logger.Named("prefs"))
	defer store.Close()

	trades, err := journal.NewWALStore(filepath.Join(conf.StateDir, "journal"))
	if err != nil {
		return err
	}
	defer trades.Close()

	session, err := internal.NewSession(conf, series, internal.Deps{
		Prefs:   store,
		Journal: trades,
		Frames:  events.NewBroadcaster(frameBuffer),
		Metrics: metrics.New(),
		Logger:  logger,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create replay session")
	}
	defer session.Close()

	fmt.Println(setup.Banner(conf))

	srv := web.NewServer(conf.Listen, session, trades, logger.Named("web"))
	return srv.Start(ctx)
}

func loadSeries(ctx context.Context, conf config.Config, logger *zap.Logger) (map[domain.Timeframe][]domain.Candle, error) {
	var src collector.Source
	switch conf.SourceKind {
	case config.SourceSQLite:
		db, err := collector.OpenSQLite(conf.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		src = db
	default:
		csv, err := collector.NewCSVSource(conf.Manifest, logger)
		if err != nil {
			return nil, err
		}
		src = csv
	}
	return collector.Load(ctx, src, conf.Symbol, logger)
}

func openPrefsBackend(conf config.Config) (prefs.Backend, error) {
	if conf.PrefsBackend == config.PrefsWAL {
		return prefs.NewWALStore(filepath.Join(conf.StateDir, "prefs"))
	}
	return prefs.NewFileStore(filepath.Join(conf.StateDir, "prefs.json"))
}
