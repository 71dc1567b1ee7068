package collector

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const candlesSchema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol       TEXT    NOT NULL,
	timeframe    TEXT    NOT NULL,
	open_time_ms INTEGER NOT NULL,
	open         REAL    NOT NULL,
	high         REAL    NOT NULL,
	low          REAL    NOT NULL,
	close        REAL    NOT NULL,
	volume       REAL    NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_candles_series ON candles(symbol, timeframe, open_time_ms);
`

// SQLiteSource reads candles from a single "candles" table.
type SQLiteSource struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (and if needed creates) the candle database at path.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite %s", path)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to ping sqlite %s", path)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		logger.Warn("failed to set WAL mode", zap.Error(err))
	}
	if _, err := db.Exec(candlesSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create candles schema")
	}

	return &SQLiteSource{db: db, logger: logger}, nil
}

// Timeframes implements Source.
func (s *SQLiteSource) Timeframes(symbol string) []domain.Timeframe {
	rows, err := s.db.Query(`SELECT DISTINCT timeframe FROM candles WHERE symbol = ?`, symbol)
	if err != nil {
		s.logger.Warn("failed to list timeframes", zap.String("symbol", symbol), zap.Error(err))
		return nil
	}
	defer rows.Close()

	var out []domain.Timeframe
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			s.logger.Warn("failed to scan timeframe", zap.Error(err))
			return nil
		}
		tf, err := domain.ParseTimeframe(raw)
		if err != nil {
			s.logger.Warn("skipping unknown timeframe", zap.String("timeframe", raw))
			continue
		}
		out = append(out, tf)
	}
	domain.SortTimeframes(out)
	return out
}

// Read implements Source. Rows keep insertion order on equal timestamps.
func (s *SQLiteSource) Read(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time_ms, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ?
		ORDER BY open_time_ms ASC, rowid ASC
	`, symbol, string(tf))
	if err != nil {
		return nil, errors.Wrap(err, "sqlite query candles")
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		var (
			c  domain.Candle
			ms int64
		)
		if err := rows.Scan(&ms, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, errors.Wrap(err, "sqlite scan candle")
		}
		c.Time = ms / 1000
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "sqlite iterate candles")
}

// Insert appends candles of one series in a single transaction.
func (s *SQLiteSource) Insert(ctx context.Context, symbol string, tf domain.Timeframe, candles []domain.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe, open_time_ms, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "sqlite prepare insert")
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, string(tf), c.Time*1000,
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return errors.Wrapf(err, "sqlite insert candle %d", c.Time)
		}
	}
	return errors.Wrap(tx.Commit(), "sqlite commit")
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
