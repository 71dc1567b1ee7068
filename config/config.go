package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/services/market/collector"
	"github.com/vadiminshakov/barreplay/internal/services/strategy"
	"github.com/vadiminshakov/barreplay/internal/services/trader"
	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceCSV    = "csv"
	SourceSQLite = "sqlite"
)

// Prefs backends.
const (
	PrefsFile = "file"
	PrefsWAL  = "wal"
)

const (
	defaultListen       = "127.0.0.1:8090"
	defaultStateDir     = "./wal"
	defaultBalance      = "10000"
	defaultStepInterval = time.Second
	defaultSpeed        = 1.0
)

// Config is a validated replay session configuration.
type Config struct {
	Symbol          string
	SourceKind      string
	Manifest        collector.Manifest
	SQLitePath      string
	ActiveTimeframe domain.Timeframe
	StartingBalance decimal.Decimal
	Leverage        int
	HistoryCap      int
	Speed           float64
	StepInterval    time.Duration
	// StartAt positions the clock at the bar at or before this time; zero keeps
	// the clock at the end of data.
	StartAt      time.Time
	Indicators   []domain.IndicatorDefinition
	Listen       string
	StateDir     string
	PrefsBackend string
	LogLevel     string
	Strategy     strategy.Thresholds
}

// ConfigTmp is the YAML shape of Config. Decimals and timestamps are strings.
type ConfigTmp struct {
	Symbol          string                       `yaml:"symbol"`
	Source          SourceTmp                    `yaml:"source"`
	ActiveTimeframe string                       `yaml:"active_timeframe,omitempty"`
	StartingBalance string                       `yaml:"starting_balance,omitempty"`
	Leverage        int                          `yaml:"leverage,omitempty"`
	HistoryCap      int                          `yaml:"history_cap,omitempty"`
	Speed           float64                      `yaml:"speed,omitempty"`
	StepInterval    time.Duration                `yaml:"step_interval,omitempty"`
	StartAt         string                       `yaml:"start_at,omitempty"`
	Indicators      []domain.IndicatorDefinition `yaml:"indicators,omitempty"`
	Listen          string                       `yaml:"listen,omitempty"`
	StateDir        string                       `yaml:"state_dir,omitempty"`
	PrefsBackend    string                       `yaml:"prefs_backend,omitempty"`
	LogLevel        string                       `yaml:"log_level,omitempty"`
	Strategy        *strategy.Thresholds         `yaml:"strategy,omitempty"`
}

// SourceTmp selects where candles come from.
type SourceTmp struct {
	Kind   string    `yaml:"kind"`
	SQLite string    `yaml:"sqlite,omitempty"`
	Files  []FileTmp `yaml:"files,omitempty"`
}

// FileTmp is one CSV file of a timeframe. The symbol is taken from the config.
type FileTmp struct {
	Timeframe string `yaml:"timeframe"`
	Path      string `yaml:"path"`
}

// DefaultIndicators is the indicator set used when none is configured.
func DefaultIndicators() []domain.IndicatorDefinition {
	return []domain.IndicatorDefinition{
		{ID: "ema20", Kind: domain.IndicatorEMA, Period: 20, Source: domain.SourceClose, Color: "#f5a623", Visible: true},
		{ID: "sma50", Kind: domain.IndicatorSMA, Period: 50, Source: domain.SourceClose, Color: "#4a90e2", Visible: true},
		{ID: "atr14", Kind: domain.IndicatorATR, Period: 14, Color: "#9b9b9b"},
		{ID: "rsi14", Kind: domain.IndicatorRSI, Period: 14, Source: domain.SourceClose, Color: "#bd10e0"},
		{ID: "adx14", Kind: domain.IndicatorADX, Period: 14, Color: "#7ed321"},
	}
}

// Get loads .env, parses process flags and returns the session config.
func Get() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrap(err, "load .env")
	}
	return Parse(flag.CommandLine, os.Args[1:])
}

// Parse reads either the YAML file named by --config or the remaining flags.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	path := fs.String("config", "", "path to yaml config")
	symbol := fs.String("symbol", "BTCUSDT", "symbol to replay, example: BTCUSDT")
	sourceKind := fs.String("source", SourceCSV, "candle source: csv or sqlite")
	files := fs.String("files", "", "comma separated timeframe=path list, example: 1h=btc_1h.csv,4h=btc_4h.csv")
	sqlitePath := fs.String("sqlite", "", "path to sqlite candle database")
	tf := fs.String("timeframe", "", "initially active timeframe")
	balance := fs.String("balance", defaultBalance, "starting balance in quote currency")
	leverage := fs.Int("leverage", trader.MinLeverage, "leverage for new positions (1-25)")
	historyCap := fs.Int("historycap", trader.DefaultHistoryCap, "closed trades kept in memory")
	speed := fs.Float64("speed", defaultSpeed, "playback speed multiplier")
	step := fs.Duration("stepinterval", defaultStepInterval, "bar interval at speed 1")
	startAt := fs.String("start", "", "replay start, RFC3339 or unix seconds")
	listen := fs.String("listen", defaultListen, "http listen address")
	stateDir := fs.String("statedir", "", "directory for preferences and journal")
	prefsBackend := fs.String("prefs", PrefsFile, "preferences backend: file or wal")
	logLevel := fs.String("loglevel", "info", "log level: debug or info")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if *path != "" {
		var err error
		if tmp, err = readYaml(*path); err != nil {
			return Config{}, err
		}
	} else {
		tmp = ConfigTmp{
			Symbol:          *symbol,
			Source:          SourceTmp{Kind: *sourceKind, SQLite: *sqlitePath},
			ActiveTimeframe: *tf,
			StartingBalance: *balance,
			Leverage:        *leverage,
			HistoryCap:      *historyCap,
			Speed:           *speed,
			StepInterval:    *step,
			StartAt:         *startAt,
			Listen:          *listen,
			StateDir:        *stateDir,
			PrefsBackend:    *prefsBackend,
			LogLevel:        *logLevel,
		}
		parsed, err := ParseFiles(*files)
		if err != nil {
			return Config{}, err
		}
		tmp.Source.Files = parsed
	}

	return tmp.toConfig()
}

func readYaml(path string) (ConfigTmp, error) {
	var tmp ConfigTmp
	f, err := os.ReadFile(path)
	if err != nil {
		return tmp, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return tmp, errors.Wrap(err, "decode yaml config")
	}
	return tmp, nil
}

// ParseFiles parses a comma separated timeframe=path list.
func ParseFiles(s string) ([]FileTmp, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []FileTmp
	for _, item := range strings.Split(s, ",") {
		tf, path, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok || tf == "" || path == "" {
			return nil, fmt.Errorf("invalid --files item %q, expected timeframe=path", item)
		}
		out = append(out, FileTmp{Timeframe: tf, Path: path})
	}
	return out, nil
}

func (c ConfigTmp) toConfig() (Config, error) {
	conf := Config{
		Symbol:       strings.ToUpper(strings.TrimSpace(c.Symbol)),
		SourceKind:   c.Source.Kind,
		SQLitePath:   c.Source.SQLite,
		Leverage:     c.Leverage,
		HistoryCap:   c.HistoryCap,
		Speed:        c.Speed,
		StepInterval: c.StepInterval,
		Indicators:   c.Indicators,
		Listen:       c.Listen,
		StateDir:     c.StateDir,
		PrefsBackend: c.PrefsBackend,
		LogLevel:     c.LogLevel,
		Strategy:     strategy.DefaultThresholds(),
	}
	if conf.Symbol == "" {
		return Config{}, fmt.Errorf("symbol is required")
	}

	if conf.SourceKind == "" {
		conf.SourceKind = SourceCSV
	}
	switch conf.SourceKind {
	case SourceCSV:
		for _, f := range c.Source.Files {
			tf, err := domain.ParseTimeframe(f.Timeframe)
			if err != nil {
				return Config{}, errors.Wrap(err, "source file")
			}
			conf.Manifest = append(conf.Manifest, collector.Entry{Symbol: conf.Symbol, Timeframe: tf, Path: f.Path})
		}
		if err := conf.Manifest.Validate(); err != nil {
			return Config{}, errors.Wrap(err, "incorrect 'source.files'")
		}
	case SourceSQLite:
		if conf.SQLitePath == "" {
			return Config{}, fmt.Errorf("'source.sqlite' path is required for sqlite source")
		}
	default:
		return Config{}, fmt.Errorf("unsupported source kind %q", conf.SourceKind)
	}

	if c.ActiveTimeframe != "" {
		tf, err := domain.ParseTimeframe(c.ActiveTimeframe)
		if err != nil {
			return Config{}, errors.Wrap(err, "incorrect 'active_timeframe'")
		}
		conf.ActiveTimeframe = tf
	}

	balance := c.StartingBalance
	if balance == "" {
		balance = defaultBalance
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'starting_balance' param in yaml config (must be a decimal), error: %w", err)
	}
	if !b.IsPositive() {
		return Config{}, fmt.Errorf("starting balance must be positive, got %s", b.String())
	}
	conf.StartingBalance = b

	if conf.Leverage == 0 {
		conf.Leverage = trader.MinLeverage
	}
	if conf.Leverage < trader.MinLeverage || conf.Leverage > trader.MaxLeverage {
		return Config{}, fmt.Errorf("leverage must be within %d..%d, got %d", trader.MinLeverage, trader.MaxLeverage, conf.Leverage)
	}
	if conf.HistoryCap == 0 {
		conf.HistoryCap = trader.DefaultHistoryCap
	}
	if conf.HistoryCap < 0 {
		return Config{}, fmt.Errorf("history cap must not be negative")
	}
	if conf.Speed == 0 {
		conf.Speed = defaultSpeed
	}
	if conf.Speed < 0 {
		return Config{}, fmt.Errorf("speed must be positive, got %v", conf.Speed)
	}
	if conf.StepInterval == 0 {
		conf.StepInterval = defaultStepInterval
	}
	if conf.StepInterval < 0 {
		return Config{}, fmt.Errorf("step interval must be positive")
	}

	if c.StartAt != "" {
		ts, err := parseStart(c.StartAt)
		if err != nil {
			return Config{}, err
		}
		conf.StartAt = ts
	}

	if len(conf.Indicators) == 0 {
		conf.Indicators = DefaultIndicators()
	}
	if err := validateIndicators(conf.Indicators); err != nil {
		return Config{}, err
	}

	if c.Strategy != nil {
		conf.Strategy = *c.Strategy
	}
	if err := conf.Strategy.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "incorrect 'strategy'")
	}

	if conf.Listen == "" {
		conf.Listen = defaultListen
	}
	if conf.StateDir == "" {
		conf.StateDir = stateDirFromEnv()
	}
	if conf.PrefsBackend == "" {
		conf.PrefsBackend = PrefsFile
	}
	if conf.PrefsBackend != PrefsFile && conf.PrefsBackend != PrefsWAL {
		return Config{}, fmt.Errorf("unsupported prefs backend %q", conf.PrefsBackend)
	}
	if conf.LogLevel == "" {
		conf.LogLevel = "info"
	}

	return conf, nil
}

func validateIndicators(defs []domain.IndicatorDefinition) error {
	seen := make(map[string]struct{}, len(defs))
	for i := range defs {
		if err := defs[i].Validate(); err != nil {
			return err
		}
		if _, ok := seen[defs[i].ID]; ok {
			return fmt.Errorf("duplicate indicator id %q", defs[i].ID)
		}
		seen[defs[i].ID] = struct{}{}
	}
	return nil
}

func parseStart(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("incorrect 'start_at' %q, expected RFC3339 or unix seconds", s)
	}
	return ts.UTC(), nil
}

func stateDirFromEnv() string {
	if dir := os.Getenv("BARREPLAY_STATE_DIR"); dir != "" {
		return dir
	}
	return defaultStateDir
}
