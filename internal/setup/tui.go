package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/barreplay/config"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/services/trader"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is where the wizard writes its result.
const DefaultConfigFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)

	boxStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1)
)

// Answers are the raw wizard inputs.
type Answers struct {
	Symbol       string
	SourceKind   string
	Files        string
	SQLitePath   string
	Timeframe    string
	Balance      string
	Leverage     string
	Speed        string
	StepInterval string
	StartAt      string
}

func defaultAnswers() Answers {
	return Answers{
		Symbol:       "BTCUSDT",
		SourceKind:   config.SourceCSV,
		Balance:      "10000",
		Leverage:     "1",
		Speed:        "1",
		StepInterval: "1s",
	}
}

func screen(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("BAR REPLAY SETUP"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and writes the result
// to path.
func RunTUI(path string) error {
	a := defaultAnswers()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("BAR REPLAY SETUP"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Pick a market, a slice of history and start trading it bar by bar.\n"))

	fmt.Println(stepStyle.Render("STEP 1: MARKET"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Symbol").
				Description("Exchange symbol, e.g. BTCUSDT").
				Value(&a.Symbol).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("symbol cannot be empty")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Candle source").
				Options(
					huh.NewOption("CSV files", config.SourceCSV),
					huh.NewOption("SQLite database", config.SourceSQLite),
				).
				Value(&a.SourceKind),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 2: DATA")
	var source huh.Field
	if a.SourceKind == config.SourceSQLite {
		source = huh.NewInput().
			Title("SQLite path").
			Description("Database written by klinedump").
			Value(&a.SQLitePath).
			Validate(validateFile)
	} else {
		source = huh.NewInput().
			Title("CSV files").
			Description("timeframe=path list, e.g. 1h=btc_1h.csv,4h=btc_4h.csv").
			Value(&a.Files).
			Validate(validateFiles)
	}
	err = huh.NewForm(
		huh.NewGroup(
			source,
			huh.NewInput().
				Title("Active timeframe").
				Description("Leave empty for the shortest loaded timeframe").
				Value(&a.Timeframe).
				Validate(validateTimeframe),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 3: ACCOUNT")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Starting balance").
				Description("Quote currency").
				Value(&a.Balance).
				Validate(validateBalance),
			huh.NewInput().
				Title("Leverage").
				Description(fmt.Sprintf("%d..%d", trader.MinLeverage, trader.MaxLeverage)).
				Value(&a.Leverage).
				Validate(validateLeverage),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 4: PLAYBACK")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Speed").
				Description("Bars per step interval (0.1..100)").
				Value(&a.Speed).
				Validate(validateSpeed),
			huh.NewInput().
				Title("Step interval").
				Description("Duration of one bar at speed 1 (e.g. 500ms, 1s)").
				Value(&a.StepInterval).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewInput().
				Title("Start at").
				Description("RFC3339 or unix seconds, empty to resume").
				Value(&a.StartAt),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("FINAL CONFIRMATION")
	fmt.Println(boxStyle.Render(a.summary()))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if path == "" {
		path = DefaultConfigFile
	}
	if err := Write(path, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting replay...", path)))
	time.Sleep(1500 * time.Millisecond)
	return nil
}

func (a Answers) summary() string {
	data := a.Files
	if a.SourceKind == config.SourceSQLite {
		data = a.SQLitePath
	}
	return fmt.Sprintf(
		"Symbol: %s\nSource: %s (%s)\nTimeframe: %s\nBalance: %s\nLeverage: %sx\nSpeed: %s every %s\n",
		a.Symbol, a.SourceKind, data, orDash(a.Timeframe), a.Balance, a.Leverage, a.Speed, a.StepInterval,
	)
}

// Build converts wizard answers into the YAML config shape.
func Build(a Answers) (config.ConfigTmp, error) {
	tmp := config.ConfigTmp{
		Symbol:          strings.ToUpper(strings.TrimSpace(a.Symbol)),
		Source:          config.SourceTmp{Kind: a.SourceKind, SQLite: a.SQLitePath},
		ActiveTimeframe: strings.TrimSpace(a.Timeframe),
		StartingBalance: a.Balance,
		StartAt:         strings.TrimSpace(a.StartAt),
	}

	if a.SourceKind != config.SourceSQLite {
		files, err := config.ParseFiles(a.Files)
		if err != nil {
			return tmp, err
		}
		tmp.Source.Files = files
		tmp.Source.SQLite = ""
	}

	if a.Leverage != "" {
		l, err := strconv.Atoi(a.Leverage)
		if err != nil {
			return tmp, fmt.Errorf("leverage must be an integer")
		}
		tmp.Leverage = l
	}
	if a.Speed != "" {
		sp, err := strconv.ParseFloat(a.Speed, 64)
		if err != nil {
			return tmp, fmt.Errorf("speed must be a number")
		}
		tmp.Speed = sp
	}
	if a.StepInterval != "" {
		d, err := time.ParseDuration(a.StepInterval)
		if err != nil {
			return tmp, err
		}
		tmp.StepInterval = d
	}
	return tmp, nil
}

// Write builds the config and saves it as YAML.
func Write(path string, a Answers) error {
	tmp, err := Build(a)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func validateFile(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if _, err := os.Stat(s); err != nil {
		return fmt.Errorf("cannot open %s", s)
	}
	return nil
}

func validateFiles(s string) error {
	files, err := config.ParseFiles(s)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("at least one file is required")
	}
	for _, f := range files {
		if _, err := domain.ParseTimeframe(f.Timeframe); err != nil {
			return err
		}
	}
	return nil
}

func validateTimeframe(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	_, err := domain.ParseTimeframe(s)
	return err
}

func validateBalance(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateLeverage(s string) error {
	l, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if l < trader.MinLeverage || l > trader.MaxLeverage {
		return fmt.Errorf("must be between %d and %d", trader.MinLeverage, trader.MaxLeverage)
	}
	return nil
}

func validateSpeed(s string) error {
	sp, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if sp <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
