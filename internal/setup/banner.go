package setup

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vadiminshakov/barreplay/config"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(subtle).Width(12)
	valueStyle = lipgloss.NewStyle().Bold(true)
)

// Banner renders the startup summary printed before the server starts.
func Banner(conf config.Config) string {
	rows := [][2]string{
		{"symbol", conf.Symbol},
		{"source", conf.SourceKind},
		{"timeframe", orDash(conf.ActiveTimeframe.String())},
		{"balance", conf.StartingBalance.String()},
		{"leverage", fmt.Sprintf("%dx", conf.Leverage)},
		{"speed", fmt.Sprintf("%gx every %s", conf.Speed, conf.StepInterval)},
		{"indicators", indicatorIDs(conf)},
		{"ui", "http://" + conf.Listen},
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r[0]), valueStyle.Render(r[1])))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("BAR REPLAY"),
		boxStyle.Render(strings.Join(lines, "\n")),
	)
}

func indicatorIDs(conf config.Config) string {
	ids := make([]string, 0, len(conf.Indicators))
	for _, d := range conf.Indicators {
		ids = append(ids, d.ID)
	}
	return orDash(strings.Join(ids, ", "))
}
