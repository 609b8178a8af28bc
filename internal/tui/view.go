package tui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle          = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Underline(true)
	errorStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffb347"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8ecae6"))
	sourcesHeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	sourceStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))
	statusBarStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	keyStyle            = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	composerBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(0, 1)
)

func (m *model) View() string {
	m.refreshViewportIfDirty()
	parts := []string{m.headerView(), m.viewport.View()}
	if m.busy {
		parts = append(parts, helperStyle.Render(fmt.Sprintf("%s %s", m.spinner.View(), thinkingText)))
	}
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	}
	if status := m.statusLine(); status != "" {
		parts = append(parts, helperStyle.Render(status))
	}
	parts = append(parts, composerBoxStyle.Render(m.input.View()), m.keyLegendView())
	return joinNonEmpty(parts)
}

func (m *model) headerView() string {
	title := titleStyle.Render(appTitle)
	stats := []string{fmt.Sprintf("Session: %s", m.sessionID)}
	if m.config.BackendURL != "" {
		stats = append(stats, fmt.Sprintf("Backend: %s (%s)", m.config.BackendURL, m.backendStatus.label()))
	} else {
		stats = append(stats, fmt.Sprintf("Backend: %s", m.backendStatus.label()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, statusBarStyle.Render(strings.Join(stats, "  •  ")))
}

// statusLine joins the info message with the outcome of the last turn.
func (m *model) statusLine() string {
	parts := []string{}
	if m.infoMessage != "" {
		parts = append(parts, m.infoMessage)
	}
	switch m.lastTurn.Status {
	case jobStatusSucceeded:
		parts = append(parts, fmt.Sprintf("Last turn answered in %s", formatDuration(m.lastTurn.Duration)))
	case jobStatusFailed:
		parts = append(parts, fmt.Sprintf("Last turn failed after %s", formatDuration(m.lastTurn.Duration)))
	}
	return strings.Join(parts, "  •  ")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func (s backendStatus) label() string {
	switch s {
	case backendNotProbed:
		return "not probed"
	case backendReachable:
		return "reachable"
	case backendUnreachable:
		return "unreachable"
	default:
		return "checking"
	}
}

type keyHint struct {
	Key         string
	Description string
}

func (m *model) keyLegendView() string {
	hints := []keyHint{
		{"Enter", "Send"},
		{"Ctrl+N", "New session"},
		{"PgUp/PgDn", "Scroll"},
		{"Ctrl+C", "Quit"},
	}
	cells := make([]string, 0, len(hints))
	for _, hint := range hints {
		cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, keyStyle.Render(hint.Key), keyDescStyle.Render(" "+hint.Description+"  ")))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

var ansiEscapeCodes = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

func stripANSI(text string) string {
	return ansiEscapeCodes.ReplaceAllString(text, "")
}
