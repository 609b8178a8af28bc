package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"
)

type pageLayout struct {
	viewportWidth  int
	viewportHeight int
	inputWidth     int
}

func newPageLayout() pageLayout {
	return pageLayout{
		viewportWidth:  80,
		viewportHeight: 20,
		inputWidth:     70,
	}
}

// chromeRows counts everything View draws around the transcript while busy:
// header (2), Thinking line, status line, composer box (3), legend, and the
// blank separators between them.
const chromeRows = 13

// Update recomputes panel sizes. The transcript gets whatever the chrome
// leaves.
func (l *pageLayout) Update(width, height int) {
	innerWidth := width - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.viewportWidth = innerWidth
	l.inputWidth = innerWidth - 4
	contentHeight := height - chromeRows
	if contentHeight < 6 {
		contentHeight = 6
	}
	l.viewportHeight = contentHeight
}

// buildTranscript renders every message in order, with the sources of an
// assistant answer listed beneath it.
func (m *model) buildTranscript() string {
	var cb strings.Builder
	wrap := m.wrapWidth(4)
	for idx, msg := range m.messages {
		if idx > 0 {
			cb.WriteRune('\n')
		}
		label := roleLabel(msg.Role)
		if msg.Role == roleUser {
			cb.WriteString(userLabelStyle.Render(label))
		} else {
			cb.WriteString(assistantLabelStyle.Render(label))
		}
		cb.WriteRune('\n')
		cb.WriteString(indentMultiline(m.renderBody(msg, wrap), "  "))
		cb.WriteRune('\n')
		if len(msg.Sources) == 0 {
			continue
		}
		cb.WriteString(indentMultiline(sourcesHeaderStyle.Render("Sources"), "  "))
		cb.WriteRune('\n')
		for j, src := range msg.Sources {
			line := wordwrap.String("• "+src.Format(j), wrap-2)
			cb.WriteString(indentMultiline(sourceStyle.Render(line), "    "))
			cb.WriteRune('\n')
		}
	}
	return strings.TrimRight(cb.String(), "\n")
}

// renderBody formats assistant answers as markdown when enabled. User text and
// any render failure fall back to plain wrapping.
func (m *model) renderBody(msg message, wrap int) string {
	plain := wordwrap.String(msg.Content, wrap)
	if msg.Role != roleAssistant || !m.config.Markdown {
		return plain
	}
	renderer := m.markdownRenderer(wrap)
	if renderer == nil {
		return plain
	}
	out, err := renderer.Render(msg.Content)
	if err != nil {
		m.config.Logger.Debug().Err(err).Msg("markdown render failed")
		return plain
	}
	out = strings.Trim(out, "\n")
	if strings.TrimSpace(out) == "" {
		return plain
	}
	return out
}

func (m *model) markdownRenderer(width int) *glamour.TermRenderer {
	if m.markdown != nil && m.markdownWidth == width {
		return m.markdown
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.config.Logger.Debug().Err(err).Msg("markdown renderer unavailable")
		return nil
	}
	m.markdown = renderer
	m.markdownWidth = width
	return renderer
}

func (m *model) wrapWidth(padding int) int {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	if padding < 0 {
		padding = 0
	}
	available := width - padding
	if available < 20 {
		available = 20
	}
	return available
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func roleLabel(r role) string {
	switch r {
	case roleUser:
		return "You"
	case roleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}
