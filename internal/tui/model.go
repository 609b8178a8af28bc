package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"

	"github.com/csheth/ragchat/internal/backend"
	"github.com/csheth/ragchat/internal/session"
)

// Chatter performs one conversational round-trip.
type Chatter interface {
	Chat(ctx context.Context, req backend.ChatRequest) (backend.ChatResponse, error)
}

// Prober sends the warm-up request; only whether a response arrived matters.
type Prober interface {
	Post(ctx context.Context, payload any) ([]byte, error)
}

// Config wires runtime options into the TUI program.
type Config struct {
	// Relay answers user turns.
	Relay Chatter
	// Probe receives the warm-up sentinel. Nil disables the warm-up.
	Probe Prober
	// Sessions persists the session identifier. Nil keeps it in memory.
	Sessions     session.Store
	NewSessionID func() string
	// BackendURL is only displayed.
	BackendURL    string
	WarmupMessage string
	Markdown      bool
	Logger        zerolog.Logger
}

// New returns a tea.Model ready to be mounted into a Program. The session
// identifier is resolved immediately.
func New(config Config) tea.Model {
	if config.Sessions == nil {
		config.Sessions = session.NewMemoryStore()
	}
	if config.NewSessionID == nil {
		config.NewSessionID = session.NewID
	}

	input := textinput.New()
	input.Placeholder = inputPlaceholder
	input.CharLimit = inputCharLimit
	input.Width = 70
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	layout := newPageLayout()
	vp := viewport.New(layout.viewportWidth, layout.viewportHeight)
	vp.MouseWheelEnabled = true

	m := &model{
		config:   config,
		layout:   layout,
		input:    input,
		spinner:  spin,
		viewport: vp,
		jobs:     newJobBus(config.Logger),
	}
	m.load()
	return m
}

type model struct {
	config   Config
	layout   pageLayout
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	jobs     *jobBus

	markdown      *glamour.TermRenderer
	markdownWidth int

	sessionID string
	// generation increments on every new session; results tagged with an older
	// generation belong to a discarded transcript.
	generation    int
	messages      []message
	busy          bool
	backendStatus backendStatus
	// turnJobID names the turn job whose snapshots belong to this session.
	turnJobID string
	lastTurn  jobSnapshot

	viewportDirty bool
	infoMessage   string
	errorMessage  string
}

// load resolves the session identifier and seeds a fresh transcript.
func (m *model) load() {
	id, err := session.Resolve(m.config.Sessions, m.config.NewSessionID)
	if err != nil {
		m.errorMessage = fmt.Sprintf("session storage: %v", err)
		m.config.Logger.Warn().Err(err).Msg("session identifier not persisted")
		if id == "" {
			id = m.config.NewSessionID()
		}
	}
	m.sessionID = id
	m.messages = []message{greetingMessage()}
	m.busy = false
	m.backendStatus = backendUnknown
	if !m.warmupEnabled() {
		m.backendStatus = backendNotProbed
	}
	m.turnJobID = ""
	m.lastTurn = jobSnapshot{}
	m.input.SetValue("")
	m.infoMessage = "Type a question and press Enter."
	m.markViewportDirty()
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.warmupCmd())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case jobSignalMsg:
		m.trackTurn(msg.Snapshot)
		return m, nil
	case jobResultEnvelope:
		m.trackTurn(msg.Snapshot)
		if msg.Payload == nil {
			return m, nil
		}
		return m.Update(msg.Payload)
	case turnResultMsg:
		m.handleTurnResult(msg)
		return m, nil
	case warmupResultMsg:
		m.handleWarmupResult(msg)
		return m, nil
	case tea.WindowSizeMsg:
		m.layout.Update(msg.Width, msg.Height)
		m.viewport.Width = m.layout.viewportWidth
		m.viewport.Height = m.layout.viewportHeight
		m.input.Width = m.layout.inputWidth
		m.markViewportDirty()
		return m, nil
	}
	return m, nil
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyEnter:
		return m, m.submit()
	case tea.KeyCtrlN:
		return m, m.resetSession()
	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyCtrlU, tea.KeyCtrlD:
		m.refreshViewportIfDirty()
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// submit moves idle to awaiting-response. It is a no-op while busy or when the
// input is blank.
func (m *model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return nil
	}
	m.input.SetValue("")
	m.appendMessage(message{Role: roleUser, Content: text})
	m.busy = true
	m.errorMessage = ""
	m.infoMessage = "Querying the knowledge base…"
	req := backend.ChatRequest{Message: text, SessionID: m.sessionID}
	id, cmd := m.jobs.Start(jobKindTurn, turnJob(m.config.Relay, m.generation, req))
	m.turnJobID = id
	return tea.Batch(m.spinner.Tick, cmd)
}

// trackTurn records snapshots of the current turn job only; jobs started
// before a new session are ignored.
func (m *model) trackTurn(snapshot jobSnapshot) {
	if snapshot.Kind != jobKindTurn || snapshot.ID == "" || snapshot.ID != m.turnJobID {
		return
	}
	m.lastTurn = snapshot
}

// handleTurnResult moves awaiting-response back to idle whatever the outcome.
func (m *model) handleTurnResult(msg turnResultMsg) {
	if msg.generation != m.generation {
		return
	}
	defer m.settle()
	if msg.err != nil {
		m.config.Logger.Warn().Err(msg.err).Msg("chat turn failed")
		m.appendMessage(message{
			Role:    roleAssistant,
			Content: fmt.Sprintf(errorTemplate, describeError(msg.err)),
		})
		m.infoMessage = "The backend did not answer. Try again."
		return
	}
	sources := msg.response.Sources
	if sources == nil {
		sources = []backend.Source{}
	}
	m.appendMessage(message{
		Role:    roleAssistant,
		Content: msg.response.Answer,
		Sources: sources,
	})
	m.infoMessage = fmt.Sprintf("Answer received with %d source(s).", len(sources))
}

func (m *model) settle() {
	m.busy = false
	m.markViewportDirty()
}

func (m *model) handleWarmupResult(msg warmupResultMsg) {
	if msg.generation != m.generation {
		return
	}
	m.backendStatus = msg.status
}

func (m *model) warmupEnabled() bool {
	return m.config.Probe != nil && m.config.WarmupMessage != ""
}

func (m *model) warmupCmd() tea.Cmd {
	if !m.warmupEnabled() {
		return nil
	}
	req := backend.ChatRequest{Message: m.config.WarmupMessage, SessionID: m.sessionID}
	_, cmd := m.jobs.Start(jobKindWarmup, warmupJob(m.config.Probe, m.generation, req))
	return cmd
}

// resetSession forgets the persisted identifier and reloads: new identifier,
// greeting-only transcript, idle, and a fresh warm-up.
func (m *model) resetSession() tea.Cmd {
	if err := session.Reset(m.config.Sessions); err != nil {
		m.errorMessage = fmt.Sprintf("new session failed: %v", err)
		return nil
	}
	m.generation++
	m.errorMessage = ""
	m.load()
	m.infoMessage = "Started a new session."
	m.viewport.GotoTop()
	return m.warmupCmd()
}

func (m *model) appendMessage(msg message) {
	m.messages = append(m.messages, msg)
	m.markViewportDirty()
}

func (m *model) markViewportDirty() {
	m.viewportDirty = true
}

func (m *model) refreshViewportIfDirty() {
	if m.viewportDirty {
		m.refreshViewport()
	}
}

func (m *model) refreshViewport() {
	m.viewport.SetContent(m.buildTranscript())
	m.viewport.GotoBottom()
	m.viewportDirty = false
}
