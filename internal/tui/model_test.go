package tui

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/ragchat/internal/backend"
	"github.com/csheth/ragchat/internal/session"
)

type fakeChatter struct {
	mu       sync.Mutex
	requests []backend.ChatRequest
	response backend.ChatResponse
	err      error
}

func (f *fakeChatter) Chat(ctx context.Context, req backend.ChatRequest) (backend.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.response, f.err
}

func (f *fakeChatter) calls() []backend.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.ChatRequest(nil), f.requests...)
}

type fakeProbe struct {
	mu       sync.Mutex
	payloads []any
	err      error
}

func (f *fakeProbe) Post(ctx context.Context, payload any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return []byte(`{}`), f.err
}

func sequentialIDs(ids ...string) func() string {
	idx := 0
	return func() string {
		if idx >= len(ids) {
			return ""
		}
		id := ids[idx]
		idx++
		return id
	}
}

func newTestModel(t *testing.T, cfg Config) *model {
	t.Helper()
	teaModel, ok := New(cfg).(*model)
	if !ok {
		t.Fatalf("expected *model, got %T", teaModel)
	}
	return teaModel
}

var cmdType = reflect.TypeOf(tea.Cmd(nil))

// collect runs cmd and every batched or sequenced child, returning the leaf
// messages in order.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if msg == nil {
		return nil
	}
	if v := reflect.ValueOf(msg); v.Kind() == reflect.Slice && v.Type().Elem() == cmdType {
		var out []tea.Msg
		for i := 0; i < v.Len(); i++ {
			child, _ := v.Index(i).Interface().(tea.Cmd)
			out = append(out, collect(child)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// deliver feeds every message produced by cmd back into the model.
func deliver(m *model, cmd tea.Cmd) {
	for _, msg := range collect(cmd) {
		m.Update(msg)
	}
}

func typeText(m *model, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func pressEnter(m *model) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func TestNewSeedsGreetingAndPersistsSession(t *testing.T) {
	store := session.NewMemoryStore()
	m := newTestModel(t, Config{Sessions: store, NewSessionID: sequentialIDs("sid-1")})

	if len(m.messages) != 1 || m.messages[0].Role != roleAssistant || m.messages[0].Content != greetingText {
		t.Fatalf("expected greeting-only transcript, got %#v", m.messages)
	}
	if m.busy {
		t.Fatal("model should start idle")
	}
	if m.sessionID != "sid-1" {
		t.Fatalf("session id mismatch: %q", m.sessionID)
	}
	stored, ok, _ := store.Get(session.Key)
	if !ok || stored != "sid-1" {
		t.Fatalf("session id not persisted: %q %v", stored, ok)
	}

	again := newTestModel(t, Config{Sessions: store, NewSessionID: sequentialIDs("sid-2")})
	if again.sessionID != "sid-1" {
		t.Fatalf("second start should reuse persisted id, got %q", again.sessionID)
	}
}

func TestSubmitSendsMessageWithSession(t *testing.T) {
	title := "Geo Doc"
	score := 0.912
	relay := &fakeChatter{response: backend.ChatResponse{
		Answer:  "Paris is the capital of France.",
		Sources: []backend.Source{{Title: &title, Score: &score}},
	}}
	m := newTestModel(t, Config{Relay: relay, NewSessionID: sequentialIDs("sid-9")})

	typeText(m, "  capital of France?  ")
	cmd := pressEnter(m)
	if !m.busy {
		t.Fatal("model should be busy while awaiting the answer")
	}
	if m.input.Value() != "" {
		t.Fatalf("input should be cleared, got %q", m.input.Value())
	}
	if got := m.messages[len(m.messages)-1]; got.Role != roleUser || got.Content != "capital of France?" {
		t.Fatalf("user message not appended verbatim: %#v", got)
	}
	if !strings.Contains(stripANSI(m.View()), thinkingText) {
		t.Fatal("busy view should show the thinking indicator")
	}

	deliver(m, cmd)

	calls := relay.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one relay call, got %d", len(calls))
	}
	if calls[0].Message != "capital of France?" || calls[0].SessionID != "sid-9" {
		t.Fatalf("unexpected request: %#v", calls[0])
	}
	if m.busy {
		t.Fatal("model should be idle after the answer")
	}
	if len(m.messages) != 3 {
		t.Fatalf("expected greeting, question, answer; got %d messages", len(m.messages))
	}
	answer := m.messages[2]
	if answer.Role != roleAssistant || answer.Content != "Paris is the capital of France." {
		t.Fatalf("unexpected answer: %#v", answer)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].Format(0) != "Geo Doc (score: 0.912)" {
		t.Fatalf("unexpected sources: %#v", answer.Sources)
	}
}

func TestSubmitIgnoresBlankInput(t *testing.T) {
	relay := &fakeChatter{}
	m := newTestModel(t, Config{Relay: relay})

	typeText(m, "   ")
	if cmd := pressEnter(m); cmd != nil {
		t.Fatalf("blank submit should not start a job, got %T", cmd)
	}
	if m.busy || len(m.messages) != 1 {
		t.Fatalf("blank submit should not change state (busy=%v, messages=%d)", m.busy, len(m.messages))
	}
}

func TestSubmitWhileBusyIsNoop(t *testing.T) {
	relay := &fakeChatter{response: backend.ChatResponse{Answer: "first"}}
	m := newTestModel(t, Config{Relay: relay})

	typeText(m, "one")
	first := pressEnter(m)
	typeText(m, "two")
	messagesBefore, busyBefore := len(m.messages), m.busy
	if cmd := pressEnter(m); cmd != nil {
		t.Fatal("second submit while busy should be ignored")
	}
	if len(m.messages) != messagesBefore {
		t.Fatalf("transcript changed while busy: %d -> %d", messagesBefore, len(m.messages))
	}
	if m.busy != busyBefore || !m.busy {
		t.Fatalf("busy flag changed while busy: %v -> %v", busyBefore, m.busy)
	}
	if m.input.Value() != "two" {
		t.Fatalf("pending input should be kept, got %q", m.input.Value())
	}
	deliver(m, first)
	if n := len(relay.calls()); n != 1 {
		t.Fatalf("expected a single relay call, got %d", n)
	}
}

func TestAnswerWithoutSourcesDefaultsToEmpty(t *testing.T) {
	m := newTestModel(t, Config{Relay: &fakeChatter{response: backend.ChatResponse{Answer: "ok"}}})

	typeText(m, "hi")
	deliver(m, pressEnter(m))

	answer := m.messages[len(m.messages)-1]
	if answer.Sources == nil || len(answer.Sources) != 0 {
		t.Fatalf("sources should default to an empty list, got %#v", answer.Sources)
	}
}

func TestFailedTurnAppendsErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "relay error field", err: &backend.StatusError{StatusCode: 502, Body: `{"error":"Upstream 500: boom"}`}, want: "⚠️ Error talking to backend: Upstream 500: boom"},
		{name: "bare status", err: &backend.StatusError{StatusCode: 503, Body: "unavailable"}, want: "⚠️ Error talking to backend: HTTP 503"},
		{name: "transport", err: errors.New("connection refused"), want: "⚠️ Error talking to backend: connection refused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestModel(t, Config{Relay: &fakeChatter{err: tc.err}})
			typeText(m, "hi")
			deliver(m, pressEnter(m))

			if m.busy {
				t.Fatal("model should be idle after a failure")
			}
			last := m.messages[len(m.messages)-1]
			if last.Role != roleAssistant || last.Content != tc.want {
				t.Fatalf("unexpected error message: %#v", last)
			}
		})
	}
}

func TestMissingRelayFailsTurn(t *testing.T) {
	m := newTestModel(t, Config{})
	typeText(m, "hi")
	deliver(m, pressEnter(m))

	last := m.messages[len(m.messages)-1]
	if !strings.HasPrefix(last.Content, "⚠️ Error talking to backend: ") {
		t.Fatalf("expected error message, got %q", last.Content)
	}
	if m.busy {
		t.Fatal("model should be idle")
	}
}

func TestNewSessionResetsTranscript(t *testing.T) {
	store := session.NewMemoryStore()
	probe := &fakeProbe{}
	m := newTestModel(t, Config{
		Relay:         &fakeChatter{response: backend.ChatResponse{Answer: "ok"}},
		Probe:         probe,
		Sessions:      store,
		NewSessionID:  sequentialIDs("sid-1", "sid-2"),
		WarmupMessage: "__ping__",
	})
	typeText(m, "hi")
	deliver(m, pressEnter(m))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	if m.sessionID != "sid-2" {
		t.Fatalf("expected a fresh session id, got %q", m.sessionID)
	}
	if stored, _, _ := store.Get(session.Key); stored != "sid-2" {
		t.Fatalf("fresh id not persisted: %q", stored)
	}
	if len(m.messages) != 1 || m.messages[0].Content != greetingText {
		t.Fatalf("transcript should be greeting-only, got %#v", m.messages)
	}
	if m.busy {
		t.Fatal("model should be idle after reset")
	}
	deliver(m, cmd)
	if len(probe.payloads) != 1 {
		t.Fatalf("reset should warm up again, got %d probes", len(probe.payloads))
	}
	req, _ := probe.payloads[0].(backend.ChatRequest)
	if req.SessionID != "sid-2" {
		t.Fatalf("warm-up should carry the new session, got %#v", req)
	}
}

func TestStaleTurnResultIsDiscarded(t *testing.T) {
	m := newTestModel(t, Config{Relay: &fakeChatter{}, NewSessionID: sequentialIDs("sid-1", "sid-2")})
	typeText(m, "hi")
	pressEnter(m)
	staleGeneration := m.generation

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	m.Update(jobResultEnvelope{
		Snapshot: jobSnapshot{Kind: jobKindTurn, Status: jobStatusSucceeded},
		Payload:  turnResultMsg{generation: staleGeneration, response: backend.ChatResponse{Answer: "late"}},
	})

	if len(m.messages) != 1 {
		t.Fatalf("late answer leaked into the new session: %#v", m.messages)
	}
	if m.busy {
		t.Fatal("model should stay idle")
	}
}

func TestWarmupSendsSentinelAndIgnoresFailure(t *testing.T) {
	probe := &fakeProbe{err: errors.New("dial tcp: connection refused")}
	m := newTestModel(t, Config{Probe: probe, NewSessionID: sequentialIDs("sid-1"), WarmupMessage: "__ping__"})

	deliver(m, m.Init())

	if len(probe.payloads) != 1 {
		t.Fatalf("expected one warm-up call, got %d", len(probe.payloads))
	}
	req, ok := probe.payloads[0].(backend.ChatRequest)
	if !ok || req.Message != "__ping__" || req.SessionID != "sid-1" {
		t.Fatalf("unexpected warm-up payload: %#v", probe.payloads[0])
	}
	if len(m.messages) != 1 || m.busy {
		t.Fatal("warm-up must not touch the transcript or busy flag")
	}
	if m.backendStatus != backendUnreachable {
		t.Fatalf("expected unreachable status, got %v", m.backendStatus)
	}
}

func TestWarmupDisabledWithoutSentinel(t *testing.T) {
	probe := &fakeProbe{}
	m := newTestModel(t, Config{Probe: probe})
	deliver(m, m.Init())
	if len(probe.payloads) != 0 {
		t.Fatalf("warm-up should be disabled, got %d calls", len(probe.payloads))
	}
}

func TestNewSessionWhileBusyAllowsFreshTurn(t *testing.T) {
	relay := &fakeChatter{response: backend.ChatResponse{Answer: "answer"}}
	m := newTestModel(t, Config{Relay: relay, NewSessionID: sequentialIDs("sid-1", "sid-2")})

	typeText(m, "old question")
	inFlight := pressEnter(m)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	if m.busy {
		t.Fatal("new session should clear the busy flag")
	}

	typeText(m, "new question")
	fresh := pressEnter(m)
	if fresh == nil || !m.busy {
		t.Fatal("a turn should start in the new session")
	}
	deliver(m, fresh)
	deliver(m, inFlight)

	calls := relay.calls()
	if len(calls) != 2 {
		t.Fatalf("expected both round-trips to run, got %d", len(calls))
	}
	if calls[0].SessionID != "sid-2" || calls[1].SessionID != "sid-1" {
		t.Fatalf("unexpected session ids: %#v", calls)
	}
	if len(m.messages) != 3 {
		t.Fatalf("expected greeting, question, answer; got %#v", m.messages)
	}
	if m.messages[1].Content != "new question" || m.busy {
		t.Fatalf("old turn leaked into the new session: %#v busy=%v", m.messages, m.busy)
	}
	if m.lastTurn.Status != jobStatusSucceeded || m.lastTurn.ID != m.turnJobID {
		t.Fatalf("last turn should describe the fresh job, got %#v", m.lastTurn)
	}
}

func TestStatusLineReportsLastTurn(t *testing.T) {
	m := newTestModel(t, Config{Relay: &fakeChatter{err: errors.New("connection refused")}})
	typeText(m, "hi")
	deliver(m, pressEnter(m))

	if m.lastTurn.Status != jobStatusFailed || m.lastTurn.Err == "" {
		t.Fatalf("failed turn not recorded: %#v", m.lastTurn)
	}
	if view := stripANSI(m.View()); !strings.Contains(view, "Last turn failed after") {
		t.Fatalf("view missing turn outcome:\n%s", view)
	}

	m.Update(jobResultEnvelope{Snapshot: jobSnapshot{ID: "turn-99", Kind: jobKindTurn, Status: jobStatusSucceeded}})
	if m.lastTurn.Status != jobStatusFailed {
		t.Fatal("snapshots from other jobs should be ignored")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	if m.lastTurn.Status != "" || strings.Contains(stripANSI(m.View()), "Last turn") {
		t.Fatal("new session should clear the last turn")
	}
}

func TestBackendStatusLabels(t *testing.T) {
	disabled := newTestModel(t, Config{Probe: &fakeProbe{}, BackendURL: "http://b"})
	if disabled.backendStatus != backendNotProbed {
		t.Fatalf("expected not-probed status, got %v", disabled.backendStatus)
	}
	if view := stripANSI(disabled.View()); !strings.Contains(view, "http://b (not probed)") {
		t.Fatalf("header should say the backend is not probed:\n%s", view)
	}

	probe := &fakeProbe{}
	enabled := newTestModel(t, Config{Probe: probe, WarmupMessage: "__ping__", BackendURL: "http://b"})
	if view := stripANSI(enabled.View()); !strings.Contains(view, "http://b (checking)") {
		t.Fatalf("header should say the backend is being checked:\n%s", view)
	}
	deliver(enabled, enabled.Init())
	if view := stripANSI(enabled.View()); !strings.Contains(view, "http://b (reachable)") {
		t.Fatalf("header should report a reachable backend:\n%s", view)
	}
}

func TestViewShowsHeaderAndLegend(t *testing.T) {
	m := newTestModel(t, Config{NewSessionID: sequentialIDs("sid-7"), BackendURL: "http://localhost:8000"})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	view := stripANSI(m.View())
	for _, want := range []string{appTitle, "Session: sid-7", "http://localhost:8000", greetingText, "Ctrl+N", "New session"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, thinkingText) {
		t.Fatal("idle view should not show the thinking indicator")
	}
}
