package tui

import "github.com/csheth/ragchat/internal/backend"

type role string

const (
	roleUser      role = "user"
	roleAssistant role = "assistant"
)

// message is one transcript entry. Entries are never edited after append.
type message struct {
	Role    role
	Content string
	Sources []backend.Source
}

type backendStatus int

const (
	backendUnknown backendStatus = iota
	backendReachable
	backendUnreachable
	backendNotProbed
)

const (
	appTitle         = "RAG Chat Client"
	greetingText     = "Hi! Ask me something and I'll query the knowledge base."
	errorTemplate    = "⚠️ Error talking to backend: %s"
	unknownErrorText = "unknown error"
	thinkingText     = "Thinking…"
	inputPlaceholder = "Ask anything…"
)

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	inputCharLimit            = 2000
)

func greetingMessage() message {
	return message{Role: roleAssistant, Content: greetingText}
}
