package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ChatPath is appended to the backend base URL for every chat round-trip.
const ChatPath = "/chat"

// Config describes how to build a Client.
type Config struct {
	// BaseURL is the scheme+host (and optional prefix) of the service.
	BaseURL string
	// Path defaults to ChatPath.
	Path       string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// ChatRequest is the JSON body accepted by the backend and by the relay.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the JSON body returned on success.
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
}

// Source is opaque citation metadata attached to an answer.
type Source struct {
	ID    *string  `json:"id,omitempty"`
	Title *string  `json:"title,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// Label returns the display name of the source at the given zero-based position.
func (s Source) Label(position int) string {
	if s.Title != nil && *s.Title != "" {
		return *s.Title
	}
	if s.ID != nil && *s.ID != "" {
		return *s.ID
	}
	return fmt.Sprintf("Document %d", position+1)
}

// Format renders the source line shown under an answer.
func (s Source) Format(position int) string {
	label := s.Label(position)
	if s.Score == nil {
		return label
	}
	return fmt.Sprintf("%s (score: %.3f)", label, *s.Score)
}

// StatusError reports a non-2xx response. Body holds the raw response text and is
// empty when it could not be read.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if msg := e.Message(); msg != "" {
		return msg
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Message extracts the "error" field of a JSON error body.
func (e *StatusError) Message() string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &parsed); err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Error)
}

// New builds a client for the fixed chat contract.
func New(cfg Config) *Client {
	path := cfg.Path
	if path == "" {
		path = ChatPath
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + path,
		client:   pickHTTPClient(cfg.HTTPClient, cfg.Timeout),
		logger:   cfg.Logger,
	}
}

func pickHTTPClient(custom *http.Client, timeout time.Duration) *http.Client {
	if custom != nil {
		return custom
	}
	// Zero timeout leaves the round-trip unbounded; callers cancel through the context.
	return &http.Client{Timeout: timeout}
}
