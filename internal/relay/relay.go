// Package relay exposes the HTTP endpoint that forwards chat turns to the RAG
// backend and normalizes its failures.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/csheth/ragchat/internal/backend"
)

// ChatRoute is the inbound path served by the relay.
const ChatRoute = "/api/chat"

const (
	errMessageRequired = "message is required"
	errUnexpected      = "Unexpected error"
)

// Upstream is the backend the relay forwards to.
type Upstream interface {
	Endpoint() string
	Post(ctx context.Context, payload any) ([]byte, error)
}

// inboundRequest keeps fields untyped so that a non-string message is a
// validation failure rather than a decode failure.
type inboundRequest struct {
	Message   any             `json:"message"`
	SessionID json.RawMessage `json:"session_id"`
}

type forwardRequest struct {
	Message   string          `json:"message"`
	SessionID json.RawMessage `json:"session_id,omitempty"`
}

// Handler serves the chat relay.
type Handler struct {
	upstream Upstream
	logger   zerolog.Logger
}

// NewHandler wires the relay to its upstream.
func NewHandler(upstream Upstream, logger zerolog.Logger) *Handler {
	return &Handler{upstream: upstream, logger: logger}
}

// Chat is the gin handler for POST /api/chat.
func (h *Handler) Chat(c *gin.Context) {
	var req inboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusInternalServerError, errors.Wrap(err, "decode request").Error())
		return
	}
	message, ok := req.Message.(string)
	if !ok || message == "" {
		h.fail(c, http.StatusBadRequest, errMessageRequired)
		return
	}

	payload := forwardRequest{Message: message}
	if len(req.SessionID) > 0 {
		payload.SessionID = req.SessionID
	}

	h.logger.Info().Str("url", h.upstream.Endpoint()).Msg("forwarding chat request to backend")
	body, err := h.upstream.Post(c.Request.Context(), payload)
	if err != nil {
		var statusErr *backend.StatusError
		if errors.As(err, &statusErr) {
			h.fail(c, http.StatusBadGateway, fmt.Sprintf("Upstream %d: %s", statusErr.StatusCode, statusErr.Body))
			return
		}
		h.fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if !json.Valid(body) {
		h.fail(c, http.StatusInternalServerError, "backend returned a non-JSON body")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *Handler) fail(c *gin.Context, status int, message string) {
	if strings.TrimSpace(message) == "" {
		message = errUnexpected
	}
	h.logger.Warn().Int("status", status).Str("error", message).Msg("chat relay failed")
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "ragchat relay",
	})
}
