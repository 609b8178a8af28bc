package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/csheth/ragchat/internal/backend"
)

var errRelayUnavailable = errors.New("relay client is not configured")

type turnResultMsg struct {
	generation int
	response   backend.ChatResponse
	err        error
}

type warmupResultMsg struct {
	generation int
	status     backendStatus
}

func turnJob(client Chatter, generation int, req backend.ChatRequest) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		if client == nil {
			return turnResultMsg{generation: generation, err: errRelayUnavailable}, errRelayUnavailable
		}
		resp, err := client.Chat(ctx, req)
		return turnResultMsg{generation: generation, response: resp, err: err}, err
	}
}

// warmupJob never reports an error to the bus; its only output is the status.
func warmupJob(probe Prober, generation int, req backend.ChatRequest) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		_, err := probe.Post(ctx, req)
		status := backendReachable
		if err != nil {
			var statusErr *backend.StatusError
			if !errors.As(err, &statusErr) {
				status = backendUnreachable
			}
		}
		return warmupResultMsg{generation: generation, status: status}, nil
	}
}

// describeError picks the most useful text for a failed turn.
func describeError(err error) string {
	if err == nil {
		return unknownErrorText
	}
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		if msg := statusErr.Message(); msg != "" {
			return msg
		}
		return fmt.Sprintf("HTTP %d", statusErr.StatusCode)
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return unknownErrorText
}
