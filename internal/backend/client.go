package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Client performs POST round-trips against one chat endpoint.
type Client struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// Endpoint reports the full URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Chat sends req and decodes the answer. Missing sources decode to an empty list.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := c.Post(ctx, req)
	if err != nil {
		return ChatResponse{}, err
	}
	var parsed ChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ChatResponse{}, errors.Wrap(err, "decode chat response")
	}
	if parsed.Sources == nil {
		parsed.Sources = []Source{}
	}
	return parsed, nil
}

// Post marshals payload as JSON and returns the raw 2xx body. Non-2xx responses
// yield a *StatusError.
func (c *Client) Post(ctx context.Context, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, errors.Wrap(err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	c.logger.Debug().Str("url", c.endpoint).Int("bytes", len(buf)).Msg("posting chat request")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if readErr != nil {
			body = nil
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if readErr != nil {
		return nil, errors.Wrap(readErr, "read chat response")
	}
	return body, nil
}
