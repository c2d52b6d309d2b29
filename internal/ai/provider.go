// Package ai is a thin client for the black-box completion endpoint that
// supplies AI message content. The room core never talks to it directly; the
// /api/chat handler proxies it and clients relay replies as ordinary
// messages.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UpstreamError reports a provider failure: a non-2xx status, an unreadable
// body, or an empty completion. It never affects room state.
type UpstreamError struct {
	StatusCode int
	Reason     string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ai provider returned status %d: %s", e.StatusCode, e.Reason)
	}
	return "ai provider: " + e.Reason
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Response string `json:"response"`
}

// Provider calls the configured completion endpoint.
type Provider struct {
	url    string
	apiKey string
	client *http.Client
}

// NewProvider creates a provider client for the given endpoint URL. An empty
// apiKey omits the Authorization header.
func NewProvider(url, apiKey string, timeout time.Duration) *Provider {
	return &Provider{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Complete sends the prompt upstream and returns the completion text.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &UpstreamError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Reason: "unreadable body"}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Reason: string(raw)}
	}

	var completion completionResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Reason: "malformed body"}
	}
	if completion.Response == "" {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Reason: "empty completion"}
	}

	return completion.Response, nil
}
