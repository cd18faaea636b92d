// Package anthropic implements provider.LLMProvider against the Anthropic
// Messages REST API. It is an external collaborator: the core depends only
// on the provider.LLMProvider interface, never on this package directly.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/provider"
)

const defaultBaseURL = "https://api.anthropic.com/v1/messages"

// Provider calls the Anthropic Messages API for completion. Anthropic does
// not expose a first-party embedding endpoint, so Embed always returns a
// ProviderError — callers needing embeddings must configure a different
// provider for that capability.
type Provider struct {
	APIKey     string
	ModelName  string
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a Provider for the given API key and model name (e.g.
// "claude-sonnet-4").
func New(apiKey, model string) *Provider {
	return &Provider{APIKey: apiKey, ModelName: model}
}

func (p *Provider) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func (p *Provider) baseURL() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return defaultBaseURL
}

type messageRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature,omitempty"`
	Messages    []requestMessage `json:"messages"`
}

type requestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Complete sends prompt as a single user-role message and concatenates the
// text blocks of the response.
func (p *Provider) Complete(ctx context.Context, prompt string, opts provider.CompleteOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	reqBody, err := json.Marshal(messageRequest{
		Model:       p.ModelName,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		Messages:    []requestMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", &engramerr.ProviderError{Provider: "anthropic", Op: "complete", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL(), bytes.NewReader(reqBody))
	if err != nil {
		return "", &engramerr.ProviderError{Provider: "anthropic", Op: "complete", Err: err}
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", p.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client().Do(req)
	if err != nil {
		return "", &engramerr.ProviderError{Provider: "anthropic", Op: "complete", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &engramerr.ProviderError{Provider: "anthropic", Op: "complete", Retryable: true, Err: err}
	}

	var parsed messageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &engramerr.ProviderError{Provider: "anthropic", Op: "complete", Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		reason := resp.Status
		if parsed.Error != nil {
			reason = parsed.Error.Message
		}
		return "", &engramerr.ProviderError{Provider: "anthropic", Op: "complete", Retryable: retryable, Err: fmt.Errorf("%s", reason)}
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// Embed is not supported: Anthropic has no first-party embeddings endpoint.
func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	return nil, &engramerr.ProviderError{
		Provider: "anthropic", Op: "embed",
		Err: fmt.Errorf("anthropic provider does not support embeddings; configure an embedding-capable provider"),
	}
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.ModelName }

// Dim returns 0: this provider never produces vectors.
func (p *Provider) Dim() int { return 0 }
