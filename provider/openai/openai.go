// Package openai implements provider.LLMProvider against the OpenAI REST
// API (chat completions + embeddings). External collaborator.
package openai

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

const (
	defaultChatURL  = "https://api.openai.com/v1/chat/completions"
	defaultEmbedURL = "https://api.openai.com/v1/embeddings"
)

// Provider calls OpenAI's chat completions and embeddings endpoints.
type Provider struct {
	APIKey     string
	ModelName  string
	EmbedModel string
	EmbedDim   int
	ChatURL    string
	EmbedURL   string
	HTTPClient *http.Client
}

// New returns a Provider using model for completion and embedModel (with
// dimension embedDim) for embeddings.
func New(apiKey, model, embedModel string, embedDim int) *Provider {
	return &Provider{APIKey: apiKey, ModelName: model, EmbedModel: embedModel, EmbedDim: embedDim}
}

func (p *Provider) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func (p *Provider) chatURL() string {
	if p.ChatURL != "" {
		return p.ChatURL
	}
	return defaultChatURL
}

func (p *Provider) embedURL() string {
	if p.EmbedURL != "" {
		return p.EmbedURL
	}
	return defaultEmbedURL
}

func (p *Provider) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("authorization", "Bearer "+p.APIKey)

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("http %d: %s", resp.StatusCode, out)
	}
	return out, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user-role chat message.
func (p *Provider) Complete(ctx context.Context, prompt string, opts provider.CompleteOptions) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:    p.ModelName,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", &engramerr.ProviderError{Provider: "openai", Op: "complete", Err: err}
	}

	raw, err := p.post(ctx, p.chatURL(), reqBody)
	if err != nil {
		return "", &engramerr.ProviderError{Provider: "openai", Op: "complete", Retryable: true, Err: err}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &engramerr.ProviderError{Provider: "openai", Op: "complete", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &engramerr.ProviderError{Provider: "openai", Op: "complete", Err: fmt.Errorf("empty choices in response")}
	}
	return parsed.Choices[0].Message.Content, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed requests a single embedding vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	reqBody, err := json.Marshal(embedRequest{Model: p.EmbedModel, Input: text})
	if err != nil {
		return nil, &engramerr.ProviderError{Provider: "openai", Op: "embed", Err: err}
	}

	raw, err := p.post(ctx, p.embedURL(), reqBody)
	if err != nil {
		return nil, &engramerr.ProviderError{Provider: "openai", Op: "embed", Retryable: true, Err: err}
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &engramerr.ProviderError{Provider: "openai", Op: "embed", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Data) == 0 {
		return nil, &engramerr.ProviderError{Provider: "openai", Op: "embed", Err: fmt.Errorf("empty data in response")}
	}
	return parsed.Data[0].Embedding, nil
}

// Model returns the configured completion model name.
func (p *Provider) Model() string { return p.ModelName }

// Dim returns the configured embedding dimension.
func (p *Provider) Dim() int { return p.EmbedDim }
