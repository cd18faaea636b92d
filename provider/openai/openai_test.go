package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/engram-hq/engram/engramerr"
	"github.com/engram-hq/engram/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, chatHandler, embedHandler http.HandlerFunc) *Provider {
	t.Helper()
	mux := http.NewServeMux()
	if chatHandler != nil {
		mux.HandleFunc("/chat", chatHandler)
	}
	if embedHandler != nil {
		mux.HandleFunc("/embed", embedHandler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &Provider{
		APIKey: "test-key", ModelName: "gpt-test", EmbedModel: "embed-test", EmbedDim: 3,
		ChatURL: srv.URL + "/chat", EmbedURL: srv.URL + "/embed",
	}
}

func TestCompleteSuccess(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.Equal(t, "user", req.Messages[0].Role)

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "hi there"}}},
		})
	}, nil)

	out, err := p.Complete(context.Background(), "hello", provider.CompleteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestCompleteHTTPErrorIsRetryable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"overloaded"}`))
	}, nil)

	_, err := p.Complete(context.Background(), "hello", provider.CompleteOptions{})
	require.Error(t, err)
	var perr *engramerr.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable)
	assert.Equal(t, "openai", perr.Provider)
}

func TestEmbedSuccess(t *testing.T) {
	p := newTestProvider(t, nil, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embed-test", req.Model)

		json.NewEncoder(w).Encode(embedResponse{
			Data: []struct {
				Embedding []float64 `json:"embedding"`
			}{{Embedding: []float64{0.1, 0.2, 0.3}}},
		})
	})

	out, err := p.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, out)
}

func TestEmbedEmptyDataErrors(t *testing.T) {
	p := newTestProvider(t, nil, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{})
	})

	_, err := p.Embed(context.Background(), "some text")
	require.Error(t, err)
	var perr *engramerr.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "embed", perr.Op)
}

func TestModelAndDim(t *testing.T) {
	p := &Provider{ModelName: "gpt-test", EmbedDim: 1536}
	assert.Equal(t, "gpt-test", p.Model())
	assert.Equal(t, 1536, p.Dim())
}
