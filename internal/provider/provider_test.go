package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_CompleteParsesUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "hi there"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, time.Second)
	result, err := p.Complete(context.Background(), CompletionRequest{Model: "gpt-4o-mini", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Content)
	assert.Equal(t, int64(12), result.InputTokens)
	assert.Equal(t, int64(4), result.OutputTokens)
}

func TestOpenAIProvider_AvailableFalseOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, time.Second)
	assert.False(t, p.Available(context.Background()))
}

func TestOpenAIProvider_AvailableTrueOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, time.Second)
	assert.True(t, p.Available(context.Background()))
}

func TestOllamaProvider_CompleteParsesUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response": "hi", "prompt_eval_count": 7, "eval_count": 3}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, time.Second)
	result, err := p.Complete(context.Background(), CompletionRequest{Model: "llama3.2", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Content)
	assert.Equal(t, int64(7), result.InputTokens)
	assert.Equal(t, int64(3), result.OutputTokens)
}
