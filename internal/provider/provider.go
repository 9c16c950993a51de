// Package provider implements the model-completion backends the routing
// engine invokes once it has decided which tier to use: an
// OpenAI-compatible HTTP client and a local Ollama client. Any backend
// exposing the same three-method contract can be wired in instead.
package provider

import (
	"context"
	"net/http"
	"time"
)

// CompletionRequest is what the Routing Engine sends once it has chosen a
// model to invoke.
type CompletionRequest struct {
	Model     string
	Prompt    string
	MaxTokens int
}

// CompletionResult is a provider's answer, with token counts the Cost
// Calculator needs.
type CompletionResult struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
}

// Provider is the minimal contract the Routing Engine needs from a model
// backend: complete a prompt, and report availability for the circuit
// breaker.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
	Available(ctx context.Context) bool
}

// buildHTTPClient builds an HTTP client with a bounded timeout.
func buildHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
