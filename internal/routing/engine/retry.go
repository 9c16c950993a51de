package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"signalhub/internal/provider"
)

// completeWithRetry invokes p.Complete with bounded exponential
// backoff-with-jitter, for when a chosen model's provider call fails
// transiently after routing has committed to it.
func completeWithRetry(ctx context.Context, p provider.Provider, req provider.CompletionRequest, maxElapsed time.Duration) (provider.CompletionResult, error) {
	if maxElapsed <= 0 {
		maxElapsed = 5 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	bctx := backoff.WithContext(b, ctx)

	var result provider.CompletionResult
	err := backoff.Retry(func() error {
		r, err := p.Complete(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	}, bctx)
	return result, err
}
