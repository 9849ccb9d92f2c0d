package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy controls transient-failure handling for a wrapped provider.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries rate limits and server errors a few times
// with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryingProvider wraps a Provider and retries SendMessage on transient
// failures. Client errors (4xx other than 429) are not retried.
type retryingProvider struct {
	inner  Provider
	policy RetryPolicy
	logger *slog.Logger
}

// WithRetry wraps a provider with the given retry policy. A MaxAttempts
// of zero or one returns the provider unchanged. A streaming inner
// provider keeps its StreamingProvider interface through the wrapper.
func WithRetry(p Provider, policy RetryPolicy, logger *slog.Logger) Provider {
	if policy.MaxAttempts <= 1 {
		return p
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := retryingProvider{inner: p, policy: policy, logger: logger}
	if sp, ok := p.(StreamingProvider); ok {
		return &retryingStreamProvider{retryingProvider: r, innerStream: sp}
	}
	return &r
}

func (r *retryingProvider) Name() string { return r.inner.Name() }

func (r *retryingProvider) SendMessage(ctx context.Context, messages []Message, tools []ToolDefinition) (*CompletionResponse, error) {
	attempt := 0
	operation := func() (*CompletionResponse, error) {
		attempt++
		resp, err := r.inner.SendMessage(ctx, messages, tools)
		if err != nil {
			if !retryable(err) {
				return nil, backoff.Permanent(err)
			}
			r.logger.Warn("provider call failed, retrying",
				"provider", r.inner.Name(),
				"attempt", attempt,
				"error", err)
			return nil, err
		}
		return resp, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
	)
}

func (r *retryingProvider) newBackOff() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.policy.InitialInterval
	expo.MaxInterval = r.policy.MaxInterval
	return expo
}

// retryingStreamProvider additionally forwards StreamMessage. Only the
// call that opens the stream is retried; chunks already delivered to a
// consumer are never replayed.
type retryingStreamProvider struct {
	retryingProvider
	innerStream StreamingProvider
}

func (r *retryingStreamProvider) StreamMessage(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	attempt := 0
	operation := func() (<-chan StreamChunk, error) {
		attempt++
		ch, err := r.innerStream.StreamMessage(ctx, messages, tools)
		if err != nil {
			if !retryable(err) {
				return nil, backoff.Permanent(err)
			}
			r.logger.Warn("provider stream failed, retrying",
				"provider", r.inner.Name(),
				"attempt", attempt,
				"error", err)
			return nil, err
		}
		return ch, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
	)
}

// retryable reports whether an error is worth another attempt. Rate
// limits and server-side failures are; everything else is not.
func retryable(err error) bool {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		return false
	}
	switch {
	case perr.StatusCode == 429:
		return true
	case perr.StatusCode >= 500:
		return true
	case perr.StatusCode == 0:
		// No HTTP status recorded, likely a network failure.
		return true
	}
	return false
}
