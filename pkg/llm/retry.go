package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the retry middleware.
type RetryConfig struct {
	MaxRetries      int           // retries after the first attempt; default 3
	InitialInterval time.Duration // default 1s
	MaxInterval     time.Duration // default 30s
}

// DefaultRetryConfig matches the pipeline's transport policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// retryingClient wraps a Client with exponential-backoff retry of recoverable
// transport errors. Fatal transport and schema errors pass through untouched.
type retryingClient struct {
	inner Client
	cfg   RetryConfig
}

// WithRetry wraps client with the retry policy. A zero-valued cfg gets the
// defaults.
func WithRetry(client Client, cfg RetryConfig) Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	return &retryingClient{inner: client, cfg: cfg}
}

func (c *retryingClient) newBackoff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxInterval = c.cfg.MaxInterval
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)
}

// retry runs op under the backoff policy. Only recoverable transport errors
// are retried; anything else is permanent.
func (c *retryingClient) retry(ctx context.Context, op func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if Fatal(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		slog.Warn("LLM call failed, retrying", "attempt", attempt, "error", err)
		return err
	}, c.newBackoff(ctx))
}

func (c *retryingClient) Complete(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := c.retry(ctx, func() error {
		var opErr error
		resp, opErr = c.inner.Complete(ctx, req)
		return opErr
	})
	return resp, err
}

func (c *retryingClient) CompleteStructured(ctx context.Context, req Request, schema *Schema, out any) error {
	return c.retry(ctx, func() error {
		return c.inner.CompleteStructured(ctx, req, schema, out)
	})
}

// Stream is not retried: a broken stream surfaces to the caller, which falls
// back to Complete.
func (c *retryingClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	return c.inner.Stream(ctx, req)
}
