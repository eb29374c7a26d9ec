package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransport marks a recoverable network-layer failure; the retry
	// middleware retries these before the runner records them.
	ErrTransport = errors.New("llm transport error")

	// ErrFatalTransport marks authentication or quota rejection. Fatal for
	// the calling agent; never retried.
	ErrFatalTransport = errors.New("llm fatal transport error")

	// ErrSchema marks structured output that failed to parse or validate.
	ErrSchema = errors.New("llm schema error")
)

// Client is the injected LLM transport. All methods honor ctx cancellation
// and return promptly when it fires; latency is otherwise unbounded.
type Client interface {
	// Complete performs one completion. The response may contain text,
	// tool calls, or both.
	Complete(ctx context.Context, req Request) (*Response, error)

	// CompleteStructured performs one completion constrained to schema and
	// unmarshals the JSON output into out.
	CompleteStructured(ctx context.Context, req Request, schema *Schema, out any) error

	// Stream performs one completion delivered incrementally. The channel is
	// closed when the response is complete or ctx is cancelled. The core
	// consumes only final responses; streaming is a UX affordance.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Fatal reports whether err is a non-retryable transport rejection.
func Fatal(err error) bool { return errors.Is(err, ErrFatalTransport) }

// TransportError wraps err as a recoverable transport failure.
func TransportError(err error) error {
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
