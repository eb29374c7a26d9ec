package agent

import (
	"context"
	"errors"
	"log/slog"

	"github.com/entropyops/debtscan/pkg/bus"
	"github.com/entropyops/debtscan/pkg/llm"
	"github.com/entropyops/debtscan/pkg/models"
	"github.com/entropyops/debtscan/pkg/prompt"
)

// DiscoveryOption customizes a discovery runner.
type DiscoveryOption func(*DiscoveryRunner)

// WithContentPlaceholder changes the template key the file content is bound
// to. The historian binds "file_history" and feeds history text instead of
// file content.
func WithContentPlaceholder(key string) DiscoveryOption {
	return func(r *DiscoveryRunner) { r.contentKey = key }
}

// WithMaxTokensPerFile bounds the content sent per file. Zero disables
// truncation.
func WithMaxTokensPerFile(n int) DiscoveryOption {
	return func(r *DiscoveryRunner) { r.maxTokensPerFile = n }
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) DiscoveryOption {
	return func(r *DiscoveryRunner) { r.logger = logger }
}

// DiscoveryRunner drives one discovery agent across a batch of files. One
// completion per file; findings arrive as report_debt tool calls and are
// published on the bus as they are built.
type DiscoveryRunner struct {
	spec             Spec
	client           llm.Client
	bundle           prompt.Bundle
	bus              *bus.MessageBus
	contentKey       string
	maxTokensPerFile int
	logger           *slog.Logger
}

// NewDiscoveryRunner assembles a runner for one agent.
func NewDiscoveryRunner(spec Spec, client llm.Client, bundle prompt.Bundle, b *bus.MessageBus, opts ...DiscoveryOption) *DiscoveryRunner {
	r := &DiscoveryRunner{
		spec:       spec,
		client:     client,
		bundle:     bundle,
		bus:        b,
		contentKey: "file_content",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run analyzes every file in order and returns the accumulated result.
// Per-file transport failures are recorded and the run continues; fatal
// transport errors and cancellation stop the runner with a partial result.
func (r *DiscoveryRunner) Run(ctx context.Context, files []FileInput) *DiscoveryResult {
	result := &DiscoveryResult{Agent: r.spec.Role}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, models.AgentError{
				Agent:   r.spec.Role,
				Kind:    models.ErrorKindCancelled,
				Item:    file.Path,
				Message: err.Error(),
			})
			return result
		}
		if stop := r.runFile(ctx, file, result); stop {
			return result
		}
	}
	r.logger.Info("Discovery agent finished",
		"agent", r.spec.Role, "files", len(files),
		"findings", len(result.Findings), "errors", len(result.Errors))
	return result
}

// runFile performs one completion and folds its output into result. The
// returned flag tells Run to stop the whole batch.
func (r *DiscoveryRunner) runFile(ctx context.Context, file FileInput, result *DiscoveryResult) (stop bool) {
	content := Truncate(file.Content, r.maxTokensPerFile)
	req := llm.Request{
		Model:        r.spec.Model,
		SystemPrompt: r.bundle.System,
		Temperature:  r.spec.Temperature,
		Tools:        DiscoveryTools(),
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: prompt.Render(r.bundle.User, map[string]string{
				"file_path":  file.Path,
				r.contentKey: content,
			}),
		}},
	}

	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			result.Errors = append(result.Errors, models.AgentError{
				Agent: r.spec.Role, Kind: models.ErrorKindCancelled,
				Item: file.Path, Message: err.Error(),
			})
			return true
		case llm.Fatal(err):
			result.Errors = append(result.Errors, models.AgentError{
				Agent: r.spec.Role, Kind: models.ErrorKindFatalTransport,
				Item: file.Path, Message: err.Error(),
			})
			r.logger.Error("Discovery agent aborted on fatal transport error",
				"agent", r.spec.Role, "file", file.Path, "error", err)
			return true
		default:
			result.Errors = append(result.Errors, models.AgentError{
				Agent: r.spec.Role, Kind: models.ErrorKindTransport,
				Item: file.Path, Message: err.Error(), Recoverable: true,
			})
			return false
		}
	}

	for _, call := range resp.ToolCalls {
		if call.Name != ToolReportDebt {
			r.logger.Debug("Ignoring unexpected tool call", "agent", r.spec.Role, "tool", call.Name)
			continue
		}
		finding, err := buildFinding(r.spec.Role, file.Path, file.Content, call)
		if err != nil {
			if errors.Is(err, llm.ErrSchema) {
				result.Errors = append(result.Errors, models.AgentError{
					Agent: r.spec.Role, Kind: models.ErrorKindSchema,
					Item: file.Path, Message: err.Error(), Recoverable: true,
				})
			} else {
				// Findings failing field validation are dropped without an
				// error entry; the model simply reported something unusable.
				r.logger.Debug("Dropping invalid finding",
					"agent", r.spec.Role, "file", file.Path, "error", err)
			}
			continue
		}
		result.Findings = append(result.Findings, finding)
		if r.bus != nil {
			r.bus.Publish(models.AgentMessage{
				From: r.spec.Role,
				To:   models.RoleBroadcast,
				Type: models.MessageFinding,
				Content: models.MessageContent{
					Text:    finding.Title,
					Finding: finding.Clone(),
				},
			})
		}
	}
	return false
}
