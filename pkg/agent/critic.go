package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/entropyops/debtscan/pkg/llm"
	"github.com/entropyops/debtscan/pkg/models"
	"github.com/entropyops/debtscan/pkg/prompt"
)

// excerptContext is how many surrounding lines an excerpt carries past the
// finding's span.
const excerptContext = 3

// ContentLookup resolves a file path to its content. Missing files return
// ok=false and the critic reviews on the finding alone.
type ContentLookup func(path string) (string, bool)

// SimilarCodeFunc retrieves snippets similar to the finding's subject from the
// repository index. Enrichment is best effort: errors are logged and the
// review proceeds without it.
type SimilarCodeFunc func(ctx context.Context, f *models.Finding) ([]string, error)

// CriticOption customizes a critic runner.
type CriticOption func(*CriticRunner)

// WithSimilarCode enables vector-context enrichment of critic prompts.
func WithSimilarCode(fn SimilarCodeFunc) CriticOption {
	return func(r *CriticRunner) { r.similarCode = fn }
}

// WithCriticLogger sets the runner logger.
func WithCriticLogger(logger *slog.Logger) CriticOption {
	return func(r *CriticRunner) { r.logger = logger }
}

// CriticRunner reviews findings one at a time. A finding is accepted only
// when the model validates it with confidence at or above the challenge
// threshold; everything else becomes a challenge candidate for debate.
type CriticRunner struct {
	spec        Spec
	client      llm.Client
	bundle      prompt.Bundle
	lookup      ContentLookup
	similarCode SimilarCodeFunc
	threshold   float64
	logger      *slog.Logger
}

// NewCriticRunner assembles the critic.
func NewCriticRunner(spec Spec, client llm.Client, bundle prompt.Bundle, lookup ContentLookup, challengeThreshold float64, opts ...CriticOption) *CriticRunner {
	r := &CriticRunner{
		spec:      spec,
		client:    client,
		bundle:    bundle,
		lookup:    lookup,
		threshold: challengeThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Review examines every finding and returns the reviews keyed by finding id.
// Findings whose review failed have no entry; the caller treats them as
// unreviewed.
func (r *CriticRunner) Review(ctx context.Context, findings []*models.Finding) *CriticResult {
	result := &CriticResult{Reviews: make(map[string]*models.CriticReview, len(findings))}
	for _, f := range findings {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, models.AgentError{
				Agent:   r.spec.Role,
				Kind:    models.ErrorKindCancelled,
				Item:    f.ID,
				Message: err.Error(),
			})
			return result
		}
		if stop := r.reviewOne(ctx, f, result); stop {
			return result
		}
	}
	r.logger.Info("Critic finished", "reviewed", len(result.Reviews), "errors", len(result.Errors))
	return result
}

func (r *CriticRunner) reviewOne(ctx context.Context, f *models.Finding, result *CriticResult) (stop bool) {
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		result.Errors = append(result.Errors, models.AgentError{
			Agent: r.spec.Role, Kind: models.ErrorKindAgentItem,
			Item: f.ID, Message: err.Error(), Recoverable: true,
		})
		return false
	}

	req := llm.Request{
		Model:        r.spec.Model,
		SystemPrompt: r.bundle.System,
		Temperature:  r.spec.Temperature,
		Tools:        CriticTools(),
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: prompt.Render(r.bundle.User, map[string]string{
				"finding_json": string(raw),
				"file_excerpt": r.excerpt(f),
				"similar_code": r.similarSection(ctx, f),
			}),
		}},
	}

	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			result.Errors = append(result.Errors, models.AgentError{
				Agent: r.spec.Role, Kind: models.ErrorKindCancelled,
				Item: f.ID, Message: err.Error(),
			})
			return true
		case llm.Fatal(err):
			result.Errors = append(result.Errors, models.AgentError{
				Agent: r.spec.Role, Kind: models.ErrorKindFatalTransport,
				Item: f.ID, Message: err.Error(),
			})
			r.logger.Error("Critic aborted on fatal transport error", "finding_id", f.ID, "error", err)
			return true
		default:
			result.Errors = append(result.Errors, models.AgentError{
				Agent: r.spec.Role, Kind: models.ErrorKindTransport,
				Item: f.ID, Message: err.Error(), Recoverable: true,
			})
			return false
		}
	}

	review, err := r.parseReview(f, resp)
	if err != nil {
		result.Errors = append(result.Errors, models.AgentError{
			Agent: r.spec.Role, Kind: models.ErrorKindSchema,
			Item: f.ID, Message: err.Error(), Recoverable: true,
		})
		return false
	}
	result.Reviews[f.ID] = review
	return false
}

// parseReview extracts the verdict from the first recognized tool call.
func (r *CriticRunner) parseReview(f *models.Finding, resp *llm.Response) (*models.CriticReview, error) {
	for _, call := range resp.ToolCalls {
		validated := call.Name == ToolValidateFinding
		if !validated && call.Name != ToolRejectFinding {
			continue
		}
		var args reviewArgs
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return nil, fmt.Errorf("%w: %s args: %w", llm.ErrSchema, call.Name, err)
		}
		review := &models.CriticReview{
			FindingID:  f.ID,
			Accepted:   validated && args.Confidence >= r.threshold,
			Confidence: args.Confidence,
			Reason:     fmt.Sprintf("%s (critic confidence %.2f)", args.Reason, args.Confidence),
		}
		if validated && !review.Accepted {
			review.Reason = fmt.Sprintf("validated below challenge threshold (critic confidence %.2f): %s", args.Confidence, args.Reason)
		}
		return review, nil
	}
	return nil, fmt.Errorf("%w: critic returned no verdict tool call", llm.ErrSchema)
}

// excerpt cuts the reviewed span plus context lines from the file, or the
// whole (truncated) file when the finding has no span.
func (r *CriticRunner) excerpt(f *models.Finding) string {
	if r.lookup == nil {
		return "(file content unavailable)"
	}
	content, ok := r.lookup(f.FilePath)
	if !ok {
		return "(file content unavailable)"
	}
	if !f.HasSpan() {
		return Truncate(content, 2000)
	}

	lines := strings.Split(content, "\n")
	start := f.StartLine - 1 - excerptContext
	if start < 0 {
		start = 0
	}
	end := f.EndLine + excerptContext
	if end > len(lines) {
		end = len(lines)
	}
	if start >= len(lines) {
		return "(span past end of file)"
	}
	return strings.Join(lines[start:end], "\n")
}

// similarSection renders the optional similar-code block of the user prompt.
func (r *CriticRunner) similarSection(ctx context.Context, f *models.Finding) string {
	if r.similarCode == nil {
		return ""
	}
	snippets, err := r.similarCode(ctx, f)
	if err != nil {
		r.logger.Debug("Similar-code enrichment failed", "finding_id", f.ID, "error", err)
		return ""
	}
	if len(snippets) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\nSimilar code elsewhere in the repository:\n")
	for _, s := range snippets {
		sb.WriteString("```\n")
		sb.WriteString(s)
		sb.WriteString("\n```\n")
	}
	return sb.String()
}
