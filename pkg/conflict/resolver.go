package conflict

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/entropyops/debtscan/pkg/models"
)

// Arbiter decides a conflict externally (normally an LLM behind a neutral
// prompt). Decide returns one of the four decisions and its reasoning.
type Arbiter interface {
	Decide(ctx context.Context, conflict *models.Conflict) (models.Decision, string, error)
}

// Resolver reduces conflicts to resolutions. Without an arbiter it always
// takes the evidence path.
type Resolver struct {
	arbiter       Arbiter
	contentLookup func(path string) string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithArbiter routes resolution through an external arbiter, falling back to
// the evidence path when the arbiter fails.
func WithArbiter(a Arbiter) ResolverOption {
	return func(r *Resolver) { r.arbiter = a }
}

// WithContentLookup supplies file content for fingerprinting merged findings.
func WithContentLookup(fn func(path string) string) ResolverOption {
	return func(r *Resolver) { r.contentLookup = fn }
}

// NewResolver creates a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces one resolution per conflict. Individual arbiter failures
// degrade to the evidence path rather than failing the batch.
func (r *Resolver) Resolve(ctx context.Context, conflicts []*models.Conflict) []*models.ConflictResolution {
	out := make([]*models.ConflictResolution, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, r.resolveOne(ctx, c))
	}
	return out
}

func (r *Resolver) resolveOne(ctx context.Context, c *models.Conflict) *models.ConflictResolution {
	if r.arbiter != nil {
		if res, err := r.arbitrate(ctx, c); err == nil {
			return res
		} else {
			slog.Warn("Arbiter failed, falling back to evidence scoring",
				"conflict_id", c.ID, "error", err)
		}
	}
	return r.resolveByEvidence(c)
}

// resolveByEvidence scores each claim as confidence plus the weight of all
// evidence supporting that agent; the higher total wins. First claim wins
// ties; the detector emits scanner claims first, so a dead heat defers to
// the stream that saw the code directly.
func (r *Resolver) resolveByEvidence(c *models.Conflict) *models.ConflictResolution {
	if len(c.Claims) < 2 {
		return &models.ConflictResolution{
			ConflictID: c.ID,
			Decision:   models.DecisionRejectBoth,
			Reasoning:  "conflict carries fewer than two claims",
			ResolvedBy: models.ResolvedByEvidence,
		}
	}

	scores := make([]float64, len(c.Claims))
	for i, claim := range c.Claims {
		scores[i] = claim.Confidence
		for _, ev := range c.Evidence {
			if ev.Supports == claim.Agent {
				scores[i] += ev.Weight
			}
		}
	}

	winner := 0
	if scores[1] > scores[0] {
		winner = 1
	}
	decision := models.DecisionAcceptFirst
	if winner == 1 {
		decision = models.DecisionAcceptSecond
	}
	return &models.ConflictResolution{
		ConflictID: c.ID,
		Decision:   decision,
		Reasoning: fmt.Sprintf("evidence score %.2f (%s) vs %.2f (%s)",
			scores[0], c.Claims[0].Agent, scores[1], c.Claims[1].Agent),
		ResultingFinding: c.Claims[winner].Finding.Clone(),
		ResolvedBy:       models.ResolvedByEvidence,
	}
}

// arbitrate asks the external arbiter and materializes its decision.
func (r *Resolver) arbitrate(ctx context.Context, c *models.Conflict) (*models.ConflictResolution, error) {
	decision, reasoning, err := r.arbiter.Decide(ctx, c)
	if err != nil {
		return nil, err
	}

	res := &models.ConflictResolution{
		ConflictID: c.ID,
		Decision:   decision,
		Reasoning:  reasoning,
		ResolvedBy: models.ResolvedByArbiter,
	}
	switch decision {
	case models.DecisionAcceptFirst:
		res.ResultingFinding = c.Claims[0].Finding.Clone()
	case models.DecisionAcceptSecond:
		res.ResultingFinding = c.Claims[1].Finding.Clone()
	case models.DecisionMerge:
		res.ResultingFinding = Merge(c.Claims[0].Finding, c.Claims[1].Finding, r.contentLookup)
	case models.DecisionRejectBoth:
		// no resulting finding
	default:
		return nil, fmt.Errorf("arbiter returned unknown decision %q", decision)
	}
	return res, nil
}
