package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entropyops/debtscan/pkg/llm"
	"github.com/entropyops/debtscan/pkg/models"
)

// arbiterSystemPrompt keeps the arbiter neutral: it sees the claims and
// evidence, not which agent the pipeline would otherwise favor.
const arbiterSystemPrompt = `You are a neutral arbiter for disagreements between static-analysis agents.
Two agents reported conflicting technical-debt findings about the same code.
Weigh the claims and their evidence on the merits. Choose exactly one decision:
- accept_first: the first claim is right, the second is wrong
- accept_second: the second claim is right, the first is wrong
- merge: both describe the same underlying debt and should be combined
- reject_both: neither claim is credible
Respond with your decision and a short reasoning.`

// arbiterVerdict is the structured output expected from the arbiter model.
type arbiterVerdict struct {
	Decision  string `json:"decision"`
	Reasoning string `json:"reasoning"`
}

var arbiterSchema = &llm.Schema{
	Type:     "object",
	Required: []string{"decision", "reasoning"},
	Properties: map[string]*llm.Schema{
		"decision": {
			Type: "string",
			Enum: []string{"accept_first", "accept_second", "merge", "reject_both"},
		},
		"reasoning": {Type: "string"},
	},
}

// LLMArbiter implements Arbiter over the injected LLM transport.
type LLMArbiter struct {
	client llm.Client
	model  string
}

// NewLLMArbiter creates an LLM-backed arbiter. model may be empty to use the
// client default.
func NewLLMArbiter(client llm.Client, model string) *LLMArbiter {
	return &LLMArbiter{client: client, model: model}
}

// Decide implements Arbiter.
func (a *LLMArbiter) Decide(ctx context.Context, c *models.Conflict) (models.Decision, string, error) {
	var verdict arbiterVerdict
	req := llm.Request{
		Model:        a.model,
		SystemPrompt: arbiterSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: serializeConflict(c)}},
	}
	if err := a.client.CompleteStructured(ctx, req, arbiterSchema, &verdict); err != nil {
		return "", "", fmt.Errorf("arbiter completion failed: %w", err)
	}

	decision := models.Decision(strings.TrimSpace(verdict.Decision))
	switch decision {
	case models.DecisionAcceptFirst, models.DecisionAcceptSecond, models.DecisionMerge, models.DecisionRejectBoth:
		return decision, verdict.Reasoning, nil
	}
	return "", "", fmt.Errorf("%w: unparseable arbiter decision %q", llm.ErrSchema, verdict.Decision)
}

// serializeConflict renders the conflict for the arbiter prompt. Claims keep
// their order so the decision vocabulary (first/second) is unambiguous.
func serializeConflict(c *models.Conflict) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conflict type: %s\n\n", c.Type)
	for i, claim := range c.Claims {
		ordinal := "First"
		if i == 1 {
			ordinal = "Second"
		}
		raw, _ := json.MarshalIndent(claim.Finding, "", "  ")
		fmt.Fprintf(&sb, "%s claim (%s, confidence %.2f):\n%s\n\n", ordinal, claim.Agent, claim.Confidence, raw)
	}
	if len(c.Evidence) > 0 {
		sb.WriteString("Evidence:\n")
		for _, ev := range c.Evidence {
			fmt.Fprintf(&sb, "- [%s, supports %s, weight %.2f] %s\n", ev.Kind, ev.Supports, ev.Weight, ev.Content)
		}
	}
	return sb.String()
}
