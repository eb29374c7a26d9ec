// Package agent provides the uniform runner framework driving the specialist
// agents. Agents are configuration (role, model, prompts, tool set) plus a
// runner loop; there are no agent-specific types. Discovery runners iterate
// files and report findings; the critic runner iterates findings and reviews
// them.
package agent

import (
	"strings"

	"github.com/entropyops/debtscan/pkg/models"
)

// Spec is one row of the roster: everything that distinguishes an agent.
type Spec struct {
	Role        models.AgentRole
	Model       string
	Temperature float64
	Enabled     bool
}

// FileInput is one unit of discovery work.
type FileInput struct {
	Path    string
	Content string
}

// DiscoveryResult accumulates one discovery runner's output. A runner owns
// its result exclusively until it returns; errors never abort the run.
type DiscoveryResult struct {
	Agent    models.AgentRole
	Findings []*models.Finding
	Errors   []models.AgentError
}

// CriticResult accumulates the critic runner's output, keyed by finding id.
type CriticResult struct {
	Reviews map[string]*models.CriticReview
	Errors  []models.AgentError
}

// truncationMarker is appended when file content exceeds the token budget.
const truncationMarker = "\n\n[content truncated at token limit]"

// EstimateTokens approximates the token count of text (≈4 bytes per token,
// rounded up).
func EstimateTokens(text string) int { return (len(text) + 3) / 4 }

// Truncate cuts content down to maxTokens and appends the truncation marker.
// Content within budget is returned unchanged.
func Truncate(content string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(content) <= maxTokens {
		return content
	}
	cut := maxTokens * 4
	if cut > len(content) {
		cut = len(content)
	}
	// Cut at a line boundary where possible so the model never sees half a
	// statement at the end.
	truncated := content[:cut]
	if idx := strings.LastIndexByte(truncated, '\n'); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + truncationMarker
}
