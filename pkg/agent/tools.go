package agent

import (
	"encoding/json"
	"fmt"

	"github.com/entropyops/debtscan/pkg/ident"
	"github.com/entropyops/debtscan/pkg/llm"
	"github.com/entropyops/debtscan/pkg/models"
)

// Tool names recognized by the runners. The runner never parses findings out
// of natural-language output; structured tool calls are the only channel.
const (
	ToolReportDebt      = "report_debt"
	ToolValidateFinding = "validate_finding"
	ToolRejectFinding   = "reject_finding"
)

// reportDebtArgs is the argument schema of the report_debt tool call.
type reportDebtArgs struct {
	DebtType     string   `json:"debt_type"`
	Severity     string   `json:"severity"`
	Confidence   float64  `json:"confidence"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	StartLine    int      `json:"start_line"`
	EndLine      int      `json:"end_line"`
	Evidence     []string `json:"evidence"`
	SuggestedFix string   `json:"suggested_fix"`
}

// reviewArgs is the argument schema shared by validate_finding and
// reject_finding.
type reviewArgs struct {
	FindingID  string  `json:"finding_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

func debtTypeNames() []string {
	types := models.AllDebtTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}

// DiscoveryTools returns the tool set bound for discovery agents.
func DiscoveryTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{{
		Name:        ToolReportDebt,
		Description: "Report one piece of technical debt found in the file under analysis.",
		Parameters: &llm.Schema{
			Type:     "object",
			Required: []string{"debt_type", "severity", "confidence", "title", "description"},
			Properties: map[string]*llm.Schema{
				"debt_type":     {Type: "string", Enum: debtTypeNames()},
				"severity":      {Type: "string", Enum: []string{"critical", "high", "medium", "low", "info"}},
				"confidence":    {Type: "number", Description: "0.0 to 1.0"},
				"title":         {Type: "string"},
				"description":   {Type: "string"},
				"start_line":    {Type: "integer", Description: "1-indexed, inclusive"},
				"end_line":      {Type: "integer", Description: "1-indexed, inclusive"},
				"evidence":      {Type: "array", Items: &llm.Schema{Type: "string"}},
				"suggested_fix": {Type: "string"},
			},
		},
	}}
}

// CriticTools returns the tool set bound for the critic.
func CriticTools() []llm.ToolDefinition {
	params := &llm.Schema{
		Type:     "object",
		Required: []string{"confidence", "reason"},
		Properties: map[string]*llm.Schema{
			"finding_id": {Type: "string"},
			"confidence": {Type: "number", Description: "0.0 to 1.0"},
			"reason":     {Type: "string"},
		},
	}
	return []llm.ToolDefinition{
		{Name: ToolValidateFinding, Description: "Accept the finding as genuine debt.", Parameters: params},
		{Name: ToolRejectFinding, Description: "Reject the finding as invalid or not actionable.", Parameters: params},
	}
}

// buildFinding converts a report_debt tool call into a validated Finding.
// Returns an error for args that fail validation; the caller skips those
// silently per the runner contract.
func buildFinding(role models.AgentRole, path, content string, call llm.ToolCall) (*models.Finding, error) {
	var args reportDebtArgs
	if err := json.Unmarshal(call.Args, &args); err != nil {
		return nil, fmt.Errorf("%w: report_debt args: %w", llm.ErrSchema, err)
	}

	f := &models.Finding{
		ID:           ident.New(),
		DebtType:     models.DebtType(args.DebtType),
		Severity:     models.Severity(args.Severity),
		Confidence:   args.Confidence,
		Title:        args.Title,
		Description:  args.Description,
		FilePath:     path,
		StartLine:    args.StartLine,
		EndLine:      args.EndLine,
		Evidence:     args.Evidence,
		SuggestedFix: args.SuggestedFix,
		ReportedBy:   role,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f.Fingerprint = ident.Fingerprint(f, content)
	return f, nil
}
