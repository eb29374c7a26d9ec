package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropyops/debtscan/pkg/bus"
	"github.com/entropyops/debtscan/pkg/llm"
	"github.com/entropyops/debtscan/pkg/models"
	"github.com/entropyops/debtscan/pkg/prompt"
)

func scannerSpec() Spec {
	return Spec{Role: models.RoleScanner, Model: "test-model", Enabled: true}
}

func scannerBundle() prompt.Bundle {
	return prompt.DefaultLibrary().Bundle(models.RoleScanner)
}

func TestTruncate(t *testing.T) {
	t.Run("within budget unchanged", func(t *testing.T) {
		assert.Equal(t, "short", Truncate("short", 100))
	})

	t.Run("over budget gets marker", func(t *testing.T) {
		content := strings.Repeat("line of source code\n", 100)
		out := Truncate(content, 10)
		assert.True(t, strings.HasSuffix(out, truncationMarker))
		assert.Less(t, len(out), len(content))
	})

	t.Run("zero budget disables truncation", func(t *testing.T) {
		content := strings.Repeat("x", 10_000)
		assert.Equal(t, content, Truncate(content, 0))
	})
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

func TestDiscoveryRunner_ReportsFindings(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Response: llm.ToolCallResponse(ToolReportDebt, map[string]any{
		"debt_type":   "security_issue",
		"severity":    "critical",
		"confidence":  0.9,
		"title":       "Hardcoded credentials",
		"description": "API key committed in source",
		"start_line":  10,
		"end_line":    12,
		"evidence":    []string{`apiKey = "sk-live-..."`},
	})})

	b := bus.New()
	runner := NewDiscoveryRunner(scannerSpec(), client, scannerBundle(), b)
	result := runner.Run(context.Background(), []FileInput{{Path: "a.ts", Content: "const apiKey = \"sk-live-...\"\n"}})

	require.Len(t, result.Findings, 1)
	assert.Empty(t, result.Errors)

	f := result.Findings[0]
	assert.Equal(t, models.DebtSecurityIssue, f.DebtType)
	assert.Equal(t, models.SeverityCritical, f.Severity)
	assert.Equal(t, "a.ts", f.FilePath)
	assert.Equal(t, models.RoleScanner, f.ReportedBy)
	assert.NotEmpty(t, f.ID)
	assert.NotEmpty(t, f.Fingerprint)

	published := b.Messages(bus.Filter{Type: models.MessageFinding})
	require.Len(t, published, 1)
	assert.Equal(t, f.ID, published[0].FindingID())
}

func TestDiscoveryRunner_InvalidFindingDroppedSilently(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Response: llm.ToolCallResponse(ToolReportDebt, map[string]any{
		"debt_type":   "not_a_real_type",
		"severity":    "critical",
		"confidence":  0.9,
		"title":       "Bogus",
		"description": "bad taxonomy",
	})})

	runner := NewDiscoveryRunner(scannerSpec(), client, scannerBundle(), bus.New())
	result := runner.Run(context.Background(), []FileInput{{Path: "a.ts", Content: "x"}})

	assert.Empty(t, result.Findings)
	assert.Empty(t, result.Errors, "field validation failure is a silent skip, not an error")
}

func TestDiscoveryRunner_MalformedArgsRecordSchemaError(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Response: &llm.Response{
		ToolCalls:    []llm.ToolCall{{Name: ToolReportDebt, Args: []byte(`{not json`)}},
		FinishReason: llm.FinishToolCalls,
	}})

	runner := NewDiscoveryRunner(scannerSpec(), client, scannerBundle(), bus.New())
	result := runner.Run(context.Background(), []FileInput{{Path: "a.ts", Content: "x"}})

	assert.Empty(t, result.Findings)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.ErrorKindSchema, result.Errors[0].Kind)
	assert.True(t, result.Errors[0].Recoverable)
}

func TestDiscoveryRunner_TransportErrorContinues(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Err: llm.TransportError(assert.AnError)})
	client.AddSequential(llm.ScriptEntry{Response: llm.ToolCallResponse(ToolReportDebt, map[string]any{
		"debt_type":   "code_smell",
		"severity":    "low",
		"confidence":  0.6,
		"title":       "Long method",
		"description": "method over 100 lines",
	})})

	runner := NewDiscoveryRunner(scannerSpec(), client, scannerBundle(), bus.New())
	result := runner.Run(context.Background(), []FileInput{
		{Path: "a.ts", Content: "x"},
		{Path: "b.ts", Content: "y"},
	})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.ErrorKindTransport, result.Errors[0].Kind)
	assert.Equal(t, "a.ts", result.Errors[0].Item)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "b.ts", result.Findings[0].FilePath)
}

func TestDiscoveryRunner_FatalTransportAborts(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Err: llm.ErrFatalTransport})

	runner := NewDiscoveryRunner(scannerSpec(), client, scannerBundle(), bus.New())
	result := runner.Run(context.Background(), []FileInput{
		{Path: "a.ts", Content: "x"},
		{Path: "b.ts", Content: "y"},
	})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.ErrorKindFatalTransport, result.Errors[0].Kind)
	assert.False(t, result.Errors[0].Recoverable)
	assert.Empty(t, result.Findings)
}

func TestDiscoveryRunner_CancellationStopsBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewDiscoveryRunner(scannerSpec(), llm.NewScriptedClient(), scannerBundle(), bus.New())
	result := runner.Run(ctx, []FileInput{{Path: "a.ts", Content: "x"}})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.ErrorKindCancelled, result.Errors[0].Kind)
	assert.Empty(t, result.Findings)
}

func TestDiscoveryRunner_TruncatesLargeFiles(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Response: &llm.Response{FinishReason: llm.FinishStop}})

	runner := NewDiscoveryRunner(scannerSpec(), client, scannerBundle(), bus.New(), WithMaxTokensPerFile(10))
	content := strings.Repeat("padding line\n", 50)
	runner.Run(context.Background(), []FileInput{{Path: "a.ts", Content: content}})

	captured := client.Captured()
	require.Len(t, captured, 1)
	assert.Contains(t, captured[0].Messages[0].Content, truncationMarker)
}

func TestDiscoveryRunner_HistorianPlaceholder(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Response: &llm.Response{FinishReason: llm.FinishStop}})

	spec := Spec{Role: models.RoleHistorian, Model: "test-model", Enabled: true}
	bundle := prompt.DefaultLibrary().Bundle(models.RoleHistorian)
	runner := NewDiscoveryRunner(spec, client, bundle, bus.New(), WithContentPlaceholder("file_history"))
	runner.Run(context.Background(), []FileInput{{Path: "a.ts", Content: "commit 1: fix bug again"}})

	captured := client.Captured()
	require.Len(t, captured, 1)
	assert.Contains(t, captured[0].Messages[0].Content, "commit 1: fix bug again")
	assert.NotContains(t, captured[0].Messages[0].Content, "{{file_history}}")
}
