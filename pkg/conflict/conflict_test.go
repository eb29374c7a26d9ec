package conflict

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropyops/debtscan/pkg/models"
)

func finding(id string, debtType models.DebtType, sev models.Severity, conf float64, start, end int, by models.AgentRole) *models.Finding {
	return &models.Finding{
		ID:         id,
		DebtType:   debtType,
		Severity:   sev,
		FilePath:   "pkg/billing/invoice.go",
		Title:      "finding " + id,
		StartLine:  start,
		EndLine:    end,
		Confidence: conf,
		ReportedBy: by,
	}
}

func TestDetect_ClassificationDispute(t *testing.T) {
	sf := finding("s1", models.DebtDeadCode, models.SeverityMedium, 0.7, 10, 20, models.RoleScanner)
	af := finding("a1", models.DebtMissingTests, models.SeverityMedium, 0.6, 15, 25, models.RoleArchitect)

	conflicts := NewDetector().Detect([]*models.Finding{sf}, []*models.Finding{af})
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, models.ConflictClassificationDispute, c.Type)
	assert.Equal(t, []models.AgentRole{models.RoleScanner, models.RoleArchitect}, c.Parties)
	require.Len(t, c.Claims, 2)
	assert.Equal(t, models.RoleScanner, c.Claims[0].Agent, "scanner claim comes first")
	assert.Equal(t, "s1", c.Claims[0].Finding.ID)
}

func TestDetect_SeverityDisagreementNeedsGapOfTwo(t *testing.T) {
	sf := finding("s1", models.DebtComplexity, models.SeverityLow, 0.6, 1, 5, models.RoleScanner)
	af := finding("a1", models.DebtComplexity, models.SeverityCritical, 0.9, 3, 8, models.RoleArchitect)

	conflicts := NewDetector().Detect([]*models.Finding{sf}, []*models.Finding{af})
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictSeverityDisagreement, conflicts[0].Type)

	// One rank apart is an acceptable difference of opinion.
	af.Severity = models.SeverityMedium
	assert.Empty(t, NewDetector().Detect([]*models.Finding{sf}, []*models.Finding{af}))
}

func TestDetect_ScopeDisagreement(t *testing.T) {
	sf := finding("s1", models.DebtGodClass, models.SeverityHigh, 0.7, 100, 102, models.RoleScanner)
	af := finding("a1", models.DebtGodClass, models.SeverityHigh, 0.7, 1, 90, models.RoleArchitect)

	conflicts := NewDetector().Detect([]*models.Finding{sf}, []*models.Finding{af})
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictScopeDisagreement, conflicts[0].Type)

	// A finding without a span carries no scope to disagree about.
	sf.StartLine, sf.EndLine = 0, 0
	assert.Empty(t, NewDetector().Detect([]*models.Finding{sf}, []*models.Finding{af}))
}

func TestDetect_CrossFileAndNonExclusivePairsIgnored(t *testing.T) {
	sf := finding("s1", models.DebtDeadCode, models.SeverityMedium, 0.7, 10, 20, models.RoleScanner)
	af := finding("a1", models.DebtMissingTests, models.SeverityMedium, 0.6, 15, 25, models.RoleArchitect)
	af.FilePath = "pkg/billing/refund.go"
	assert.Empty(t, NewDetector().Detect([]*models.Finding{sf}, []*models.Finding{af}))

	// Overlapping but compatible classifications coexist.
	af.FilePath = sf.FilePath
	af.DebtType = models.DebtComplexity
	assert.Empty(t, NewDetector().Detect([]*models.Finding{sf}, []*models.Finding{af}))
}

func TestDetect_CarriesEvidenceWithWeight(t *testing.T) {
	sf := finding("s1", models.DebtComplexity, models.SeverityLow, 0.6, 1, 5, models.RoleScanner)
	af := finding("a1", models.DebtComplexity, models.SeverityCritical, 0.9, 3, 8, models.RoleArchitect)
	af.Evidence = []string{"cyclomatic complexity 32", "five nested loops"}

	conflicts := NewDetector().Detect([]*models.Finding{sf}, []*models.Finding{af})
	require.Len(t, conflicts, 1)
	require.Len(t, conflicts[0].Evidence, 2)
	for _, ev := range conflicts[0].Evidence {
		assert.Equal(t, models.RoleArchitect, ev.Supports)
		assert.InDelta(t, 0.1, ev.Weight, 1e-9)
	}
}

func severityConflict(t *testing.T) *models.Conflict {
	t.Helper()
	sf := finding("s1", models.DebtComplexity, models.SeverityLow, 0.6, 1, 5, models.RoleScanner)
	af := finding("a1", models.DebtComplexity, models.SeverityCritical, 0.9, 3, 8, models.RoleArchitect)
	af.Evidence = []string{"cyclomatic complexity 32"}
	conflicts := NewDetector().Detect([]*models.Finding{sf}, []*models.Finding{af})
	require.Len(t, conflicts, 1)
	return conflicts[0]
}

func TestResolve_EvidenceScoringPicksStrongerClaim(t *testing.T) {
	c := severityConflict(t)

	out := NewResolver().Resolve(context.Background(), []*models.Conflict{c})
	require.Len(t, out, 1)

	res := out[0]
	assert.Equal(t, c.ID, res.ConflictID)
	assert.Equal(t, models.DecisionAcceptSecond, res.Decision)
	assert.Equal(t, models.ResolvedByEvidence, res.ResolvedBy)
	require.NotNil(t, res.ResultingFinding)
	assert.Equal(t, "a1", res.ResultingFinding.ID)
	assert.Contains(t, res.Reasoning, "evidence score 0.60 (scanner) vs 1.00 (architect)")
}

func TestResolve_TieDefersToFirstClaim(t *testing.T) {
	sf := finding("s1", models.DebtComplexity, models.SeverityLow, 0.8, 1, 5, models.RoleScanner)
	af := finding("a1", models.DebtComplexity, models.SeverityCritical, 0.8, 3, 8, models.RoleArchitect)
	conflicts := NewDetector().Detect([]*models.Finding{sf}, []*models.Finding{af})
	require.Len(t, conflicts, 1)

	res := NewResolver().Resolve(context.Background(), conflicts)[0]
	assert.Equal(t, models.DecisionAcceptFirst, res.Decision)
	assert.Equal(t, "s1", res.ResultingFinding.ID)
}

type stubArbiter struct {
	decision  models.Decision
	reasoning string
	err       error
	calls     int
}

func (s *stubArbiter) Decide(context.Context, *models.Conflict) (models.Decision, string, error) {
	s.calls++
	return s.decision, s.reasoning, s.err
}

func TestResolve_ArbiterDecisions(t *testing.T) {
	t.Run("accept first", func(t *testing.T) {
		arb := &stubArbiter{decision: models.DecisionAcceptFirst, reasoning: "scanner saw the code"}
		res := NewResolver(WithArbiter(arb)).Resolve(context.Background(), []*models.Conflict{severityConflict(t)})[0]
		assert.Equal(t, models.ResolvedByArbiter, res.ResolvedBy)
		assert.Equal(t, "scanner saw the code", res.Reasoning)
		assert.Equal(t, "s1", res.ResultingFinding.ID)
	})

	t.Run("merge", func(t *testing.T) {
		arb := &stubArbiter{decision: models.DecisionMerge, reasoning: "both are right"}
		res := NewResolver(WithArbiter(arb)).Resolve(context.Background(), []*models.Conflict{severityConflict(t)})[0]
		assert.Equal(t, models.DecisionMerge, res.Decision)
		require.NotNil(t, res.ResultingFinding)
		assert.NotEqual(t, "s1", res.ResultingFinding.ID)
		assert.NotEqual(t, "a1", res.ResultingFinding.ID)
		assert.Equal(t, models.SeverityCritical, res.ResultingFinding.Severity)
	})

	t.Run("reject both", func(t *testing.T) {
		arb := &stubArbiter{decision: models.DecisionRejectBoth, reasoning: "neither holds up"}
		res := NewResolver(WithArbiter(arb)).Resolve(context.Background(), []*models.Conflict{severityConflict(t)})[0]
		assert.Equal(t, models.DecisionRejectBoth, res.Decision)
		assert.Nil(t, res.ResultingFinding)
	})
}

func TestResolve_ArbiterFailureFallsBackToEvidence(t *testing.T) {
	arb := &stubArbiter{err: errors.New("model unavailable")}
	res := NewResolver(WithArbiter(arb)).Resolve(context.Background(), []*models.Conflict{severityConflict(t)})[0]
	assert.Equal(t, 1, arb.calls)
	assert.Equal(t, models.ResolvedByEvidence, res.ResolvedBy)
	assert.Equal(t, models.DecisionAcceptSecond, res.Decision)
}

func TestResolve_UnknownArbiterDecisionFallsBack(t *testing.T) {
	arb := &stubArbiter{decision: models.Decision("coin_flip")}
	res := NewResolver(WithArbiter(arb)).Resolve(context.Background(), []*models.Conflict{severityConflict(t)})[0]
	assert.Equal(t, models.ResolvedByEvidence, res.ResolvedBy)
}

func TestMerge_CombinesFindings(t *testing.T) {
	a := finding("a", models.DebtGodClass, models.SeverityMedium, 0.6, 10, 40, models.RoleScanner)
	a.Description = "class does too much"
	a.Evidence = []string{"42 methods", "8 fields"}
	b := finding("b", models.DebtGodClass, models.SeverityHigh, 0.8, 30, 60, models.RoleArchitect)
	b.Description = "orchestrates unrelated subsystems"
	b.Evidence = []string{"8 fields", "imports 12 packages"}
	b.SuggestedFix = "split by responsibility"

	merged := Merge(a, b, func(string) string { return "" })

	assert.NotEqual(t, "a", merged.ID)
	assert.NotEqual(t, "b", merged.ID)
	assert.Equal(t, models.RoleArchitect, merged.ReportedBy, "higher confidence dominates")
	assert.Equal(t, models.SeverityHigh, merged.Severity)
	assert.InDelta(t, 0.7, merged.Confidence, 1e-9)
	assert.Equal(t, 10, merged.StartLine)
	assert.Equal(t, 60, merged.EndLine)
	assert.Equal(t, []string{"8 fields", "imports 12 packages", "42 methods"}, merged.Evidence)
	assert.Equal(t, "split by responsibility", merged.SuggestedFix)
	assert.Contains(t, merged.Description, "orchestrates unrelated subsystems")
	assert.Contains(t, merged.Description, "Additional context: class does too much")
	assert.NotEmpty(t, merged.Fingerprint)
}

func TestMerge_ConfidenceTieBreaksTowardSmallerID(t *testing.T) {
	a := finding("zz", models.DebtGodClass, models.SeverityMedium, 0.6, 10, 40, models.RoleScanner)
	b := finding("aa", models.DebtGodClass, models.SeverityMedium, 0.6, 10, 40, models.RoleArchitect)

	merged := Merge(a, b, nil)
	assert.Equal(t, models.RoleArchitect, merged.ReportedBy)
}

func TestMerge_ContainedDescriptionNotDuplicated(t *testing.T) {
	a := finding("a", models.DebtComplexity, models.SeverityMedium, 0.9, 1, 5, models.RoleScanner)
	a.Description = "deeply nested branching in the discount path"
	b := finding("b", models.DebtComplexity, models.SeverityMedium, 0.5, 1, 5, models.RoleArchitect)
	b.Description = "deeply nested branching"

	merged := Merge(a, b, nil)
	assert.Equal(t, a.Description, merged.Description)
}

func TestMerge_SpanFallsBackToTheSpannedSide(t *testing.T) {
	a := finding("a", models.DebtComplexity, models.SeverityMedium, 0.9, 0, 0, models.RoleScanner)
	b := finding("b", models.DebtComplexity, models.SeverityMedium, 0.5, 7, 9, models.RoleArchitect)

	merged := Merge(a, b, nil)
	assert.Equal(t, 7, merged.StartLine)
	assert.Equal(t, 9, merged.EndLine)
}
