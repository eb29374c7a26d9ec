package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFinding() *Finding {
	return &Finding{
		ID:         "f1",
		DebtType:   DebtComplexity,
		Severity:   SeverityHigh,
		Confidence: 0.8,
		Title:      "Tangled discount logic",
		FilePath:   "pkg/billing/invoice.go",
		StartLine:  3,
		EndLine:    8,
		ReportedBy: RoleScanner,
	}
}

func TestFinding_Validate(t *testing.T) {
	require.NoError(t, validFinding().Validate())

	cases := []struct {
		name   string
		mutate func(*Finding)
	}{
		{"unknown debt type", func(f *Finding) { f.DebtType = "spaghetti" }},
		{"unknown severity", func(f *Finding) { f.Severity = "catastrophic" }},
		{"confidence above one", func(f *Finding) { f.Confidence = 1.2 }},
		{"negative confidence", func(f *Finding) { f.Confidence = -0.1 }},
		{"empty title", func(f *Finding) { f.Title = "" }},
		{"empty file path", func(f *Finding) { f.FilePath = "" }},
		{"half open span", func(f *Finding) { f.EndLine = 0 }},
		{"inverted span", func(f *Finding) { f.StartLine, f.EndLine = 8, 3 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := validFinding()
			tc.mutate(f)
			assert.ErrorIs(t, f.Validate(), ErrInvalidFinding)
		})
	}

	// Boundary confidences and a span-less finding are fine.
	f := validFinding()
	f.Confidence = 0
	f.StartLine, f.EndLine = 0, 0
	assert.NoError(t, f.Validate())
	f.Confidence = 1
	assert.NoError(t, f.Validate())
}

func TestFinding_SpanHelpers(t *testing.T) {
	f := validFinding()
	assert.True(t, f.HasSpan())
	assert.Equal(t, 6, f.SpanSize())

	f.StartLine, f.EndLine = 0, 0
	assert.False(t, f.HasSpan())
	assert.Zero(t, f.SpanSize())
}

func TestFinding_Overlaps(t *testing.T) {
	a := validFinding()

	b := validFinding()
	b.StartLine, b.EndLine = 8, 12
	assert.True(t, a.Overlaps(b), "shared boundary line overlaps")

	b.StartLine, b.EndLine = 9, 12
	assert.False(t, a.Overlaps(b))

	// No span means the whole file.
	b.StartLine, b.EndLine = 0, 0
	assert.True(t, a.Overlaps(b))
	assert.True(t, b.Overlaps(a))

	b.StartLine, b.EndLine = 100, 200
	b.FilePath = "pkg/billing/refund.go"
	assert.False(t, a.Overlaps(b), "different files never overlap")
}

func TestFinding_CloneIsIndependent(t *testing.T) {
	a := validFinding()
	a.Evidence = []string{"nested loops"}

	c := a.Clone()
	c.Title = "changed"
	c.Evidence[0] = "changed"
	c.Evidence = append(c.Evidence, "extra")

	assert.Equal(t, "Tangled discount logic", a.Title)
	assert.Equal(t, []string{"nested loops"}, a.Evidence)
}

func TestFinding_WithConfidenceAndSeverity(t *testing.T) {
	a := validFinding()
	b := a.WithConfidence(0.3)
	assert.InDelta(t, 0.8, a.Confidence, 1e-9)
	assert.InDelta(t, 0.3, b.Confidence, 1e-9)

	c := a.WithSeverity(SeverityLow)
	assert.Equal(t, SeverityHigh, a.Severity)
	assert.Equal(t, SeverityLow, c.Severity)
}

func TestSeverity_Ordering(t *testing.T) {
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityLow, SeverityCritical))
	assert.Equal(t, SeverityHigh, MaxSeverity(SeverityHigh, SeverityInfo))
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Equal(t, 1, SeverityCritical.Priority())
	assert.Greater(t, SeverityLow.Priority(), SeverityHigh.Priority())
	assert.False(t, Severity("catastrophic").IsValid())
}

func TestDebtType_TaxonomyIsClosed(t *testing.T) {
	for _, dt := range AllDebtTypes() {
		assert.True(t, dt.IsValid(), "%s", dt)
	}
	assert.False(t, DebtType("spaghetti").IsValid())

	assert.Equal(t, EffortXLarge, DefaultEffort(DebtSecurityIssue))
	assert.Equal(t, EffortTrivial, DefaultEffort(DebtHardcodedConfig))
	assert.Equal(t, EffortMedium, DefaultEffort(DebtFlakyTests), "unlisted types default to medium")
}
