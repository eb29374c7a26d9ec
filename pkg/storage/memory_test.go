package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropyops/debtscan/pkg/models"
)

func TestMemoryStore_SaveFindingsUpserts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	f := &models.Finding{ID: "F1", DebtType: models.DebtCodeSmell, Severity: models.SeverityLow, Title: "t", FilePath: "a.ts"}
	require.NoError(t, s.SaveFindings(ctx, "scan-1", []*models.Finding{f}))

	updated := f.WithSeverity(models.SeverityHigh)
	require.NoError(t, s.SaveFindings(ctx, "scan-1", []*models.Finding{updated}))

	stored := s.Findings()
	require.Len(t, stored, 1)
	assert.Equal(t, models.SeverityHigh, stored[0].Severity)
}

func TestMemoryStore_SavePlanOncePerScan(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := &models.RemediationPlan{ScanID: "scan-1", Summary: "first"}
	second := &models.RemediationPlan{ScanID: "scan-1", Summary: "second"}
	require.NoError(t, s.SavePlan(ctx, first))
	require.NoError(t, s.SavePlan(ctx, second))

	got, err := s.Plan(ctx, "scan-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Summary, "second insert for the same scan is a no-op")

	missing, err := s.Plan(ctx, "scan-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_RecordOccurrenceIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	occ := Occurrence{Fingerprint: "fp-1", ScanID: "scan-1", FilePath: "a.ts", Severity: models.SeverityHigh, Confidence: 0.8}
	require.NoError(t, s.RecordOccurrence(ctx, occ))
	require.NoError(t, s.RecordOccurrence(ctx, occ))

	assert.Len(t, s.Occurrences(), 1)

	other := occ
	other.ScanID = "scan-2"
	require.NoError(t, s.RecordOccurrence(ctx, other))
	assert.Len(t, s.Occurrences(), 2, "same fingerprint in a later scan is a new occurrence")
}
