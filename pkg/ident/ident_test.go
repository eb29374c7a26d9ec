package ident

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropyops/debtscan/pkg/models"
)

func TestNew_StrictlyIncreasing(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = New()
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	assert.Equal(t, sorted, ids, "ids generated in one process sort by creation order")

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
		assert.Len(t, id, 26)
	}
}

func spannedFinding() *models.Finding {
	return &models.Finding{
		DebtType:  models.DebtComplexity,
		FilePath:  "pkg/parser/parse.go",
		Title:     "Deeply nested branch logic",
		StartLine: 2,
		EndLine:   3,
	}
}

const content = "package parser\nfunc parse() {\t\n\tif deep {}   \n}\n"

func TestFingerprint_StableAcrossCosmeticChanges(t *testing.T) {
	a := spannedFinding()
	b := spannedFinding()
	b.Title = "Different title"
	b.Description = "different description"
	b.Severity = models.SeverityCritical

	assert.Equal(t, Fingerprint(a, content), Fingerprint(b, content),
		"title, description and severity are not identity fields for a spanned finding")
}

func TestFingerprint_ChangesWithIdentityFields(t *testing.T) {
	base := Fingerprint(spannedFinding(), content)

	other := spannedFinding()
	other.DebtType = models.DebtDuplication
	assert.NotEqual(t, base, Fingerprint(other, content))

	other = spannedFinding()
	other.FilePath = "pkg/parser/lex.go"
	assert.NotEqual(t, base, Fingerprint(other, content))

	other = spannedFinding()
	other.StartLine, other.EndLine = 1, 1
	assert.NotEqual(t, base, Fingerprint(other, content))
}

func TestFingerprint_TitleStandsInWithoutSpan(t *testing.T) {
	f := spannedFinding()
	f.StartLine, f.EndLine = 0, 0

	withTitle := Fingerprint(f, content)
	f.Title = "Another title"
	assert.NotEqual(t, withTitle, Fingerprint(f, content),
		"without a span the title is part of the identity")
}

func TestNormalizeSpan(t *testing.T) {
	span := NormalizeSpan(content, 2, 3)
	assert.Equal(t, "func parse() {\n\tif deep {}", span, "trailing whitespace is stripped per line")

	assert.Equal(t, "}\n", NormalizeSpan(content, 4, 99), "end clamps to the last line")
	assert.Empty(t, NormalizeSpan(content, 99, 100))
	assert.Empty(t, NormalizeSpan(content, 0, 2))
}
