package conflict

import (
	"strings"

	"github.com/entropyops/debtscan/pkg/ident"
	"github.com/entropyops/debtscan/pkg/models"
)

// descriptionProbeLen is the prefix of the secondary description used to
// decide whether it is already contained in the primary one.
const descriptionProbeLen = 50

// Merge combines two overlapping findings into one. The finding with higher
// confidence dominates type, path and description; ties break toward the
// lexicographically smaller id. Merging a finding with itself yields the same
// finding under a fresh id.
//
// contentLookup resolves file content for fingerprint recomputation; it may
// be nil, in which case the fingerprint falls back to the title form.
func Merge(a, b *models.Finding, contentLookup func(path string) string) *models.Finding {
	f1, f2 := a, b
	if f2.Confidence > f1.Confidence || (f2.Confidence == f1.Confidence && f2.ID < f1.ID) {
		f1, f2 = f2, f1
	}

	merged := f1.Clone()
	merged.ID = ident.New()
	merged.Severity = models.MaxSeverity(f1.Severity, f2.Severity)
	merged.Confidence = (f1.Confidence + f2.Confidence) / 2
	merged.StartLine, merged.EndLine = mergedSpan(f1, f2)
	merged.Evidence = dedupEvidence(f1.Evidence, f2.Evidence)
	merged.SuggestedFix = firstNonEmpty(f1.SuggestedFix, f2.SuggestedFix)
	merged.Description = mergedDescription(f1.Description, f2.Description)

	var content string
	if contentLookup != nil {
		content = contentLookup(merged.FilePath)
	}
	merged.Fingerprint = ident.Fingerprint(merged, content)
	return merged
}

// mergedSpan covers the union of the defined spans.
func mergedSpan(f1, f2 *models.Finding) (int, int) {
	switch {
	case f1.HasSpan() && f2.HasSpan():
		return min(f1.StartLine, f2.StartLine), max(f1.EndLine, f2.EndLine)
	case f1.HasSpan():
		return f1.StartLine, f1.EndLine
	case f2.HasSpan():
		return f2.StartLine, f2.EndLine
	}
	return 0, 0
}

// dedupEvidence concatenates preserving first-occurrence order.
func dedupEvidence(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, item := range append(append([]string(nil), a...), b...) {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

// mergedDescription keeps the primary description, appending the secondary
// one only when it adds something the primary does not already contain.
func mergedDescription(primary, secondary string) string {
	if secondary == "" {
		return primary
	}
	probe := secondary
	if len(probe) > descriptionProbeLen {
		probe = probe[:descriptionProbeLen]
	}
	if strings.Contains(primary, probe) {
		return primary
	}
	return primary + "\n\nAdditional context: " + secondary
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
