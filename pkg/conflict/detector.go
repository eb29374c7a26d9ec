// Package conflict detects and resolves structural disagreements between the
// discovery agents. Detection is pairwise within a file; resolution scores
// claims by evidence and confidence, optionally deferring to an LLM arbiter.
package conflict

import (
	"log/slog"

	"github.com/entropyops/debtscan/pkg/ident"
	"github.com/entropyops/debtscan/pkg/models"
)

// severityGapThreshold is the minimum severity-rank distance that counts as a
// disagreement (e.g. low vs critical).
const severityGapThreshold = 2

// scopeFactorThreshold is the span-size ratio beyond which two findings of
// the same type disagree about scope.
const scopeFactorThreshold = 2.0

// evidenceItemWeight is the weight of one evidence string carried over from
// a finding into a conflict.
const evidenceItemWeight = 0.1

// exclusivePairs are debt-type pairs that cannot both describe the same code.
var exclusivePairs = map[[2]models.DebtType]bool{
	orderedPair(models.DebtDeadCode, models.DebtMissingTests): true,
	orderedPair(models.DebtGodClass, models.DebtFeatureEnvy):  true,
}

func orderedPair(a, b models.DebtType) [2]models.DebtType {
	if b < a {
		a, b = b, a
	}
	return [2]models.DebtType{a, b}
}

// Detector finds conflicts between two discovery streams.
type Detector struct{}

// NewDetector creates a Detector.
func NewDetector() *Detector { return &Detector{} }

// Detect examines every cross-stream pair of findings in the same file and
// returns at most one conflict per pair. Cross-file pairs are never compared,
// so the result is commutative in the two streams up to claim order.
func (d *Detector) Detect(scanner, architect []*models.Finding) []*models.Conflict {
	var conflicts []*models.Conflict
	for _, sf := range scanner {
		for _, af := range architect {
			if sf.FilePath != af.FilePath {
				continue
			}
			if c := d.classify(sf, af); c != nil {
				conflicts = append(conflicts, c)
			}
		}
	}
	if len(conflicts) > 0 {
		slog.Debug("Conflicts detected", "count", len(conflicts))
	}
	return conflicts
}

// classify applies the detection rules in order; the first match wins.
func (d *Detector) classify(sf, af *models.Finding) *models.Conflict {
	overlap := sf.Overlaps(af)

	switch {
	case overlap && sf.DebtType != af.DebtType && exclusivePairs[orderedPair(sf.DebtType, af.DebtType)]:
		return d.build(models.ConflictClassificationDispute, sf, af,
			"mutually exclusive debt classifications for the same code")
	case overlap && sf.DebtType == af.DebtType && severityGap(sf.Severity, af.Severity) >= severityGapThreshold:
		return d.build(models.ConflictSeverityDisagreement, sf, af,
			"same debt reported at incompatible severities")
	case sf.DebtType == af.DebtType && scopeMismatch(sf, af):
		return d.build(models.ConflictScopeDisagreement, sf, af,
			"same debt reported over very different spans")
	}
	return nil
}

func (d *Detector) build(t models.ConflictType, sf, af *models.Finding, rationale string) *models.Conflict {
	c := &models.Conflict{
		ID:      ident.New(),
		Type:    t,
		Parties: []models.AgentRole{sf.ReportedBy, af.ReportedBy},
		Claims: []models.Claim{
			{Agent: sf.ReportedBy, Finding: sf.Clone(), Rationale: rationale, Confidence: sf.Confidence},
			{Agent: af.ReportedBy, Finding: af.Clone(), Rationale: rationale, Confidence: af.Confidence},
		},
	}
	for _, f := range []*models.Finding{sf, af} {
		for _, item := range f.Evidence {
			c.Evidence = append(c.Evidence, models.ConflictEvidence{
				Agent:    f.ReportedBy,
				Kind:     "observation",
				Content:  item,
				Supports: f.ReportedBy,
				Weight:   evidenceItemWeight,
			})
		}
	}
	return c
}

func severityGap(a, b models.Severity) int {
	gap := a.Rank() - b.Rank()
	if gap < 0 {
		gap = -gap
	}
	return gap
}

// scopeMismatch reports whether the two spans differ in size by more than the
// scope factor. Findings without spans carry no scope to disagree about.
func scopeMismatch(a, b *models.Finding) bool {
	sa, sb := a.SpanSize(), b.SpanSize()
	if sa == 0 || sb == 0 {
		return false
	}
	if sa < sb {
		sa, sb = sb, sa
	}
	return float64(sa) > scopeFactorThreshold*float64(sb)
}
