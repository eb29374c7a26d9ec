// Package models defines the core domain entities of the debt-analysis
// pipeline: findings, agent messages, debates, conflicts, and remediation
// plans. Entities are immutable once published on the bus; mutation happens
// only in local builders before publication.
package models

// DebtType classifies a piece of technical debt. The set is closed; tool-call
// arguments carrying an unknown type are rejected at the runner boundary.
type DebtType string

const (
	DebtCodeSmell            DebtType = "code_smell"
	DebtComplexity           DebtType = "complexity"
	DebtDuplication          DebtType = "duplication"
	DebtDeadCode             DebtType = "dead_code"
	DebtCircularDependency   DebtType = "circular_dependency"
	DebtLayerViolation       DebtType = "layer_violation"
	DebtGodClass             DebtType = "god_class"
	DebtFeatureEnvy          DebtType = "feature_envy"
	DebtOutdatedDependency   DebtType = "outdated_dependency"
	DebtVulnerableDependency DebtType = "vulnerable_dependency"
	DebtMissingLockFile      DebtType = "missing_lock_file"
	DebtLowCoverage          DebtType = "low_coverage"
	DebtMissingTests         DebtType = "missing_tests"
	DebtFlakyTests           DebtType = "flaky_tests"
	DebtMissingDocs          DebtType = "missing_docs"
	DebtOutdatedDocs         DebtType = "outdated_docs"
	DebtHardcodedConfig      DebtType = "hardcoded_config"
	DebtSecurityIssue        DebtType = "security_issue"
)

// debtTypes is the closed taxonomy used for validation.
var debtTypes = map[DebtType]bool{
	DebtCodeSmell:            true,
	DebtComplexity:           true,
	DebtDuplication:          true,
	DebtDeadCode:             true,
	DebtCircularDependency:   true,
	DebtLayerViolation:       true,
	DebtGodClass:             true,
	DebtFeatureEnvy:          true,
	DebtOutdatedDependency:   true,
	DebtVulnerableDependency: true,
	DebtMissingLockFile:      true,
	DebtLowCoverage:          true,
	DebtMissingTests:         true,
	DebtFlakyTests:           true,
	DebtMissingDocs:          true,
	DebtOutdatedDocs:         true,
	DebtHardcodedConfig:      true,
	DebtSecurityIssue:        true,
}

// IsValid reports whether t is part of the debt taxonomy.
func (t DebtType) IsValid() bool { return debtTypes[t] }

// AllDebtTypes returns the taxonomy in declaration order.
func AllDebtTypes() []DebtType {
	return []DebtType{
		DebtCodeSmell, DebtComplexity, DebtDuplication, DebtDeadCode,
		DebtCircularDependency, DebtLayerViolation, DebtGodClass,
		DebtFeatureEnvy, DebtOutdatedDependency, DebtVulnerableDependency,
		DebtMissingLockFile, DebtLowCoverage, DebtMissingTests,
		DebtFlakyTests, DebtMissingDocs, DebtOutdatedDocs,
		DebtHardcodedConfig, DebtSecurityIssue,
	}
}

// Severity expresses how urgent a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRanks orders severities for gap comparison (critical highest).
var severityRanks = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	_, ok := severityRanks[s]
	return ok
}

// Rank maps the severity to its numeric order: critical=4 … info=0.
// Unknown severities rank as info.
func (s Severity) Rank() int { return severityRanks[s] }

// Priority maps the severity to a remediation priority (1 = most urgent).
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 5
	case SeverityLow:
		return 7
	default:
		return 9
	}
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Effort estimates the work required by a remediation task.
type Effort string

const (
	EffortTrivial Effort = "trivial"
	EffortSmall   Effort = "small"
	EffortMedium  Effort = "medium"
	EffortLarge   Effort = "large"
	EffortXLarge  Effort = "xlarge"
)

// defaultEfforts maps each debt type to its default remediation effort.
var defaultEfforts = map[DebtType]Effort{
	DebtSecurityIssue:      EffortXLarge,
	DebtCircularDependency: EffortLarge,
	DebtLayerViolation:     EffortLarge,
	DebtGodClass:           EffortLarge,
	DebtComplexity:         EffortMedium,
	DebtDuplication:        EffortMedium,
	DebtMissingTests:       EffortMedium,
	DebtFeatureEnvy:        EffortMedium,
	DebtCodeSmell:          EffortSmall,
	DebtDeadCode:           EffortSmall,
	DebtMissingDocs:        EffortSmall,
	DebtHardcodedConfig:    EffortTrivial,
}

// DefaultEffort returns the default remediation effort for a debt type.
// Types without an explicit entry default to medium.
func DefaultEffort(t DebtType) Effort {
	if e, ok := defaultEfforts[t]; ok {
		return e
	}
	return EffortMedium
}
