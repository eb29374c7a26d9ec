package models

// ConflictType classifies a structural disagreement between discovery agents.
type ConflictType string

const (
	ConflictContradictoryFindings ConflictType = "contradictory_findings"
	ConflictSeverityDisagreement  ConflictType = "severity_disagreement"
	ConflictClassificationDispute ConflictType = "classification_dispute"
	ConflictScopeDisagreement     ConflictType = "scope_disagreement"
)

// Claim is one agent's position inside a conflict.
type Claim struct {
	Agent      AgentRole `json:"agent"`
	Finding    *Finding  `json:"finding"`
	Rationale  string    `json:"rationale"`
	Confidence float64   `json:"confidence"`
}

// ConflictEvidence is a weighted piece of evidence attached to a conflict,
// supporting one of the claimants.
type ConflictEvidence struct {
	Agent    AgentRole `json:"agent"`
	Kind     string    `json:"kind"`
	Content  string    `json:"content"`
	Supports AgentRole `json:"supports"`
	Weight   float64   `json:"weight"`
}

// Conflict is produced by the detector and consumed by the resolver. Never
// mutated after creation.
type Conflict struct {
	ID       string             `json:"id"`
	Type     ConflictType       `json:"type"`
	Parties  []AgentRole        `json:"parties"`
	Claims   []Claim            `json:"claims"`
	Evidence []ConflictEvidence `json:"evidence,omitempty"`
}

// Decision is the resolver's choice for a conflict.
type Decision string

const (
	DecisionAcceptFirst  Decision = "accept_first"
	DecisionAcceptSecond Decision = "accept_second"
	DecisionMerge        Decision = "merge"
	DecisionRejectBoth   Decision = "reject_both"
)

// ResolutionMethod records which path produced a resolution.
type ResolutionMethod string

const (
	ResolvedByVote     ResolutionMethod = "vote"
	ResolvedByArbiter  ResolutionMethod = "arbiter"
	ResolvedByEvidence ResolutionMethod = "evidence"
)

// ConflictResolution is the resolver's output for one conflict.
type ConflictResolution struct {
	ConflictID       string           `json:"conflict_id"`
	Decision         Decision         `json:"decision"`
	Reasoning        string           `json:"reasoning"`
	ResultingFinding *Finding         `json:"resulting_finding,omitempty"`
	ResolvedBy       ResolutionMethod `json:"resolved_by"`
}
