package models

// RemediationTask is one unit of the remediation plan, covering a group of
// related findings in a single file.
type RemediationTask struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	RelatedDebtIDs     []string `json:"related_debt_ids"`
	EstimatedEffort    Effort   `json:"estimated_effort"`
	Priority           int      `json:"priority"` // 1..10, 1 = highest
	Dependencies       []string `json:"dependencies,omitempty"`
	SuggestedApproach  string   `json:"suggested_approach"`
	Risks              []string `json:"risks"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	FilePath           string   `json:"file_path"`
}

// RemediationPlan is the pipeline's final output. QuickWins, StrategicWork
// and Deferrable partition PrioritizedTasks by task id.
type RemediationPlan struct {
	ScanID           string            `json:"scan_id"`
	Summary          string            `json:"summary"`
	TotalDebtItems   int               `json:"total_debt_items"`
	PrioritizedTasks []RemediationTask `json:"prioritized_tasks"`
	QuickWins        []string          `json:"quick_wins"`
	StrategicWork    []string          `json:"strategic_work"`
	Deferrable       []string          `json:"deferrable"`
}
