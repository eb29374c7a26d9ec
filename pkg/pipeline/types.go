// Package pipeline drives one scan through the four-phase state machine:
// discovery, debate, resolution, planning. The controller owns all per-scan
// state; agents and adjudication components communicate through it and the
// message bus only.
package pipeline

import (
	"time"

	"github.com/entropyops/debtscan/pkg/models"
)

// Phase is the pipeline state for one scan.
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhaseDebate     Phase = "debate"
	PhaseResolution Phase = "resolution"
	PhasePlanning   Phase = "planning"
	PhaseComplete   Phase = "complete"
)

// ScanRequest identifies one scan.
type ScanRequest struct {
	ScanID       string
	RepositoryID string
}

// RejectedFinding pairs a discarded finding with the reason it lost.
type RejectedFinding struct {
	Finding *models.Finding `json:"finding"`
	Reason  string          `json:"reason"`
}

// ScanResult is everything one scan produced. Errors carries recoverable and
// fatal agent errors alike; Failed is set only for invariant violations,
// which void the plan.
type ScanResult struct {
	ScanID         string                       `json:"scan_id"`
	RepositoryID   string                       `json:"repository_id"`
	Phase          Phase                        `json:"phase"`
	PhaseDurations map[Phase]time.Duration      `json:"phase_durations,omitempty"`
	Validated      []*models.Finding            `json:"validated"`
	Rejected       []RejectedFinding            `json:"rejected"`
	Merged         []*models.Finding            `json:"merged"`
	Conflicts      []*models.Conflict           `json:"conflicts"`
	Resolutions    []*models.ConflictResolution `json:"resolutions"`
	Debates        []*models.Debate             `json:"debates"`
	Plan           *models.RemediationPlan      `json:"plan,omitempty"`
	Errors         []models.AgentError          `json:"errors,omitempty"`
	Failed         bool                         `json:"failed"`
}
