package models

import "time"

// DebateStatus is the lifecycle state of a debate.
type DebateStatus string

const (
	DebateActive    DebateStatus = "active"
	DebateResolved  DebateStatus = "resolved"
	DebateEscalated DebateStatus = "escalated"
)

// Debate is a bounded exchange of typed messages about whether a finding
// should be accepted. Once the status leaves active, the message list is
// frozen.
type Debate struct {
	ID         string            `json:"id"`
	Topic      *Finding          `json:"topic"`
	Initiator  AgentRole         `json:"initiator"`
	Challenger AgentRole         `json:"challenger"`
	Messages   []AgentMessage    `json:"messages"`
	Status     DebateStatus      `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	Resolution *DebateResolution `json:"resolution,omitempty"`
}

// Rounds returns the number of completed debate rounds (two messages each).
func (d *Debate) Rounds() int { return len(d.Messages) / 2 }

// DebateResolution is the outcome attached to a resolved debate.
// If the finding was rejected, FinalConfidence is zero.
type DebateResolution struct {
	Accepted         bool               `json:"accepted"`
	Reason           string             `json:"reason"`
	Votes            map[AgentRole]bool `json:"votes"`
	FinalConfidence  float64            `json:"final_confidence"`
	AdjustedSeverity *Severity          `json:"adjusted_severity,omitempty"`
}
