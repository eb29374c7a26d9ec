package models

import "time"

// AgentRole identifies a specialist agent in the roster.
type AgentRole string

const (
	RoleScanner   AgentRole = "scanner"
	RoleArchitect AgentRole = "architect"
	RoleHistorian AgentRole = "historian"
	RoleCritic    AgentRole = "critic"
	RolePlanner   AgentRole = "planner"

	// RoleBroadcast addresses a message to every subscriber.
	RoleBroadcast AgentRole = "broadcast"
)

// MessageType classifies inter-agent messages.
type MessageType string

const (
	MessageFinding   MessageType = "finding"
	MessageChallenge MessageType = "challenge"
	MessageEvidence  MessageType = "evidence"
	MessageConcede   MessageType = "concede"
	MessageDefend    MessageType = "defend"
	MessageEscalate  MessageType = "escalate"
	MessageConsensus MessageType = "consensus"
	MessageVote      MessageType = "vote"
)

// MessageContent is the payload of an AgentMessage. Optional fields are nil
// when absent; Vote is only meaningful when the message type is "vote" and
// Confidence only when the sender attaches one.
type MessageContent struct {
	Text       string   `json:"text"`
	Finding    *Finding `json:"finding,omitempty"`
	Evidence   []string `json:"evidence,omitempty"`
	Vote       *bool    `json:"vote,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// AgentMessage is a single typed message exchanged over the bus. Messages are
// immutable after publication; the bus assigns total order by publish time.
type AgentMessage struct {
	ID        string         `json:"id"`
	From      AgentRole      `json:"from"`
	To        AgentRole      `json:"to"`
	Type      MessageType    `json:"type"`
	Content   MessageContent `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	InReplyTo string         `json:"in_reply_to,omitempty"`
}

// FindingID returns the id of the finding referenced by the message content,
// or "" when the message carries none.
func (m *AgentMessage) FindingID() string {
	if m.Content.Finding == nil {
		return ""
	}
	return m.Content.Finding.ID
}
