package models

import "fmt"

// ErrorKind classifies pipeline errors for aggregation on the scan result.
type ErrorKind string

const (
	ErrorKindTransport      ErrorKind = "transport"
	ErrorKindAgentItem      ErrorKind = "agent_item"
	ErrorKindSchema         ErrorKind = "schema"
	ErrorKindInvariant      ErrorKind = "invariant"
	ErrorKindCancelled      ErrorKind = "cancelled"
	ErrorKindFatalTransport ErrorKind = "fatal_transport"
)

// AgentError records a failure during agent execution. Recoverable errors are
// accumulated and surfaced on the scan result; non-recoverable errors
// terminate the owning runner (but not the pipeline).
type AgentError struct {
	Agent       AgentRole `json:"agent"`
	Kind        ErrorKind `json:"kind"`
	Item        string    `json:"item,omitempty"` // file path or finding id
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
}

func (e *AgentError) Error() string {
	if e.Item != "" {
		return fmt.Sprintf("%s agent: %s (%s): %s", e.Agent, e.Kind, e.Item, e.Message)
	}
	return fmt.Sprintf("%s agent: %s: %s", e.Agent, e.Kind, e.Message)
}
