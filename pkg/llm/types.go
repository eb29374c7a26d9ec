// Package llm defines the transport boundary to large-language-model
// providers. The core consumes only this interface; concrete providers live
// in subpackages (gemini) or in tests (scripted client).
package llm

// Role of a conversation message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
	Tools        []ToolDefinition
}

// ToolDefinition declares a tool the model may call, with a JSON-schema-like
// parameter description in provider-agnostic form.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  *Schema
}

// Schema is a minimal provider-agnostic JSON schema. Providers translate it
// into their native schema type.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// FinishReason reports why the model stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
)

// ToolCall is a structured tool invocation returned by the model. Args is the
// raw JSON argument object; callers unmarshal into their own types.
type ToolCall struct {
	Name string
	Args []byte
}

// Usage aggregates token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	Usage        Usage
	FinishReason FinishReason
}

// StreamEvent is one element of a streamed response: exactly one of Content,
// ToolCall or FinishReason is set.
type StreamEvent struct {
	Content      string
	ToolCall     *ToolCall
	FinishReason FinishReason
}
