package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// ScriptEntry defines a single scripted LLM response for tests.
type ScriptEntry struct {
	Response *Response // returned from Complete (exactly one of Response/Err)
	JSON     string    // returned from CompleteStructured (unmarshalled into out)
	Err      error

	// BlockUntilCancelled makes the call block until ctx is cancelled.
	BlockUntilCancelled bool
}

// ScriptedClient implements Client with a dual-dispatch script: sequential
// fallback plus routing by a substring of the system prompt, for fan-out
// phases where call order is non-deterministic.
type ScriptedClient struct {
	mu         sync.Mutex
	sequential []ScriptEntry
	seqIndex   int
	routes     map[string][]ScriptEntry
	routeIndex map[string]int
	captured   []Request
}

// NewScriptedClient creates an empty scripted client.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{
		routes:     make(map[string][]ScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddSequential appends an entry consumed in order by non-routed calls.
func (c *ScriptedClient) AddSequential(entry ScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequential = append(c.sequential, entry)
}

// AddRouted appends an entry consumed by calls whose system prompt contains
// marker. Used when parallel agents need differentiated responses.
func (c *ScriptedClient) AddRouted(marker string, entry ScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[marker] = append(c.routes[marker], entry)
}

// ToolCallResponse is a convenience builder for a response carrying one tool
// call with JSON-marshalled args.
func ToolCallResponse(name string, args any) *Response {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("scripted tool args not marshallable: %v", err))
	}
	return &Response{
		ToolCalls:    []ToolCall{{Name: name, Args: raw}},
		FinishReason: FinishToolCalls,
	}
}

// Captured returns all requests seen so far.
func (c *ScriptedClient) Captured() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.captured...)
}

func (c *ScriptedClient) next(req Request) (ScriptEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured = append(c.captured, req)

	for marker, entries := range c.routes {
		if strings.Contains(req.SystemPrompt, marker) && c.routeIndex[marker] < len(entries) {
			entry := entries[c.routeIndex[marker]]
			c.routeIndex[marker]++
			return entry, nil
		}
	}
	if c.seqIndex < len(c.sequential) {
		entry := c.sequential[c.seqIndex]
		c.seqIndex++
		return entry, nil
	}
	return ScriptEntry{}, fmt.Errorf("scripted client exhausted (call %d)", len(c.captured))
}

// Complete implements Client.
func (c *ScriptedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	entry, err := c.next(req)
	if err != nil {
		return nil, err
	}
	if entry.BlockUntilCancelled {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if entry.Err != nil {
		return nil, entry.Err
	}
	if entry.Response == nil {
		return &Response{FinishReason: FinishStop}, nil
	}
	return entry.Response, nil
}

// CompleteStructured implements Client.
func (c *ScriptedClient) CompleteStructured(ctx context.Context, req Request, _ *Schema, out any) error {
	entry, err := c.next(req)
	if err != nil {
		return err
	}
	if entry.BlockUntilCancelled {
		<-ctx.Done()
		return ctx.Err()
	}
	if entry.Err != nil {
		return entry.Err
	}
	if err := json.Unmarshal([]byte(entry.JSON), out); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return nil
}

// Stream implements Client by replaying a Complete response as events.
func (c *ScriptedClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamEvent, len(resp.ToolCalls)+2)
	if resp.Content != "" {
		ch <- StreamEvent{Content: resp.Content}
	}
	for i := range resp.ToolCalls {
		tc := resp.ToolCalls[i]
		ch <- StreamEvent{ToolCall: &tc}
	}
	ch <- StreamEvent{FinishReason: resp.FinishReason}
	close(ch)
	return ch, nil
}
