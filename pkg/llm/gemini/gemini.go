// Package gemini adapts the Google GenAI SDK to the llm.Client interface.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/entropyops/debtscan/pkg/llm"
)

// DefaultModel is used when a request does not name one.
const DefaultModel = "gemini-2.0-flash"

// Client calls the Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini-backed LLM client. model may be empty.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key", llm.ErrFatalTransport)
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	contents, config := c.translate(req)
	resp, err := c.client.Models.GenerateContent(ctx, c.modelFor(req), contents, config)
	if err != nil {
		return nil, classify(err)
	}
	return fromGenAI(resp), nil
}

// CompleteStructured implements llm.Client using Gemini's JSON response mode.
func (c *Client) CompleteStructured(ctx context.Context, req llm.Request, schema *llm.Schema, out any) error {
	contents, config := c.translate(req)
	config.ResponseMIMEType = "application/json"
	config.ResponseSchema = toGenAISchema(schema)

	resp, err := c.client.Models.GenerateContent(ctx, c.modelFor(req), contents, config)
	if err != nil {
		return classify(err)
	}
	text := resp.Text()
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: %w", llm.ErrSchema, err)
	}
	return nil
}

// Stream implements llm.Client.
func (c *Client) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	contents, config := c.translate(req)
	events := make(chan llm.StreamEvent, 32)

	go func() {
		defer close(events)
		finish := llm.FinishStop
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.modelFor(req), contents, config) {
			if err != nil {
				return
			}
			chunk := fromGenAI(resp)
			if chunk.Content != "" {
				select {
				case events <- llm.StreamEvent{Content: chunk.Content}:
				case <-ctx.Done():
					return
				}
			}
			for i := range chunk.ToolCalls {
				tc := chunk.ToolCalls[i]
				select {
				case events <- llm.StreamEvent{ToolCall: &tc}:
				case <-ctx.Done():
					return
				}
				finish = llm.FinishToolCalls
			}
			if chunk.FinishReason != "" {
				finish = chunk.FinishReason
			}
		}
		select {
		case events <- llm.StreamEvent{FinishReason: finish}:
		case <-ctx.Done():
		}
	}()

	return events, nil
}

func (c *Client) modelFor(req llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

// translate converts a provider-agnostic request to genai contents + config.
func (c *Client) translate(req llm.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	var contents []*genai.Content
	for _, msg := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		config.Temperature = &t
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, td := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  toGenAISchema(td.Parameters),
			})
		}
		config.Tools = []*genai.Tool{tool}
	}
	return contents, config
}

// toGenAISchema converts the provider-agnostic schema to the genai form.
func toGenAISchema(s *llm.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    append([]string(nil), s.Required...),
		Enum:        append([]string(nil), s.Enum...),
		Items:       toGenAISchema(s.Items),
	}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenAISchema(prop)
		}
	}
	return out
}

// fromGenAI flattens the first candidate into a provider-agnostic response.
func fromGenAI(resp *genai.GenerateContentResponse) *llm.Response {
	out := &llm.Response{FinishReason: llm.FinishStop}
	if resp == nil || len(resp.Candidates) == 0 {
		return out
	}
	cand := resp.Candidates[0]
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				out.Content += part.Text
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					args = []byte("{}")
				}
				out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
					Name: part.FunctionCall.Name,
					Args: args,
				})
			}
		}
	}
	switch cand.FinishReason {
	case genai.FinishReasonMaxTokens:
		out.FinishReason = llm.FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent:
		out.FinishReason = llm.FinishContentFilter
	default:
		if len(out.ToolCalls) > 0 {
			out.FinishReason = llm.FinishToolCalls
		}
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out
}

// classify maps SDK errors onto the transport error kinds. Authentication and
// quota rejections are fatal for the calling agent; everything else is
// retryable.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403, 429:
			return fmt.Errorf("%w: %w", llm.ErrFatalTransport, err)
		}
	}
	return llm.TransportError(err)
}
