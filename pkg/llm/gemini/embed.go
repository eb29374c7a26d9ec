package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultEmbeddingModel matches the model used to build the code-chunk index.
const DefaultEmbeddingModel = "text-embedding-004"

// Embedder produces query embeddings for vector search.
type Embedder struct {
	client *genai.Client
	model  string
}

// NewEmbedder creates an embedder sharing the client's connection. model may
// be empty.
func (c *Client) NewEmbedder(model string) *Embedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{client: c.client, model: model}
}

// Embed returns the embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding response carried no vectors")
	}
	return resp.Embeddings[0].Values, nil
}
