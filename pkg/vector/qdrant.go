package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys of the code-chunk collection.
const (
	payloadFilePath     = "file_path"
	payloadContent      = "content"
	payloadStartLine    = "start_line"
	payloadEndLine      = "end_line"
	payloadRepositoryID = "repository_id"
)

// QdrantSearcher implements Searcher over a Qdrant collection of embedded
// code chunks.
type QdrantSearcher struct {
	client     *qdrant.Client
	embedder   Embedder
	collection string
}

// NewQdrantSearcher connects to Qdrant's gRPC port.
func NewQdrantSearcher(host string, port int, collection string, embedder Embedder) (*QdrantSearcher, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant at %s:%d: %w", host, port, err)
	}
	return &QdrantSearcher{client: client, embedder: embedder, collection: collection}, nil
}

// SearchSimilar implements Searcher.
func (s *QdrantSearcher) SearchSimilar(ctx context.Context, q Query) ([]Match, error) {
	vec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	limit := uint64(q.Limit)
	if limit == 0 {
		limit = 5
	}
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if q.Threshold > 0 {
		threshold := float32(q.Threshold)
		req.ScoreThreshold = &threshold
	}
	if q.RepositoryID != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadRepositoryID, q.RepositoryID),
			},
		}
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		matches = append(matches, Match{
			FilePath:   payload[payloadFilePath].GetStringValue(),
			Content:    payload[payloadContent].GetStringValue(),
			StartLine:  int(payload[payloadStartLine].GetIntegerValue()),
			EndLine:    int(payload[payloadEndLine].GetIntegerValue()),
			Similarity: float64(p.GetScore()),
		})
	}
	slog.Debug("Similarity search completed",
		"collection", s.collection, "matches", len(matches), "limit", limit)
	return matches, nil
}
