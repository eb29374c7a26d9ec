// Package vector provides the optional code-similarity boundary used to
// enrich critic reviews. The core depends only on the Searcher interface; the
// Qdrant adapter embeds the query text and searches one collection of code
// chunks.
package vector

import (
	"context"
)

// Match is one similar code chunk.
type Match struct {
	FilePath   string
	Content    string
	StartLine  int
	EndLine    int
	Similarity float64
}

// Query selects similar chunks. Threshold filters by minimum similarity;
// zero disables it.
type Query struct {
	Text         string
	RepositoryID string
	Limit        int
	Threshold    float64
}

// Searcher is the injected similarity-search boundary.
type Searcher interface {
	SearchSimilar(ctx context.Context, q Query) ([]Match, error)
}

// Embedder turns text into the vector the search index was built with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
