// Package retrieval turns a profile query into candidate courses from the vector index.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/garyellow/edu-advisor/internal/errors"
	"github.com/garyellow/edu-advisor/internal/vectorstore"
)

// DefaultQuery replaces an empty query.
const DefaultQuery = "machine learning"

// Candidate is one retrieved course record. Payload field names depend on
// the ingestion source and are normalized later by the roadmap generator.
type Candidate struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// QueryEmbedder embeds a search query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a similarity search against a collection.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]vectorstore.Hit, error)
}

// Retriever embeds queries and searches one collection.
type Retriever struct {
	embedder   QueryEmbedder
	searcher   Searcher
	collection string
}

// New creates a Retriever over collection.
func New(embedder QueryEmbedder, searcher Searcher, collection string) *Retriever {
	return &Retriever{
		embedder:   embedder,
		searcher:   searcher,
		collection: collection,
	}
}

// Retrieve returns up to topK candidates in the order the store returns them.
// Embedding and search errors are returned unchanged in kind.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Candidate, error) {
	if topK < 1 {
		return nil, apperrors.NewValidationError("top_k", "must be at least 1")
	}

	query = strings.TrimSpace(query)
	if query == "" {
		query = DefaultQuery
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.searcher.Search(ctx, r.collection, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.collection, err)
	}

	candidates := make([]Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = Candidate{ID: h.ID, Score: h.Score, Payload: h.Payload}
	}
	return candidates, nil
}

// Collection returns the searched collection name.
func (r *Retriever) Collection() string {
	return r.collection
}
