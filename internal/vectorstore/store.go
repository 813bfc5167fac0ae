// Package vectorstore provides a persistent course index backed by chromem-go.
//
// Vectors are computed by the caller (see internal/genai); the store never
// embeds text itself. Each point's payload is kept as JSON in the document
// content so loosely-typed values (numbers, nulls) survive persistence.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	apperrors "github.com/garyellow/edu-advisor/internal/errors"
	"github.com/garyellow/edu-advisor/internal/logger"
)

// metaVectorSize is the collection metadata key holding the vector dimension.
const metaVectorSize = "vector_size"

// Point is one indexed record.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Hit is one search result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Store wraps a chromem database with dimension bookkeeping per collection.
// Dimensions are kept in a sidecar JSON file next to the database directory.
type Store struct {
	db        *chromem.DB
	logger    *logger.Logger
	sizesPath string

	mu    sync.RWMutex
	sizes map[string]int
}

// Open opens (or creates) a persistent store under path.
// An empty path yields an in-memory store.
func Open(path string, compress bool, log *logger.Logger) (*Store, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("open vector store at %s: %w", path, err)
		}
	}

	s := &Store{
		db:     db,
		logger: log.WithModule("vectorstore"),
		sizes:  make(map[string]int),
	}

	if path != "" {
		s.sizesPath = path + ".sizes.json"
		if err := s.loadSizes(); err != nil {
			return nil, err
		}
	}

	s.logger.WithField("collections", len(s.sizes)).Debug("Vector store opened")
	return s, nil
}

// EnsureCollection creates the collection if absent. It is idempotent;
// an existing collection with a different vector size is an error.
func (s *Store) EnsureCollection(name string, vectorSize int) error {
	if s == nil {
		return apperrors.ErrNotFound
	}
	if vectorSize <= 0 {
		return apperrors.NewValidationError("vector_size", "must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sizes[name]; ok {
		if existing != vectorSize {
			return fmt.Errorf("%w: collection %s has vector size %d, got %d",
				apperrors.ErrDimensionMismatch, name, existing, vectorSize)
		}
		return nil
	}

	meta := map[string]string{metaVectorSize: strconv.Itoa(vectorSize)}
	if _, err := s.db.GetOrCreateCollection(name, meta, noEmbedding); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	s.sizes[name] = vectorSize
	if err := s.saveSizes(); err != nil {
		return err
	}

	s.logger.WithFields(map[string]any{
		"collection":  name,
		"vector_size": vectorSize,
	}).Info("Collection created")
	return nil
}

// Upsert writes points into the collection, replacing any with the same ID.
func (s *Store) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	c, size, err := s.collection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		if p.ID == "" {
			return apperrors.NewValidationError("id", "point id is required")
		}
		if len(p.Vector) != size {
			return fmt.Errorf("%w: point %s has %d dimensions, collection %s expects %d",
				apperrors.ErrDimensionMismatch, p.ID, len(p.Vector), collection, size)
		}
		content, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("encode payload for point %s: %w", p.ID, err)
		}
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Embedding: p.Vector,
			Content:   string(content),
		})
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(docs), collection, err)
	}
	return nil
}

// Search returns up to topK hits ordered by descending cosine similarity.
// An empty collection yields no hits.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Hit, error) {
	if topK < 1 {
		return nil, apperrors.NewValidationError("top_k", "must be at least 1")
	}

	c, size, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != size {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %s expects %d",
			apperrors.ErrDimensionMismatch, len(vector), collection, size)
	}

	// chromem rejects nResults larger than the document count.
	n := min(topK, c.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := c.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		payload := map[string]any{}
		if err := json.Unmarshal([]byte(r.Content), &payload); err != nil {
			s.logger.WithError(err).WithField("id", r.ID).Warn("Undecodable payload, returning empty")
			payload = map[string]any{}
		}
		hits = append(hits, Hit{ID: r.ID, Score: r.Similarity, Payload: payload})
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return hits, nil
}

// Count returns the number of points in the collection, or 0 if it does not exist.
func (s *Store) Count(collection string) int {
	c, _, err := s.collection(collection)
	if err != nil {
		return 0
	}
	return c.Count()
}

// VectorSize returns the dimension of the collection and whether it exists.
func (s *Store) VectorSize(collection string) (int, bool) {
	if s == nil {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.sizes[collection]
	return n, ok
}

func (s *Store) collection(name string) (*chromem.Collection, int, error) {
	if s == nil {
		return nil, 0, fmt.Errorf("collection %s: %w", name, apperrors.ErrNotFound)
	}

	s.mu.RLock()
	size, ok := s.sizes[name]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("collection %s: %w", name, apperrors.ErrNotFound)
	}

	c := s.db.GetCollection(name, noEmbedding)
	if c == nil {
		return nil, 0, fmt.Errorf("collection %s: %w", name, apperrors.ErrNotFound)
	}
	return c, size, nil
}

// loadSizes restores dimensions for collections present in the database.
func (s *Store) loadSizes() error {
	data, err := os.ReadFile(s.sizesPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read vector sizes: %w", err)
	}

	var sizes map[string]int
	if err := json.Unmarshal(data, &sizes); err != nil {
		return fmt.Errorf("decode vector sizes: %w", err)
	}

	existing := s.db.ListCollections()
	for name, n := range sizes {
		if _, ok := existing[name]; ok {
			s.sizes[name] = n
		}
	}
	return nil
}

// saveSizes writes the dimension table; callers hold s.mu.
func (s *Store) saveSizes() error {
	if s.sizesPath == "" {
		return nil
	}
	data, err := json.Marshal(s.sizes)
	if err != nil {
		return fmt.Errorf("encode vector sizes: %w", err)
	}
	tmp := s.sizesPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write vector sizes: %w", err)
	}
	if err := os.Rename(tmp, s.sizesPath); err != nil {
		return fmt.Errorf("write vector sizes: %w", err)
	}
	return nil
}

// noEmbedding guards against chromem falling back to its default remote
// embedding function; every document and query carries its own vector.
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("vectorstore: text embedding is not supported, supply vectors")
}
