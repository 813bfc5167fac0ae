// Package ingest loads cleaned course tables into the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/garyellow/edu-advisor/internal/genai"
	"github.com/garyellow/edu-advisor/internal/logger"
	"github.com/garyellow/edu-advisor/internal/metrics"
	"github.com/garyellow/edu-advisor/internal/vectorstore"
)

// DefaultBatchSize is the number of rows embedded and upserted together.
const DefaultBatchSize = 256

// probeText is embedded once to learn the vector size.
const probeText = "test"

// Index is the vector store the ingester writes to.
type Index interface {
	EnsureCollection(name string, vectorSize int) error
	Upsert(ctx context.Context, collection string, points []vectorstore.Point) error
}

// Config controls one ingestion run.
type Config struct {
	Collection  string
	BatchSize   int
	StartID     int // id of the first row
	Concurrency int // parallel embedding requests per batch
	// BatchTimeout bounds embedding plus upsert of one batch. 0 disables it.
	BatchTimeout time.Duration
}

// Result summarizes a run.
type Result struct {
	Rows       int
	Batches    int
	VectorSize int
}

// Ingester embeds table rows and upserts them as points.
type Ingester struct {
	embedder genai.Embedder
	index    Index
	cfg      Config
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// New creates an Ingester. m may be nil.
func New(embedder genai.Embedder, index Index, cfg Config, m *metrics.Metrics, log *logger.Logger) *Ingester {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Ingester{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		metrics:  m,
		logger:   log.WithModule("ingest"),
	}
}

// Run ensures the collection exists and upserts every row of t. Row i gets
// id StartID+i. A failed batch stops the run; earlier batches stay written.
func (in *Ingester) Run(ctx context.Context, t *Table) (Result, error) {
	if in.cfg.Collection == "" {
		return Result{}, errors.New("collection name is required")
	}

	size, err := in.vectorSize(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := in.index.EnsureCollection(in.cfg.Collection, size); err != nil {
		return Result{}, fmt.Errorf("ensure collection: %w", err)
	}

	res := Result{VectorSize: size}
	in.logger.WithFields(map[string]any{
		"collection":  in.cfg.Collection,
		"rows":        len(t.Rows),
		"vector_size": size,
		"batch_size":  in.cfg.BatchSize,
	}).Info("Starting ingestion")

	for start := 0; start < len(t.Rows); start += in.cfg.BatchSize {
		end := min(start+in.cfg.BatchSize, len(t.Rows))
		if err := in.batch(ctx, t, start, end); err != nil {
			return res, err
		}
		res.Rows += end - start
		res.Batches++
	}

	in.logger.WithField("rows", res.Rows).WithField("batches", res.Batches).Info("Ingestion finished")
	return res, nil
}

func (in *Ingester) vectorSize(ctx context.Context) (int, error) {
	vecs, err := in.embedder.EmbedDocuments(ctx, []string{probeText})
	if err != nil {
		return 0, fmt.Errorf("probe embedding: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return 0, errors.New("probe embedding returned no vector")
	}
	return len(vecs[0]), nil
}

func (in *Ingester) batch(ctx context.Context, t *Table, start, end int) error {
	if in.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.cfg.BatchTimeout)
		defer cancel()
	}

	texts := make([]string, end-start)
	for i := range texts {
		texts[i] = t.EmbeddingText(start + i)
	}

	chunk := (len(texts) + in.cfg.Concurrency - 1) / in.cfg.Concurrency
	vecs, err := genai.EmbedAll(ctx, in.embedder, texts, chunk, in.cfg.Concurrency)
	if err != nil {
		return fmt.Errorf("embed rows %d-%d: %w", start, end-1, err)
	}

	points := make([]vectorstore.Point, len(vecs))
	for i, v := range vecs {
		points[i] = vectorstore.Point{
			ID:      strconv.Itoa(in.cfg.StartID + start + i),
			Vector:  v,
			Payload: t.Payload(start + i),
		}
	}

	if err := in.index.Upsert(ctx, in.cfg.Collection, points); err != nil {
		return fmt.Errorf("upsert rows %d-%d: %w", start, end-1, err)
	}

	if in.metrics != nil {
		in.metrics.RecordIngested(len(points))
	}
	in.logger.WithField("from", in.cfg.StartID+start).
		WithField("to", in.cfg.StartID+end-1).
		Info("Upserted points")
	return nil
}
