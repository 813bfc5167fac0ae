package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/garyellow/edu-advisor/internal/metrics"
)

// ErrEmptyText is returned when asked to embed blank text.
var ErrEmptyText = errors.New("empty or whitespace-only text cannot be embedded")

// geminiEmbedder uses the Gemini embedContent API with task-specific types.
type geminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int32
	batchSize  int
}

func newGeminiEmbedder(ctx context.Context, cfg EmbeddingConfig) (*geminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required for embeddings")
	}
	client, err := newGeminiClient(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	e := &geminiEmbedder{
		client:     client,
		model:      cfg.Model,
		dimensions: int32(cfg.Dimensions),
		batchSize:  cfg.BatchSize,
	}
	if e.model == "" {
		e.model = GeminiEmbeddingModel
	}
	if e.dimensions <= 0 {
		e.dimensions = GeminiEmbeddingDimensions
	}
	if e.batchSize <= 0 || e.batchSize > geminiMaxBatch {
		e.batchSize = geminiMaxBatch
	}
	return e, nil
}

func (e *geminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *geminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embed(ctx, texts[start:end], "RETRIEVAL_DOCUMENT")
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *geminiEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyText
		}
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: genai.Ptr(e.dimensions),
	})
	if err != nil {
		return nil, WrapError(fmt.Errorf("embed content: %w", err), ProviderGemini)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, WrapError(fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), len(texts)), ProviderGemini)
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, WrapError(fmt.Errorf("empty embedding at index %d", i), ProviderGemini)
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (e *geminiEmbedder) Provider() Provider { return ProviderGemini }

// openaiEmbedder calls an OpenAI-compatible /embeddings endpoint, such as a
// self-hosted sentence-transformers server.
type openaiEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
	batchSize  int
}

func newOpenAIEmbedder(cfg EmbeddingConfig) (*openaiEmbedder, error) {
	if cfg.BaseURL == "" && cfg.APIKey == "" {
		return nil, errors.New("openai embeddings: base URL or API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	e := &openaiEmbedder{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
	}
	if e.model == "" {
		e.model = OpenAIEmbeddingModel
	}
	if e.batchSize <= 0 || e.batchSize > openAIMaxBatch {
		e.batchSize = openAIMaxBatch
	}
	return e, nil
}

func (e *openaiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *openaiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *openaiEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyText
		}
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, WrapError(fmt.Errorf("create embeddings: %w", err), ProviderOpenAI)
	}
	if len(resp.Data) != len(texts) {
		return nil, WrapError(fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)), ProviderOpenAI)
	}

	// Servers may return data out of order; Index is authoritative.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			return nil, WrapError(fmt.Errorf("embedding index %d out of range", idx), ProviderOpenAI)
		}
		out[idx] = toFloat32(d.Embedding)
	}
	return out, nil
}

func (e *openaiEmbedder) Provider() Provider { return ProviderOpenAI }

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// retryingEmbedder retries transient failures and records embedding metrics.
type retryingEmbedder struct {
	inner       Embedder
	retryConfig RetryConfig
}

func (r *retryingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := withRetry(ctx, r.retryConfig, "embed_query", func(ctx context.Context) ([]float32, error) {
		return r.inner.EmbedQuery(ctx, text)
	})
	r.record(err)
	return v, err
}

func (r *retryingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := withRetry(ctx, r.retryConfig, "embed_documents", func(ctx context.Context) ([][]float32, error) {
		return r.inner.EmbedDocuments(ctx, texts)
	})
	r.record(err)
	return v, err
}

func (r *retryingEmbedder) Provider() Provider { return r.inner.Provider() }

func (r *retryingEmbedder) record(err error) {
	if metrics.EmbeddingTotal == nil {
		return
	}
	metrics.EmbeddingTotal.WithLabelValues(string(r.inner.Provider()), errorLabel(err)).Inc()
}

// EmbedAll embeds texts in chunks of chunkSize using up to concurrency
// parallel requests. Output order matches input order.
func EmbedAll(ctx context.Context, e Embedder, texts []string, chunkSize, concurrency int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if chunkSize <= 0 {
		chunkSize = len(texts)
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for start := 0; start < len(texts); start += chunkSize {
		end := min(start+chunkSize, len(texts))
		g.Go(func() error {
			vecs, err := e.EmbedDocuments(gCtx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding texts %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding texts %d-%d: got %d vectors", start, end-1, len(vecs))
			}
			copy(results[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
