package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/garyellow/edu-advisor/internal/errors"
	"github.com/garyellow/edu-advisor/internal/logger"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", false, logger.New("error"))
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.EnsureCollection("courses", 3))
	require.NoError(t, s.Upsert(context.Background(), "courses", []Point{
		{ID: "0", Vector: []float32{1, 0, 0}, Payload: map[string]any{"title": "Intro to ML", "rating": 4.5}},
		{ID: "1", Vector: []float32{0, 1, 0}, Payload: map[string]any{"title": "Web Basics", "final_url": nil}},
		{ID: "2", Vector: []float32{0.9, 0.1, 0}, Payload: map[string]any{"course_title": "Deep Learning"}},
	}))
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	t.Parallel()
	s := newMemoryStore(t)

	require.NoError(t, s.EnsureCollection("courses", 384))
	require.NoError(t, s.EnsureCollection("courses", 384))

	size, ok := s.VectorSize("courses")
	assert.True(t, ok)
	assert.Equal(t, 384, size)
}

func TestEnsureCollection_SizeMismatch(t *testing.T) {
	t.Parallel()
	s := newMemoryStore(t)

	require.NoError(t, s.EnsureCollection("courses", 384))
	err := s.EnsureCollection("courses", 768)
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
}

func TestEnsureCollection_InvalidSize(t *testing.T) {
	t.Parallel()
	s := newMemoryStore(t)

	err := s.EnsureCollection("courses", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSearch_DescendingScore(t *testing.T) {
	t.Parallel()
	s := newMemoryStore(t)
	seed(t, s)

	hits, err := s.Search(context.Background(), "courses", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "0", hits[0].ID)
	assert.Equal(t, "2", hits[1].ID)
	assert.Equal(t, "1", hits[2].ID)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}

	assert.Equal(t, "Intro to ML", hits[0].Payload["title"])
	assert.InDelta(t, 4.5, hits[0].Payload["rating"], 1e-9)
	assert.Equal(t, "Deep Learning", hits[1].Payload["course_title"])

	v, present := hits[2].Payload["final_url"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestSearch_TopKCappedAtCount(t *testing.T) {
	t.Parallel()
	s := newMemoryStore(t)
	seed(t, s)

	hits, err := s.Search(context.Background(), "courses", []float32{0, 1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	assert.Equal(t, "1", hits[0].ID)

	hits, err = s.Search(context.Background(), "courses", []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearch_EmptyCollection(t *testing.T) {
	t.Parallel()
	s := newMemoryStore(t)
	require.NoError(t, s.EnsureCollection("courses", 3))

	hits, err := s.Search(context.Background(), "courses", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_Errors(t *testing.T) {
	t.Parallel()
	s := newMemoryStore(t)
	seed(t, s)
	ctx := context.Background()

	_, err := s.Search(ctx, "missing", []float32{1, 0, 0}, 3)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.Search(ctx, "courses", []float32{1, 0}, 3)
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)

	_, err = s.Search(ctx, "courses", []float32{1, 0, 0}, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestUpsert_ReplacesByID(t *testing.T) {
	t.Parallel()
	s := newMemoryStore(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "courses", []Point{
		{ID: "1", Vector: []float32{0, 1, 0}, Payload: map[string]any{"title": "Web Advanced"}},
	}))
	assert.Equal(t, 3, s.Count("courses"))

	hits, err := s.Search(ctx, "courses", []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Web Advanced", hits[0].Payload["title"])
}

func TestUpsert_Validation(t *testing.T) {
	t.Parallel()
	s := newMemoryStore(t)
	require.NoError(t, s.EnsureCollection("courses", 3))
	ctx := context.Background()

	err := s.Upsert(ctx, "courses", []Point{{ID: "", Vector: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	err = s.Upsert(ctx, "courses", []Point{{ID: "a", Vector: []float32{1}}})
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)

	err = s.Upsert(ctx, "missing", []Point{{ID: "a", Vector: []float32{1, 0, 0}}})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	assert.NoError(t, s.Upsert(ctx, "missing", nil))
}

func TestCount_UnknownCollection(t *testing.T) {
	t.Parallel()
	s := newMemoryStore(t)
	assert.Zero(t, s.Count("nope"))

	var nilStore *Store
	assert.Zero(t, nilStore.Count("nope"))
	_, ok := nilStore.VectorSize("nope")
	assert.False(t, ok)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "vectors")
	log := logger.New("error")

	s, err := Open(path, false, log)
	require.NoError(t, err)
	seed(t, s)

	reopened, err := Open(path, false, log)
	require.NoError(t, err)

	size, ok := reopened.VectorSize("courses")
	require.True(t, ok)
	assert.Equal(t, 3, size)
	assert.Equal(t, 3, reopened.Count("courses"))

	err = reopened.EnsureCollection("courses", 4)
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)

	hits, err := reopened.Search(context.Background(), "courses", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Intro to ML", hits[0].Payload["title"])
}
