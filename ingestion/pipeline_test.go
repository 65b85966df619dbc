package ingestion

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/docquery/ai/mock"
	"github.com/poiesic/docquery/core"
	"github.com/poiesic/docquery/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, embedder *mock.MockEmbedder, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(extract.NewPlainText(), embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestNewPipeline(t *testing.T) {
	t.Run("requires an extractor", func(t *testing.T) {
		_, err := NewPipeline(nil, mock.NewMockEmbedder())
		assert.ErrorIs(t, err, ErrExtractorRequired)
	})

	t.Run("requires an embedder", func(t *testing.T) {
		_, err := NewPipeline(extract.NewPlainText(), nil)
		assert.ErrorIs(t, err, ErrEmbedderRequired)
	})

	t.Run("rejects invalid chunking", func(t *testing.T) {
		_, err := NewPipeline(extract.NewPlainText(), mock.NewMockEmbedder(),
			WithChunking(100, 100))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

func TestPipelineBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("segments and vectors are aligned", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
			vectors := make([][]float32, len(texts))
			for i, text := range texts {
				// Encode the text length so alignment is observable.
				vectors[i] = []float32{float32(len(text)), 1}
			}
			return vectors, nil
		}

		p := newTestPipeline(t, embedder, WithChunking(4, 1))
		segments, vectors, err := p.Build(ctx, strings.NewReader("abcdefghij"))
		require.NoError(t, err)
		require.Len(t, segments, 3)
		require.Len(t, vectors, 3)

		for i, segment := range segments {
			assert.Equal(t, i, segment.Index)
			assert.Equal(t, float32(len(segment.Text)), vectors[i][0])
		}
	})

	t.Run("empty document fails", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		p := newTestPipeline(t, embedder)

		segments, vectors, err := p.Build(ctx, strings.NewReader("   \n\t "))
		assert.ErrorIs(t, err, core.ErrEmptyDocument)
		assert.Nil(t, segments)
		assert.Nil(t, vectors)
		assert.Equal(t, 0, embedder.CallCount())
	})

	t.Run("embedding failure yields no partial result", func(t *testing.T) {
		failure := fmt.Errorf("%w: connection refused", core.ErrEmbeddingService)
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(_ context.Context, _ []string) ([][]float32, error) {
			return nil, failure
		}

		p := newTestPipeline(t, embedder, WithChunking(4, 1))
		segments, vectors, err := p.Build(ctx, strings.NewReader("abcdefghij"))
		assert.ErrorIs(t, err, core.ErrEmbeddingService)
		assert.Nil(t, segments)
		assert.Nil(t, vectors)
	})

	t.Run("vector count mismatch fails", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
			return make([][]float32, len(texts)-1), nil
		}

		p := newTestPipeline(t, embedder, WithChunking(4, 1))
		_, _, err := p.Build(ctx, strings.NewReader("abcdefghij"))
		assert.ErrorIs(t, err, core.ErrEmbeddingService)
	})

	t.Run("inconsistent dimensions fail", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
			vectors := make([][]float32, len(texts))
			for i, text := range texts {
				// Dimension varies per batch.
				vectors[i] = make([]float32, 1+len(text)%3)
			}
			return vectors, nil
		}

		p := newTestPipeline(t, embedder, WithChunking(4, 0), WithBatchSize(1))
		_, _, err := p.Build(ctx, strings.NewReader("abcdefghij"))
		assert.ErrorIs(t, err, core.ErrEmbeddingService)
	})

	t.Run("small batches preserve segment order", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
			vectors := make([][]float32, len(texts))
			for i, text := range texts {
				vectors[i] = []float32{float32(text[0]), 1}
			}
			return vectors, nil
		}

		text := strings.Repeat("abcdefghijklmnop", 16)
		p := newTestPipeline(t, embedder, WithChunking(8, 2), WithBatchSize(1), WithPoolSize(4))

		segments, vectors, err := p.Build(ctx, strings.NewReader(text))
		require.NoError(t, err)
		require.Equal(t, len(segments), len(vectors))
		assert.Greater(t, embedder.CallCount(), 1)

		for i, segment := range segments {
			assert.Equal(t, float32(segment.Text[0]), vectors[i][0],
				"vector %d does not belong to segment %d", i, i)
		}
	})
}
