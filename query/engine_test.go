package query

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/docquery/ai"
	"github.com/poiesic/docquery/ai/mock"
	"github.com/poiesic/docquery/core"
	"github.com/poiesic/docquery/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	registry *session.Registry
	embedder *mock.MockEmbedder
	chat     *mock.MockChatModel
	engine   *Engine
	token    string
}

// newEngineFixture registers one document whose segment vectors span the
// plane, so a query embedding of [1,0] ranks them first, second, third.
func newEngineFixture(t *testing.T, opts ...Option) *engineFixture {
	t.Helper()

	registry := session.NewRegistry()
	t.Cleanup(registry.Close)

	segments := []core.Segment{
		core.NewSegment(0, "aligned segment"),
		core.NewSegment(1, "diagonal segment"),
		core.NewSegment(2, "orthogonal segment"),
	}
	vectors := [][]float32{
		{1, 0},
		{1, 1},
		{0, 1},
	}
	s, err := registry.Create(segments, vectors)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(_ context.Context, _ string) ([]float32, error) {
		return []float32{1, 0}, nil
	}
	chat := mock.NewMockChatModel()

	engine, err := NewEngine(registry, mock.NewMockProviderWithServices(embedder, chat), opts...)
	require.NoError(t, err)

	return &engineFixture{
		registry: registry,
		embedder: embedder,
		chat:     chat,
		engine:   engine,
		token:    s.Token,
	}
}

func TestNewEngine(t *testing.T) {
	t.Run("requires a registry", func(t *testing.T) {
		_, err := NewEngine(nil, mock.NewMockProvider())
		assert.ErrorIs(t, err, ErrRegistryRequired)
	})

	t.Run("requires a provider", func(t *testing.T) {
		registry := session.NewRegistry()
		defer registry.Close()

		_, err := NewEngine(registry, nil)
		assert.ErrorIs(t, err, ErrAIProviderRequired)
	})

	t.Run("rejects invalid top-k", func(t *testing.T) {
		registry := session.NewRegistry()
		defer registry.Close()

		_, err := NewEngine(registry, mock.NewMockProvider(), WithTopK(0))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("ranks segments by cosine similarity", func(t *testing.T) {
		f := newEngineFixture(t)

		hits, err := f.engine.Retrieve(ctx, f.token, "what is aligned?", 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)

		assert.Equal(t, "aligned segment", hits[0].Segment.Text)
		assert.Equal(t, "diagonal segment", hits[1].Segment.Text)
		assert.Equal(t, "orthogonal segment", hits[2].Segment.Text)

		assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
		assert.InDelta(t, 0.7071, hits[1].Score, 1e-4)
		assert.InDelta(t, 0.0, hits[2].Score, 1e-9)
	})

	t.Run("zero k uses the engine default", func(t *testing.T) {
		f := newEngineFixture(t, WithTopK(2))

		hits, err := f.engine.Retrieve(ctx, f.token, "question", 0)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("negative k is rejected", func(t *testing.T) {
		f := newEngineFixture(t)

		_, err := f.engine.Retrieve(ctx, f.token, "question", -1)
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newEngineFixture(t)

		_, err := f.engine.Retrieve(ctx, "no-such-token", "question", 2)
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
		assert.Equal(t, 0, f.embedder.CallCount(), "no embedding for a missing session")
	})
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("grounds the prompt in retrieved segments", func(t *testing.T) {
		f := newEngineFixture(t)

		answer, err := f.engine.Answer(ctx, f.token, "what is aligned?", 2)
		require.NoError(t, err)
		assert.Equal(t, "This is a mock answer.", answer)

		messages := f.chat.LastMessages()
		require.Len(t, messages, 2)
		assert.Equal(t, ai.RoleSystem, messages[0].Role)
		assert.Equal(t, "You are a helpful assistant for answering questions about a document.", messages[0].Content)

		require.Equal(t, ai.RoleUser, messages[1].Role)
		prompt := messages[1].Content
		assert.Contains(t, prompt, "aligned segment\n---\ndiagonal segment",
			"segments appear in rank order, delimiter-separated")
		assert.NotContains(t, prompt, "orthogonal segment", "only top-k segments are included")
		assert.Contains(t, prompt, "Question: what is aligned?")
		assert.True(t, strings.HasSuffix(prompt, "Answer:"))
	})

	t.Run("embedding failure never reaches the chat model", func(t *testing.T) {
		f := newEngineFixture(t)
		f.embedder.EmbedTextFunc = func(_ context.Context, _ string) ([]float32, error) {
			return nil, fmt.Errorf("%w: connection refused", core.ErrEmbeddingService)
		}

		_, err := f.engine.Answer(ctx, f.token, "question", 2)
		assert.ErrorIs(t, err, core.ErrEmbeddingService)
		assert.Equal(t, 0, f.chat.CallCount())
	})

	t.Run("unknown session never reaches the chat model", func(t *testing.T) {
		f := newEngineFixture(t)

		_, err := f.engine.Answer(ctx, "no-such-token", "question", 2)
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
		assert.Equal(t, 0, f.chat.CallCount())
	})

	t.Run("chat failure propagates", func(t *testing.T) {
		f := newEngineFixture(t)
		f.chat.CompleteFunc = func(_ context.Context, _ []ai.Message) (string, error) {
			return "", fmt.Errorf("%w: rate limited", core.ErrChatService)
		}

		_, err := f.engine.Answer(ctx, f.token, "question", 2)
		assert.ErrorIs(t, err, core.ErrChatService)
	})
}

func TestAnswerWithMonitor(t *testing.T) {
	f := newEngineFixture(t)

	var stages []string
	monitor := &recordingMonitor{stages: &stages}

	answer, err := f.engine.AnswerWithMonitor(context.Background(), f.token, "question", 2, monitor)
	require.NoError(t, err)
	assert.Equal(t, "This is a mock answer.", answer)
	assert.Equal(t, []string{"start", "embedding", "retrieval", "prompt", "finish"}, stages)
}

func TestAnswerStream(t *testing.T) {
	f := newEngineFixture(t)

	var chunks []string
	err := f.engine.AnswerStream(context.Background(), f.token, "question", 2,
		func(_ context.Context, chunk []byte) error {
			chunks = append(chunks, string(chunk))
			return nil
		})
	require.NoError(t, err)

	assert.Greater(t, len(chunks), 1, "answer arrives in multiple chunks")
	assert.Equal(t, "This is a mock answer.", strings.Join(chunks, ""))
}

type recordingMonitor struct {
	stages *[]string
}

func (r *recordingMonitor) Start(_ string)                        { *r.stages = append(*r.stages, "start") }
func (r *recordingMonitor) AfterQueryEmbedding(_ []float32)       { *r.stages = append(*r.stages, "embedding") }
func (r *recordingMonitor) AfterRetrieval(_ []core.ScoredSegment) { *r.stages = append(*r.stages, "retrieval") }
func (r *recordingMonitor) AfterPrompt(_ []ai.Message)            { *r.stages = append(*r.stages, "prompt") }
func (r *recordingMonitor) Finish(_ string)                       { *r.stages = append(*r.stages, "finish") }
