package docquery

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

const testDocument = "The capital of France is Paris. " +
	"Paris is known for the Eiffel Tower. " +
	"The Seine flows through the city. " +
	"France borders Germany, Spain and Italy."

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *mock.MockProvider) {
	t.Helper()

	provider := mock.NewMockProvider().(*mock.MockProvider)
	svc, err := NewService(provider, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, provider
}

func TestNewService(t *testing.T) {
	t.Run("requires a provider", func(t *testing.T) {
		_, err := NewService(nil)
		assert.Error(t, err)
	})

	t.Run("rejects invalid chunking", func(t *testing.T) {
		_, err := NewService(mock.NewMockProvider(), WithChunking(100, 200))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("rejects invalid top-k", func(t *testing.T) {
		_, err := NewService(mock.NewMockProvider(), WithTopK(-1))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

func TestUploadAndAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		svc, provider := newTestService(t, WithChunking(40, 10))

		token, err := svc.Upload(ctx, strings.NewReader(testDocument))
		require.NoError(t, err)
		require.NotEmpty(t, token)
		assert.Equal(t, 1, svc.Registry().Len())

		answer, err := svc.Ask(ctx, token, "What is the capital of France?", 0)
		require.NoError(t, err)
		assert.Equal(t, "This is a mock answer.", answer)

		messages := provider.GetMockChatModel().LastMessages()
		require.Len(t, messages, 2)
		assert.Contains(t, messages[1].Content, "Question: What is the capital of France?")
	})

	t.Run("empty upload registers nothing", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Upload(ctx, strings.NewReader("   "))
		assert.ErrorIs(t, err, core.ErrEmptyDocument)
		assert.Equal(t, 0, svc.Registry().Len())
	})

	t.Run("asking an unknown session fails", func(t *testing.T) {
		svc, provider := newTestService(t)

		_, err := svc.Ask(ctx, "no-such-token", "question", 0)
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
		assert.Equal(t, 0, provider.GetMockChatModel().CallCount())
	})

	t.Run("embedding failure on upload registers nothing", func(t *testing.T) {
		svc, provider := newTestService(t)
		provider.GetMockEmbedder().EmbedTextsFunc = func(_ context.Context, _ []string) ([][]float32, error) {
			return nil, fmt.Errorf("%w: boom", core.ErrEmbeddingService)
		}

		_, err := svc.Upload(ctx, strings.NewReader(testDocument))
		assert.ErrorIs(t, err, core.ErrEmbeddingService)
		assert.Equal(t, 0, svc.Registry().Len())
	})
}

func TestAskStream(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, WithChunking(40, 10))

	token, err := svc.Upload(ctx, strings.NewReader(testDocument))
	require.NoError(t, err)

	var answer strings.Builder
	err = svc.AskStream(ctx, token, "question", 0, func(_ context.Context, chunk []byte) error {
		answer.Write(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "This is a mock answer.", answer.String())
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, WithChunking(40, 10), WithTopK(2))

	token, err := svc.Upload(ctx, strings.NewReader(testDocument))
	require.NoError(t, err)

	hits, err := svc.Retrieve(ctx, token, "Eiffel Tower", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestChat(t *testing.T) {
	ctx := context.Background()
	svc, provider := newTestService(t)

	messages := []ai.Message{
		{Role: ai.RoleUser, Content: "Hello there"},
	}
	answer, err := svc.Chat(ctx, messages)
	require.NoError(t, err)
	assert.Equal(t, "This is a mock answer.", answer)
	assert.Equal(t, messages, provider.GetMockChatModel().LastMessages())
}

func TestSharedRegistry(t *testing.T) {
	ctx := context.Background()

	registry := session.NewRegistry()
	defer registry.Close()

	first, err := NewService(mock.NewMockProvider(), WithRegistry(registry), WithChunking(40, 10))
	require.NoError(t, err)

	token, err := first.Upload(ctx, strings.NewReader(testDocument))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// A second service over the same registry still sees the session.
	second, err := NewService(mock.NewMockProvider(), WithRegistry(registry))
	require.NoError(t, err)
	defer second.Close()

	_, err = second.Ask(ctx, token, "question", 0)
	assert.NoError(t, err)
}

func TestEmbeddingCacheIntegration(t *testing.T) {
	ctx := context.Background()
	svc, provider := newTestService(t,
		WithChunking(40, 10),
		WithEmbeddingCache("mock-model", ""))

	token, err := svc.Upload(ctx, strings.NewReader(testDocument))
	require.NoError(t, err)
	uploads := provider.GetMockEmbedder().CallCount()

	// Re-uploading the identical document hits the cache for every segment.
	_, err = svc.Upload(ctx, strings.NewReader(testDocument))
	require.NoError(t, err)
	assert.Equal(t, uploads, provider.GetMockEmbedder().CallCount())

	_, err = svc.Ask(ctx, token, "question", 0)
	assert.NoError(t, err)
}
