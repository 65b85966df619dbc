package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docquery/ai"
	"github.com/poiesic/docquery/core"
	"github.com/poiesic/docquery/session"
)

const (
	// defaultTopK is the number of segments retrieved per query.
	defaultTopK = 4

	// contextDelimiter separates retrieved segments in the grounding prompt.
	contextDelimiter = "\n---\n"

	systemPrompt = "You are a helpful assistant for answering questions about a document."

	userPromptTemplate = "Use the following document context to answer the user's question.\n\n" +
		"Context:\n%s\n\n" +
		"Question: %s\nAnswer:"
)

// Engine answers questions about an uploaded document. It retrieves the
// segments most similar to the question from the document's session index,
// assembles them into a grounding prompt, and delegates the final answer to
// the chat model.
type Engine struct {
	registry *session.Registry
	embedder ai.Embedder
	chat     ai.ChatModel
	topK     int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithTopK sets the default number of segments retrieved per query.
// Default is 4.
func WithTopK(k int) Option {
	return func(e *Engine) error {
		if err := core.ValidateTopK(k); err != nil {
			return err
		}
		e.topK = k
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a query engine over the given session registry and
// AI provider.
func NewEngine(registry *session.Registry, provider ai.Provider, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	e := &Engine{
		registry: registry,
		embedder: provider.Embedder(),
		chat:     provider.ChatModel(),
		topK:     defaultTopK,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Retrieve returns the k document segments most similar to the query,
// ranked by cosine similarity. Pass k = 0 for the engine default.
func (e *Engine) Retrieve(ctx context.Context, token, query string, k int) ([]core.ScoredSegment, error) {
	return e.retrieve(ctx, token, query, k, &noopMonitor{})
}

func (e *Engine) retrieve(ctx context.Context, token, query string, k int, monitor QueryMonitor) ([]core.ScoredSegment, error) {
	if k == 0 {
		k = e.topK
	}

	s, err := e.registry.Get(token)
	if err != nil {
		return nil, err
	}

	vector, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		e.logger.Error("error embedding query", "token", token, "err", err)
		return nil, err
	}
	monitor.AfterQueryEmbedding(vector)

	hits, err := s.Index.Search(vector, k)
	if err != nil {
		return nil, err
	}
	monitor.AfterRetrieval(hits)

	e.logger.Debug("retrieved segments", "token", token, "hits", len(hits), "k", k)
	return hits, nil
}

// Answer retrieves the most relevant segments for the query and asks the
// chat model for an answer grounded in them. Pass k = 0 for the engine
// default. A failed retrieval never reaches the chat model.
func (e *Engine) Answer(ctx context.Context, token, query string, k int) (string, error) {
	return e.AnswerWithMonitor(ctx, token, query, k, nil)
}

// AnswerWithMonitor is Answer with monitoring. The monitor receives
// callbacks at each stage of the answer process.
func (e *Engine) AnswerWithMonitor(ctx context.Context, token, query string, k int, monitor QueryMonitor) (string, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query)

	hits, err := e.retrieve(ctx, token, query, k, monitor)
	if err != nil {
		return "", err
	}

	messages := groundingMessages(hits, query)
	monitor.AfterPrompt(messages)

	answer, err := e.chat.Complete(ctx, messages)
	if err != nil {
		e.logger.Error("error generating answer", "token", token, "err", err)
		return "", err
	}
	monitor.Finish(answer)
	return answer, nil
}

// AnswerStream is Answer with the response streamed to fn chunk by chunk as
// the chat model produces it.
func (e *Engine) AnswerStream(ctx context.Context, token, query string, k int, fn ai.StreamFunc) error {
	hits, err := e.retrieve(ctx, token, query, k, &noopMonitor{})
	if err != nil {
		return err
	}

	if err := e.chat.Stream(ctx, groundingMessages(hits, query), fn); err != nil {
		e.logger.Error("error streaming answer", "token", token, "err", err)
		return err
	}
	return nil
}

// groundingMessages assembles the chat prompt: a fixed system message plus a
// user message carrying the retrieved segments and the question.
func groundingMessages(hits []core.ScoredSegment, query string) []ai.Message {
	texts := make([]string, len(hits))
	for i, hit := range hits {
		texts[i] = hit.Segment.Text
	}
	docContext := strings.Join(texts, contextDelimiter)

	return []ai.Message{
		{Role: ai.RoleSystem, Content: systemPrompt},
		{Role: ai.RoleUser, Content: fmt.Sprintf(userPromptTemplate, docContext, query)},
	}
}
