// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package docquery

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/docquery/ai"
	"github.com/poiesic/docquery/ai/openai"
	"github.com/poiesic/docquery/core"
	"github.com/poiesic/docquery/embedcache"
	"github.com/poiesic/docquery/extract"
	"github.com/poiesic/docquery/ingestion"
	"github.com/poiesic/docquery/query"
	"github.com/poiesic/docquery/session"
)

// Service bundles the full document question-answering flow: upload a
// document, then ask questions against its session token. It wires the
// ingestion pipeline, the session registry and the query engine over one
// AI provider.
type Service struct {
	provider ai.Provider
	registry *session.Registry
	pipeline *ingestion.Pipeline
	engine   *query.Engine
	cache    *embedcache.Cache

	// ownsRegistry is false when the registry was supplied from outside;
	// shared registries are never closed here.
	ownsRegistry bool
	logger       *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	registry   *session.Registry
	ttl        time.Duration
	chunkSize  int
	overlap    int
	topK       int
	poolSize   int
	cacheModel string
	cachePath  string
	logger     *slog.Logger
}

// WithRegistry shares an existing session registry instead of creating one.
// Shared registries survive Close, so several services can serve the same
// sessions.
func WithRegistry(registry *session.Registry) ServiceOption {
	return func(o *serviceOptions) {
		o.registry = registry
	}
}

// WithSessionTTL evicts sessions idle for longer than ttl.
// Ignored when WithRegistry is used; the shared registry keeps its own
// policy. Default is no expiry.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		o.ttl = ttl
	}
}

// WithChunking sets the segment size and overlap used when splitting
// uploaded documents. Default is 1000 bytes with an overlap of 200.
func WithChunking(chunkSize, overlap int) ServiceOption {
	return func(o *serviceOptions) {
		o.chunkSize = chunkSize
		o.overlap = overlap
	}
}

// WithTopK sets the default number of segments retrieved per question.
// Default is 4.
func WithTopK(k int) ServiceOption {
	return func(o *serviceOptions) {
		o.topK = k
	}
}

// WithPoolSize sets the worker pool size for concurrent embedding calls.
func WithPoolSize(size int) ServiceOption {
	return func(o *serviceOptions) {
		o.poolSize = size
	}
}

// WithEmbeddingCache caches embedding vectors for the named model. An empty
// path keeps the cache in memory; a directory path persists it across runs.
func WithEmbeddingCache(model, path string) ServiceOption {
	return func(o *serviceOptions) {
		o.cacheModel = model
		o.cachePath = path
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// New creates a Service backed by an OpenAI-compatible API.
// A nil cfg uses ai.DefaultConfig.
func New(cfg *ai.Config, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = ai.DefaultConfig()
	}
	provider, err := openai.NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	// NewService closes the provider on failure.
	return NewService(provider, opts...)
}

// NewService creates a Service around an existing AI provider.
// The provider is closed together with the service.
func NewService(provider ai.Provider, opts ...ServiceOption) (*Service, error) {
	if provider == nil {
		return nil, query.ErrAIProviderRequired
	}

	options := &serviceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	svc := &Service{
		provider: provider,
		logger:   options.logger,
	}

	// Registry: shared or owned
	if options.registry != nil {
		svc.registry = options.registry
	} else {
		var registryOpts []session.Option
		if options.ttl > 0 {
			registryOpts = append(registryOpts, session.WithTTL(options.ttl))
		}
		registryOpts = append(registryOpts, session.WithLogger(options.logger))
		svc.registry = session.NewRegistry(registryOpts...)
		svc.ownsRegistry = true
	}

	// Embedder, optionally behind a cache
	embedder := provider.Embedder()
	if options.cacheModel != "" {
		var cacheOpts []embedcache.Option
		if options.cachePath != "" {
			cacheOpts = append(cacheOpts, embedcache.WithPath(options.cachePath))
		}
		cacheOpts = append(cacheOpts, embedcache.WithLogger(options.logger))

		cache, err := embedcache.Open(embedder, options.cacheModel, cacheOpts...)
		if err != nil {
			svc.close()
			return nil, err
		}
		svc.cache = cache
		embedder = cache
	}

	// Ingestion pipeline
	pipelineOpts := []ingestion.Option{ingestion.WithLogger(options.logger)}
	if options.chunkSize > 0 || options.overlap > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithChunking(options.chunkSize, options.overlap))
	}
	if options.poolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(options.poolSize))
	}
	pipeline, err := ingestion.NewPipeline(extract.NewPlainText(), embedder, pipelineOpts...)
	if err != nil {
		svc.close()
		return nil, err
	}
	svc.pipeline = pipeline

	// Query engine
	engineOpts := []query.Option{query.WithLogger(options.logger)}
	if options.topK != 0 {
		engineOpts = append(engineOpts, query.WithTopK(options.topK))
	}
	engine, err := query.NewEngine(svc.registry, &cachedProvider{inner: provider, embedder: embedder}, engineOpts...)
	if err != nil {
		svc.close()
		return nil, err
	}
	svc.engine = engine

	return svc, nil
}

// Upload ingests a document and registers a session for it.
// Returns the session token to present on later questions.
func (s *Service) Upload(ctx context.Context, doc io.Reader) (string, error) {
	segments, vectors, err := s.pipeline.Build(ctx, doc)
	if err != nil {
		return "", err
	}

	sess, err := s.registry.Create(segments, vectors)
	if err != nil {
		return "", err
	}

	s.logger.Info("document uploaded", "token", sess.Token, "segments", len(segments))
	return sess.Token, nil
}

// Ask answers a question about the document behind token, grounded in its
// most relevant segments. Pass k = 0 for the default.
func (s *Service) Ask(ctx context.Context, token, question string, k int) (string, error) {
	return s.engine.Answer(ctx, token, question, k)
}

// AskStream is Ask with the answer streamed to fn chunk by chunk.
func (s *Service) AskStream(ctx context.Context, token, question string, k int, fn ai.StreamFunc) error {
	return s.engine.AnswerStream(ctx, token, question, k, fn)
}

// Retrieve returns the document segments most similar to the query without
// asking the chat model. Pass k = 0 for the default.
func (s *Service) Retrieve(ctx context.Context, token, q string, k int) ([]core.ScoredSegment, error) {
	return s.engine.Retrieve(ctx, token, q, k)
}

// Chat sends a free conversation to the chat model, ungrounded.
func (s *Service) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	return s.provider.ChatModel().Complete(ctx, messages)
}

// ChatStream is Chat with the response streamed to fn chunk by chunk.
func (s *Service) ChatStream(ctx context.Context, messages []ai.Message, fn ai.StreamFunc) error {
	return s.provider.ChatModel().Stream(ctx, messages, fn)
}

// Registry returns the session registry backing this service.
func (s *Service) Registry() *session.Registry {
	return s.registry
}

// Close releases the pipeline, the embedding cache, the AI provider and,
// when owned, the session registry.
func (s *Service) Close() error {
	return s.close()
}

func (s *Service) close() error {
	if s.pipeline != nil {
		s.pipeline.Release()
	}

	var firstErr error
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("error closing embedding cache", "err", err)
			firstErr = err
		}
	}
	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if s.ownsRegistry && s.registry != nil {
		s.registry.Close()
	}
	return firstErr
}

// cachedProvider swaps the provider's embedder for the cache-wrapped one
// while leaving chat and lifecycle with the inner provider.
type cachedProvider struct {
	inner    ai.Provider
	embedder ai.Embedder
}

func (p *cachedProvider) Embedder() ai.Embedder   { return p.embedder }
func (p *cachedProvider) ChatModel() ai.ChatModel { return p.inner.ChatModel() }
func (p *cachedProvider) Close() error            { return nil }
