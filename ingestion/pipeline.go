package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docquery/ai"
	"github.com/poiesic/docquery/core"
	"github.com/poiesic/docquery/extract"
)

const (
	defaultChunkSize = 1000
	defaultOverlap   = 200
	defaultBatchSize = 64
)

// Pipeline turns a source document into index-aligned segments and
// embedding vectors. Extraction and splitting run synchronously; embedding
// is batched over a worker pool so large documents don't serialize on the
// embedding service.
type Pipeline struct {
	extractor extract.Extractor
	embedder  ai.Embedder
	splitter  *Splitter
	pool      *ants.Pool
	batchSize int
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithChunking sets the segment size and overlap.
// Default is 1000 bytes with an overlap of 200.
func WithChunking(chunkSize, overlap int) Option {
	return func(p *Pipeline) error {
		splitter, err := NewSplitter(chunkSize, overlap)
		if err != nil {
			return err
		}
		p.splitter = splitter
		return nil
	}
}

// WithBatchSize sets the number of segments embedded per service call.
// Default is 64, with a minimum of 1.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.batchSize = size
		return nil
	}
}

// WithPoolSize sets the worker pool size for concurrent embedding calls.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release the old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(extractor extract.Extractor, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	splitter, err := NewSplitter(defaultChunkSize, defaultOverlap)
	if err != nil {
		return nil, err
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		extractor: extractor,
		embedder:  embedder,
		splitter:  splitter,
		pool:      pool,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// Build extracts, splits and embeds a document. The returned vectors are
// index-aligned with the returned segments. Build either fully succeeds or
// returns an error with no partial result, so a failed build never leaves a
// half-constructed session behind.
func (p *Pipeline) Build(ctx context.Context, doc io.Reader) ([]core.Segment, [][]float32, error) {
	text, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, nil, err
	}

	segments := p.splitter.Split(text)
	if len(segments) == 0 {
		return nil, nil, core.ErrEmptyDocument
	}
	p.logger.Debug("split document", "segments", len(segments), "chars", len(text))

	vectors, err := p.embed(ctx, segments)
	if err != nil {
		return nil, nil, err
	}
	return segments, vectors, nil
}

// embed generates embeddings for all segments, batchSize segments per
// service call, batches running concurrently on the worker pool. The first
// batch error fails the whole build.
func (p *Pipeline) embed(ctx context.Context, segments []core.Segment) ([][]float32, error) {
	vectors := make([][]float32, len(segments))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for start := 0; start < len(segments); start += p.batchSize {
		end := min(start+p.batchSize, len(segments))
		batch := segments[start:end]
		offset := start

		wg.Add(1)
		task := func() {
			defer wg.Done()

			texts := make([]string, len(batch))
			for i, segment := range batch {
				texts[i] = segment.Text
			}

			batchVectors, err := p.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				fail(err)
				return
			}
			if len(batchVectors) != len(texts) {
				fail(fmt.Errorf("%w: result mismatch, expected %d vectors, received %d",
					core.ErrEmbeddingService, len(texts), len(batchVectors)))
				return
			}
			for i, v := range batchVectors {
				vectors[offset+i] = v
			}
		}
		if err := p.pool.Submit(task); err != nil {
			// Pool unavailable (released or overloaded): run inline.
			task()
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	// All vectors in one search must share a dimension.
	dimension := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d",
				core.ErrEmbeddingService, i, len(v), dimension)
		}
	}
	return vectors, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
