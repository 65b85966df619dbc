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


package embedcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/docquery/ai"
)

// keyPrefix namespaces cache entries within the store.
const keyPrefix = "embv"

// Cache is a read-through embedding cache. It satisfies ai.Embedder by
// delegating misses to an inner embedder and remembering the results, so
// re-uploading a document never re-embeds unchanged text.
//
// Entries are keyed by model and text content. Read failures are treated as
// misses, never as errors.
type Cache struct {
	inner  ai.Embedder
	db     *badger.DB
	model  string
	logger *slog.Logger
}

var _ ai.Embedder = (*Cache)(nil)

// Option configures a Cache.
type Option func(*config)

type config struct {
	path   string
	logger *slog.Logger
}

// WithPath stores the cache on disk at the given directory instead of in
// memory. The directory is created if it does not exist.
func WithPath(path string) Option {
	return func(c *config) {
		c.path = path
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any)   { bl.logger.Error(fmt.Sprintf(msg, items...)) }
func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) { bl.logger.Warn(fmt.Sprintf(msg, items...)) }
func (bl *badgerLoggerAdapter) Infof(msg string, items ...any)    { bl.logger.Info(fmt.Sprintf(msg, items...)) }
func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any)   { bl.logger.Debug(fmt.Sprintf(msg, items...)) }

// Open creates an embedding cache in front of inner. Entries are scoped to
// model, so switching embedding models never serves stale vectors. The cache
// is in-memory unless WithPath is given; call Close when done.
func Open(inner ai.Embedder, model string, opts ...Option) (*Cache, error) {
	if inner == nil {
		return nil, ErrEmbedderRequired
	}
	if model == "" {
		return nil, ErrModelRequired
	}

	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.logger = cfg.logger.With("component", "embedding-cache")

	var badgerOpts badger.Options
	if cfg.path == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(cfg.path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(cfg.path, 0755); err != nil {
				return nil, err
			}
		} else if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", cfg.path)
		}
		badgerOpts = badger.DefaultOptions(cfg.path)
	}
	badgerOpts.Logger = &badgerLoggerAdapter{logger: cfg.logger}
	badgerOpts.Compression = options.None

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	return &Cache{
		inner:  inner,
		db:     db,
		model:  model,
		logger: cfg.logger,
	}, nil
}

// EmbedText returns the cached vector for text, embedding on a miss.
func (c *Cache) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts returns vectors for all texts in order, embedding only the
// cache misses. The inner embedder sees one batch containing just the
// missing texts.
func (c *Cache) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	missing := make([]string, 0, len(texts))
	missingAt := make([]int, 0, len(texts))
	for i, text := range texts {
		if v, ok := c.lookup(text); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, text)
		missingAt = append(missingAt, i)
	}

	c.logger.Debug("embedding cache lookup",
		"texts", len(texts), "hits", len(texts)-len(missing), "misses", len(missing))

	if len(missing) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("embedding result mismatch: expected %d vectors, received %d",
			len(missing), len(fresh))
	}

	for i, v := range fresh {
		vectors[missingAt[i]] = v
		c.store(missing[i], v)
	}
	return vectors, nil
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// lookup reads one cached vector. Any read failure counts as a miss.
func (c *Cache) lookup(text string) ([]float32, bool) {
	key := c.makeKey(text)

	var vector []float32
	err := c.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			vector, err = decodeVector(val)
			return err
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("cache read failed, treating as miss", "err", err)
		}
		return nil, false
	}
	return vector, true
}

// store writes one vector. A failed write only costs a future re-embed, so
// it is logged and swallowed.
func (c *Cache) store(text string, vector []float32) {
	err := c.db.Update(func(tx *badger.Txn) error {
		return tx.Set(c.makeKey(text), encodeVector(vector))
	})
	if err != nil {
		c.logger.Warn("cache write failed", "err", err)
	}
}

// makeKey generates a cache key from the model and text content.
// Format: prefix:blake2b(model NUL text)
func (c *Cache) makeKey(text string) []byte {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(text))

	prefix := keyPrefix + ":"
	buf := make([]byte, len(prefix), len(prefix)+16)
	copy(buf, prefix)
	return h.Sum(buf)
}

// encodeVector packs a vector as little-endian float32 bits.
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a vector encoded by encodeVector.
func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("malformed cache entry: %d bytes", len(data))
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vector, nil
}
