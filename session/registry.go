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


package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docquery/core"
	"github.com/poiesic/docquery/index"
)

// Session is one uploaded document held in memory: its searchable index
// keyed by an opaque token. A Session is immutable after creation.
type Session struct {
	// Token is the opaque identifier handed back to the client.
	Token string

	// Index is the document's vector index, ready for search.
	Index *index.Index

	// CreatedAt records when the document was ingested.
	CreatedAt time.Time

	lastAccess time.Time
}

// Registry maps session tokens to in-memory document indexes.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl    time.Duration
	done   chan struct{}
	closed sync.Once
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL enables expiry of idle sessions. A session not touched by Get for
// longer than ttl is evicted by a background sweeper. Zero or negative ttl
// disables expiry (the default).
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
	}
}

// NewRegistry creates an empty session registry.
// Call Close when done to stop the expiry sweeper, if one was enabled.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "session-registry")

	if r.ttl > 0 {
		go r.sweep()
	}
	return r
}

// Create builds an index from the segments and vectors and registers it
// under a fresh token. The session becomes visible only after the index is
// fully built, so a failed build leaves the registry unchanged.
func (r *Registry) Create(segments []core.Segment, vectors [][]float32) (*Session, error) {
	ix, err := index.Build(segments, vectors)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		Token:      uuid.NewString(),
		Index:      ix,
		CreatedAt:  now,
		lastAccess: now,
	}

	r.mu.Lock()
	r.sessions[s.Token] = s
	r.mu.Unlock()

	r.logger.Debug("session created", "token", s.Token, "segments", ix.Size(), "dimension", ix.Dimension())
	return s, nil
}

// Get returns the session for token, refreshing its idle timer.
// Fails with core.ErrSessionNotFound for unknown or evicted tokens.
func (r *Registry) Get(token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, token)
	}
	s.lastAccess = time.Now()
	return s, nil
}

// Evict removes the session for token and reports whether it existed.
// Evicting an unknown token is a no-op.
func (r *Registry) Evict(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[token]; !ok {
		return false
	}
	delete(r.sessions, token)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops the expiry sweeper. Live sessions remain readable; Close is
// idempotent.
func (r *Registry) Close() {
	r.closed.Do(func() {
		close(r.done)
	})
}

// sweep periodically drops sessions idle longer than the TTL.
func (r *Registry) sweep() {
	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evictExpired(time.Now())
		}
	}
}

func (r *Registry) evictExpired(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, s := range r.sessions {
		if now.Sub(s.lastAccess) > r.ttl {
			delete(r.sessions, token)
			r.logger.Debug("session expired", "token", token, "age", now.Sub(s.CreatedAt))
		}
	}
}
