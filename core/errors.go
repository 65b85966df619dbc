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


package core

import "errors"

// Domain error taxonomy. Every failure surfaced by the retrieval pipeline
// wraps exactly one of these sentinels, so boundaries can classify errors
// with errors.Is without inspecting messages.
var (
	// ErrConfiguration indicates invalid caller-supplied parameters
	// (chunk size, overlap, k, vector dimensions). Never retried.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEmptyDocument indicates a document with no extractable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")

	// ErrEmbeddingService indicates a failure of the external embedding service.
	ErrEmbeddingService = errors.New("embedding service failure")

	// ErrChatService indicates a failure of the external chat completion service.
	ErrChatService = errors.New("chat service failure")

	// ErrSessionNotFound indicates an unknown, mistyped or evicted session token.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDegenerateVector indicates a zero-magnitude vector, for which cosine
	// similarity is undefined. Handled per-pair inside search, not surfaced.
	ErrDegenerateVector = errors.New("zero-magnitude vector")
)
