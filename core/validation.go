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

import "fmt"

// ValidateChunking validates chunking parameters according to domain rules.
//
// Validation rules:
//   - chunkSize must be positive
//   - overlap must be non-negative and strictly smaller than chunkSize
func ValidateChunking(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfiguration, chunkSize)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must be non-negative, got %d", ErrConfiguration, overlap)
	}
	if overlap >= chunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrConfiguration, overlap, chunkSize)
	}
	return nil
}

// ValidateTopK validates the number of segments requested from a search.
func ValidateTopK(k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrConfiguration, k)
	}
	return nil
}
