package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/poiesic/docquery/core"
)

// Searcher is the retrieval contract over one document's vectors.
// The linear-scan Index satisfies it; an approximate-nearest-neighbor
// structure can replace it behind the same contract without changing callers.
type Searcher interface {
	// Search returns the k stored segments most similar to queryVector,
	// in strictly descending score order. Result length is min(k, Size()).
	Search(queryVector []float32, k int) ([]core.ScoredSegment, error)
}

// Index is an in-memory vector index over one document's segments.
// It is built exactly once, is immutable afterwards, and is safe for
// concurrent searches.
type Index struct {
	segments  []core.Segment
	vectors   [][]float32
	dimension int
}

var _ Searcher = (*Index)(nil)

// Build constructs an index from index-aligned segments and vectors.
// The returned index is complete and immediately query-able; a failed build
// returns no index at all.
//
// Fails with core.ErrEmptyDocument when there are no segments, and with
// core.ErrConfiguration when segments and vectors are misaligned or the
// vectors disagree on dimension.
func Build(segments []core.Segment, vectors [][]float32) (*Index, error) {
	if len(segments) == 0 {
		return nil, core.ErrEmptyDocument
	}
	if len(segments) != len(vectors) {
		return nil, fmt.Errorf("%w: %d segments but %d vectors",
			core.ErrConfiguration, len(segments), len(vectors))
	}

	dimension := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d",
				core.ErrConfiguration, i, len(v), dimension)
		}
	}

	// Copy the slice headers so later mutation of the caller's slices
	// cannot reach into the index.
	ix := &Index{
		segments:  make([]core.Segment, len(segments)),
		vectors:   make([][]float32, len(vectors)),
		dimension: dimension,
	}
	copy(ix.segments, segments)
	copy(ix.vectors, vectors)
	return ix, nil
}

// Size returns the number of stored (segment, vector) pairs.
func (ix *Index) Size() int {
	return len(ix.segments)
}

// Dimension returns the embedding dimension shared by all stored vectors.
func (ix *Index) Dimension() int {
	return ix.dimension
}

// Segments returns the stored segments in insertion order.
// The returned slice must not be mutated.
func (ix *Index) Segments() []core.Segment {
	return ix.segments
}

// Search scores every stored vector against queryVector by cosine similarity
// and returns the k best hits in strictly descending order. Ties are broken
// by insertion order, earlier segment first, so results are deterministic.
//
// Degenerate pairs (either vector with zero magnitude) score -Inf and sort
// last rather than failing the search; if every pair is degenerate the
// result is empty.
func (ix *Index) Search(queryVector []float32, k int) ([]core.ScoredSegment, error) {
	if err := core.ValidateTopK(k); err != nil {
		return nil, err
	}
	if len(queryVector) != ix.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index has %d",
			core.ErrConfiguration, len(queryVector), ix.dimension)
	}

	scores := make([]float64, len(ix.vectors))
	degenerate := 0
	for i, v := range ix.vectors {
		score, err := cosineSimilarity(queryVector, v)
		if err != nil {
			scores[i] = math.Inf(-1)
			degenerate++
			continue
		}
		scores[i] = score
	}
	if degenerate == len(ix.vectors) {
		return []core.ScoredSegment{}, nil
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	n := min(k, len(order))
	results := make([]core.ScoredSegment, 0, n)
	for _, i := range order[:n] {
		results = append(results, core.ScoredSegment{
			Segment: ix.segments[i],
			Score:   scores[i],
		})
	}
	return results, nil
}
