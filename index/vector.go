package index

import (
	"math"

	"github.com/poiesic/docquery/core"
)

// cosineSimilarity computes the angular closeness of two equal-length
// vectors: dot product divided by the product of magnitudes. It returns
// core.ErrDegenerateVector when either vector has zero magnitude, for which
// the measure is undefined.
func cosineSimilarity(a, b []float32) (float64, error) {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, core.ErrDegenerateVector
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
