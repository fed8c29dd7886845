// Package ranking provides hybrid (semantic + keyword) scoring for archive items.
package ranking

import "math"

// Cosine returns the cosine similarity of two vectors, in [-1, 1]. Vectors of
// differing lengths or with zero norm yield exactly 0; the function never
// returns NaN.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Guard against floating-point drift just past the bounds.
	return math.Max(-1, math.Min(1, sim))
}
