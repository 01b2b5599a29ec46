package vectorstore

import (
	"math"
)

// CosineSimilarity computes dot(a,b)/(|a||b|) for two vectors.
//
// A dimension mismatch yields 0 rather than an error: mixed-provenance
// embeddings are expected in the corpus and simply never match. Zero
// magnitude on either side also yields 0.
func CosineSimilarity(a, b []float32) float64 {
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

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
