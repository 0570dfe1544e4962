package vector

import "math"

// CosineSimilarity returns the cosine of the angle between a and b. A zero vector
// has no direction and scores 0 against everything. Callers check lengths first.
func CosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func normalizeK(k int) int {
	if k <= 0 {
		return DefaultK
	}
	return k
}
