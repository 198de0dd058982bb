package utils

import "math"

// NormalizeL2 scales an embedding in place to unit length, so its cosine relevance
// against other unit vectors is a plain dot product. It reports false and leaves x
// unchanged when the norm is zero or not finite.
func NormalizeL2(x []float32) bool {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsInf(norm, 0) || math.IsNaN(norm) {
		return false
	}
	for i := range x {
		x[i] = float32(float64(x[i]) / norm)
	}
	return true
}
