package biometric

import "math"

// CosineSimilarity computes the cosine similarity between two embeddings.
// Mismatched lengths or a zero-magnitude input return 0: that is a caller
// bug or degenerate sample, but it must never crash the decision pipeline.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// QualityVariance returns the population standard deviation of the sample's
// values. Near-uniform input signals a static or blank capture and is used
// as the liveness/spoof-resistance proxy.
func QualityVariance(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}

	var sum float64
	for _, x := range v {
		sum += x
	}
	mean := sum / float64(len(v))

	var variance float64
	for _, x := range v {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(v))

	return math.Sqrt(variance)
}
