// Package vectormath provides the similarity primitives used by the
// communal brain's retrieval path. All functions are pure and
// non-suspending; dimension checks are the caller's contract.
package vectormath

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when two vectors of different
// lengths are compared.
var ErrDimensionMismatch = errors.New("vector dimensions don't match")

// CosineSimilarity computes the cosine similarity between two vectors,
// normalized from [-1,1] to [0,1] via (c+1)/2. The normalized value is
// what the storage layer reports as a relevance score. A zero-magnitude
// operand yields 0.0 rather than an error.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0, nil
	}

	cos := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	return (cos + 1) / 2, nil
}

// EuclideanDistance computes the L2 distance between two vectors.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// ManhattanDistance computes the L1 distance between two vectors.
func ManhattanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum, nil
}

// DotProduct computes the inner product of two vectors.
func DotProduct(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot, nil
}

// Magnitude returns the Euclidean length of a vector.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. The zero vector is
// returned unchanged.
func Normalize(v []float32) []float32 {
	mag := Magnitude(v)
	out := make([]float32, len(v))
	if mag == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}

// SimilarityResult pairs a corpus index with its normalized cosine
// similarity to the query.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindSimilar ranks corpus vectors by normalized cosine similarity to
// the query and returns the top K, highest first. Vectors whose
// dimension does not match the query are skipped.
func FindSimilar(query []float32, corpus [][]float32, topK int) []SimilarityResult {
	if topK <= 0 {
		topK = 5
	}

	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
