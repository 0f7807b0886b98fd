// Package cluster implements Lloyd's k-means over stored embedding vectors.
package cluster

import (
	"errors"
	"fmt"
	"math/rand"
)

// DefaultIterations is the iteration budget used when Options.Iterations is not positive.
const DefaultIterations = 20

var (
	// ErrInvalidK is returned when fewer than one cluster is requested.
	ErrInvalidK = errors.New("number of clusters must be at least 1")
	// ErrDimensionMismatch is returned when input vectors differ in length.
	ErrDimensionMismatch = errors.New("vectors differ in dimension")
)

// Options controls seeding and the iteration budget.
type Options struct {
	Iterations int
	Seed       int64
}

// Result is the outcome of a k-means run.
type Result struct {
	// Assignments[i] is the cluster index of input vector i.
	Assignments []int
	// Centroids has one entry per cluster; nil for a cluster that never received a seed.
	Centroids [][]float64
	// Iterations is the number of assignment passes performed.
	Iterations int
}

// Groups returns, for each of the k clusters, the input indices assigned to it.
func (r *Result) Groups() [][]int {
	groups := make([][]int, len(r.Centroids))
	for i := range groups {
		groups[i] = []int{}
	}
	for i, c := range r.Assignments {
		groups[c] = append(groups[c], i)
	}
	return groups
}

// KMeans partitions vectors into k clusters. Seeding is k-means++ from opts.Seed, so
// the same input and options always give the same result. When there are fewer
// distinct vectors than k, the surplus clusters stay empty. Each vector is assigned
// to its nearest centroid, ties going to the lowest cluster index; a cluster that
// loses all its members keeps its previous centroid.
func KMeans(vectors [][]float32, k int, opts Options) (*Result, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	res := &Result{
		Assignments: make([]int, len(vectors)),
		Centroids:   make([][]float64, k),
	}
	if len(vectors) == 0 {
		return res, nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	seed(vectors, res.Centroids, rng)

	for res.Iterations < iterations {
		changed := assign(vectors, res.Centroids, res.Assignments)
		res.Iterations++
		if !changed && res.Iterations > 1 {
			break
		}
		recenter(vectors, res.Centroids, res.Assignments)
	}
	assign(vectors, res.Centroids, res.Assignments)
	return res, nil
}

// seed picks initial centroids with k-means++: each next centroid is drawn with
// probability proportional to its squared distance from the nearest chosen one.
func seed(vectors [][]float32, centroids [][]float64, rng *rand.Rand) {
	centroids[0] = toFloat64(vectors[rng.Intn(len(vectors))])
	nearest := make([]float64, len(vectors))
	for i, v := range vectors {
		nearest[i] = distance(v, centroids[0])
	}
	for c := 1; c < len(centroids); c++ {
		var total float64
		for _, d := range nearest {
			total += d
		}
		if total == 0 {
			return
		}
		target := rng.Float64() * total
		pick := -1
		var acc float64
		for i, d := range nearest {
			if d == 0 {
				continue
			}
			acc += d
			pick = i
			if acc >= target {
				break
			}
		}
		centroids[c] = toFloat64(vectors[pick])
		for i, v := range vectors {
			if d := distance(v, centroids[c]); d < nearest[i] {
				nearest[i] = d
			}
		}
	}
}

// assign sets each vector's nearest centroid and reports whether any assignment changed.
func assign(vectors [][]float32, centroids [][]float64, assignments []int) bool {
	changed := false
	for i, v := range vectors {
		best, bestDist := -1, 0.0
		for c, centroid := range centroids {
			if centroid == nil {
				continue
			}
			if d := distance(v, centroid); best < 0 || d < bestDist {
				best, bestDist = c, d
			}
		}
		if assignments[i] != best {
			assignments[i] = best
			changed = true
		}
	}
	return changed
}

// recenter moves each non-empty cluster's centroid to the mean of its members.
func recenter(vectors [][]float32, centroids [][]float64, assignments []int) {
	dim := len(vectors[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for i, v := range vectors {
		c := assignments[i]
		if sums[c] == nil {
			sums[c] = make([]float64, dim)
		}
		for j, x := range v {
			sums[c][j] += float64(x)
		}
		counts[c]++
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for j := range sums[c] {
			sums[c][j] /= float64(counts[c])
		}
		centroids[c] = sums[c]
	}
}

func distance(v []float32, centroid []float64) float64 {
	var sum float64
	for i, x := range v {
		d := float64(x) - centroid[i]
		sum += d * d
	}
	return sum
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
