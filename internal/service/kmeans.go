package service

import (
	"math/rand/v2"
	"slices"
)

// KMeans assigns each vector to one of k clusters.
//
// Centroids start at uniform random points in [0,1)^D, independent of the data.
// Each iteration assigns vectors to the nearest centroid by Euclidean distance
// (ties go to the lowest index) and moves every centroid to the mean of its
// members; a centroid without members keeps its position. Iteration stops when
// the labels stop changing or after maxIterations, and the last labels are
// returned either way.
func KMeans(vectors [][]float32, k, maxIterations int, rng *rand.Rand) []int {
	n := len(vectors)
	if n == 0 || k <= 0 {
		return nil
	}
	if maxIterations <= 0 {
		maxIterations = 1
	}

	dims := len(vectors[0])
	centroids := make([][]float64, k)
	for c := range centroids {
		centroids[c] = make([]float64, dims)
		for d := range centroids[c] {
			centroids[c][d] = rng.Float64()
		}
	}

	var labels []int
	for iter := 0; iter < maxIterations; iter++ {
		next := make([]int, n)
		for i, v := range vectors {
			next[i] = nearestCentroid(v, centroids)
		}

		updateCentroids(vectors, next, centroids)

		converged := labels != nil && slices.Equal(labels, next)
		labels = next
		if converged {
			break
		}
	}

	return labels
}

func nearestCentroid(v []float32, centroids [][]float64) int {
	best := 0
	bestDist := squaredDistance(v, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := squaredDistance(v, centroids[c]); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// squaredDistance preserves the Euclidean ordering without the square root.
func squaredDistance(v []float32, c []float64) float64 {
	var sum float64
	for d := range c {
		var x float64
		if d < len(v) {
			x = float64(v[d])
		}
		diff := x - c[d]
		sum += diff * diff
	}
	return sum
}

func updateCentroids(vectors [][]float32, labels []int, centroids [][]float64) {
	dims := len(centroids[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for i, v := range vectors {
		c := labels[i]
		if sums[c] == nil {
			sums[c] = make([]float64, dims)
		}
		for d := 0; d < dims && d < len(v); d++ {
			sums[c][d] += float64(v[d])
		}
		counts[c]++
	}

	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for d := range centroids[c] {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}
