package service

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cloo-solutions/kbindex/internal/domain"
)

// ClusterMode selects how sentences are grouped into chunks.
type ClusterMode string

const (
	// ClusterModeKMeans groups sentences by k-means over their embeddings.
	ClusterModeKMeans ClusterMode = "kmeans"
	// ClusterModeSentence emits one chunk per sentence (k equals the sentence count).
	ClusterModeSentence ClusterMode = "sentence"
)

// ClusterConfig controls clustering for semantic chunks.
type ClusterConfig struct {
	Mode                ClusterMode
	SentencesPerCluster int
	MinClusters         int
	MaxClusters         int
	MaxIterations       int
	// Seed fixes the centroid initialization. Zero seeds from the clock.
	Seed int64
}

// DefaultClusterConfig provides sane defaults for clustering.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		Mode:                ClusterModeKMeans,
		SentencesPerCluster: 6,
		MinClusters:         2,
		MaxClusters:         15,
		MaxIterations:       10,
	}
}

func (c ClusterConfig) withDefaults() ClusterConfig {
	d := DefaultClusterConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.SentencesPerCluster <= 0 {
		c.SentencesPerCluster = d.SentencesPerCluster
	}
	if c.MinClusters <= 0 {
		c.MinClusters = d.MinClusters
	}
	if c.MaxClusters < c.MinClusters {
		c.MaxClusters = d.MaxClusters
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	return c
}

// newRand returns a generator for a single run. Runs never share one.
func (c ClusterConfig) newRand() *rand.Rand {
	seed := uint64(c.Seed)
	if c.Seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// ClusterCount derives k from the sentence count: roughly six sentences per
// cluster, clamped to [MinClusters, MaxClusters]. With fewer sentences than
// MinClusters, k is the sentence count.
func ClusterCount(sentenceCount int, cfg ClusterConfig) int {
	cfg = cfg.withDefaults()
	if cfg.Mode == ClusterModeSentence || sentenceCount < cfg.MinClusters {
		return sentenceCount
	}

	k := (sentenceCount + cfg.SentencesPerCluster - 1) / cfg.SentencesPerCluster
	if k < cfg.MinClusters {
		k = cfg.MinClusters
	}
	if k > cfg.MaxClusters {
		k = cfg.MaxClusters
	}
	return k
}

// clusterSentences returns one label in [0,k) per vector.
func clusterSentences(vectors [][]float32, k int, cfg ClusterConfig) []int {
	cfg = cfg.withDefaults()
	if cfg.Mode == ClusterModeSentence {
		labels := make([]int, len(vectors))
		for i := range labels {
			labels[i] = i
		}
		return labels
	}
	return KMeans(vectors, k, cfg.MaxIterations, cfg.newRand())
}

// AggregateChunks groups sentences by label in ascending label order, skipping
// empty labels. Chunk text is the member sentences joined with ". " and the
// chunk vector is the per-dimension mean of member vectors.
func AggregateChunks(sentences []string, vectors [][]float32, labels []int) []domain.Chunk {
	if len(sentences) == 0 || len(sentences) != len(vectors) || len(vectors) != len(labels) {
		return nil
	}

	maxLabel := 0
	for _, l := range labels {
		if l > maxLabel {
			maxLabel = l
		}
	}

	members := make([][]int, maxLabel+1)
	for idx, l := range labels {
		if l < 0 {
			continue
		}
		members[l] = append(members[l], idx)
	}

	chunks := make([]domain.Chunk, 0, len(members))
	for _, group := range members {
		if len(group) == 0 {
			continue
		}

		texts := make([]string, len(group))
		for i, idx := range group {
			texts[i] = sentences[idx]
		}

		chunks = append(chunks, domain.Chunk{
			ID:     len(chunks),
			Text:   strings.Join(texts, ". "),
			Vector: meanVector(vectors, group),
		})
	}

	return chunks
}

func meanVector(vectors [][]float32, members []int) []float32 {
	dims := len(vectors[members[0]])
	sums := make([]float64, dims)
	for _, idx := range members {
		for d, v := range vectors[idx] {
			if d < dims {
				sums[d] += float64(v)
			}
		}
	}

	out := make([]float32, dims)
	n := float64(len(members))
	for d := range sums {
		out[d] = float32(sums[d] / n)
	}
	return out
}
