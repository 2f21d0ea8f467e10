package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/kbindex/internal/domain"
)

// EmbeddingClient defines the interface for generating passage embeddings.
// Implementations return exactly one vector per input, in input order.
type EmbeddingClient interface {
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
}

// embedSentences embeds all sentences in one batched call and checks the
// provider kept its contract.
func embedSentences(ctx context.Context, client EmbeddingClient, sentences []string, dimension int) ([][]float32, error) {
	vectors, err := client.EmbedPassages(ctx, sentences)
	if err != nil {
		return nil, domain.Wrap(domain.ErrEmbeddingProvider, err)
	}

	if len(vectors) != len(sentences) {
		return nil, domain.Wrap(domain.ErrEmbeddingProvider,
			fmt.Errorf("provider returned %d vectors for %d sentences", len(vectors), len(sentences)))
	}

	for i, v := range vectors {
		if len(v) == 0 {
			return nil, domain.Wrap(domain.ErrEmbeddingProvider, fmt.Errorf("empty vector for sentence %d", i))
		}
		if dimension > 0 && len(v) != dimension {
			return nil, domain.Wrap(domain.ErrEmbeddingProvider,
				fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dimension))
		}
		if len(v) != len(vectors[0]) {
			return nil, domain.Wrap(domain.ErrEmbeddingProvider, fmt.Errorf("vector %d has inconsistent dimension", i))
		}
	}

	return vectors, nil
}
