package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/kbindex/internal/api/handlers"
	"github.com/cloo-solutions/kbindex/internal/config"
	"github.com/cloo-solutions/kbindex/internal/database"
	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/cloo-solutions/kbindex/internal/openai"
	"github.com/cloo-solutions/kbindex/internal/pinecone"
	"github.com/cloo-solutions/kbindex/internal/repository"
	"github.com/cloo-solutions/kbindex/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
)

// app holds the wired services shared by serve and the one-shot commands.
type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	indexing *service.IndexingService
	jobs     *service.IndexJobService
	jobRepo  *repository.IndexJobRepository
	runRepo  *repository.IndexRunRepository
	records  handlers.RecordLister
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, pool: pool}
	if err := a.wire(); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	a.pool.Close()
}

func (a *app) wire() error {
	cfg := a.cfg

	var pc *pinecone.Client
	if cfg.UsesPinecone() {
		var err error
		pc, err = pinecone.NewClient(pinecone.Config{APIKey: cfg.PineconeAPIKey, EmbeddingModel: cfg.EmbeddingModel})
		if err != nil {
			return fmt.Errorf("failed to create pinecone client: %w", err)
		}
	}

	var index service.VectorIndex
	switch cfg.VectorBackend {
	case config.BackendPinecone:
		index = pc
	default:
		pg := repository.NewPgVectorIndex(a.pool)
		index = pg
		a.records = pg
	}

	var embedder service.EmbeddingClient
	switch cfg.EmbeddingProvider {
	case config.ProviderPinecone:
		embedder = pc
	default:
		embedder = openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.IndexDimension,
			InputPrefix:         cfg.EmbeddingInputPrefix,
			MaxInputChars:       cfg.EmbeddingMaxInputChars,
		})
	}
	log.Printf("indexing: backend=%s provider=%s index=%s dimension=%d", cfg.VectorBackend, cfg.EmbeddingProvider, cfg.IndexName, cfg.IndexDimension)

	a.runRepo = repository.NewIndexRunRepository(a.pool)
	a.indexing = service.NewIndexingService(embedder, index, service.IndexingConfig{
		Index: domain.IndexSpec{
			Name:      cfg.IndexName,
			Dimension: cfg.IndexDimension,
			Metric:    domain.MetricCosine,
			Cloud:     cfg.IndexCloud,
			Region:    cfg.IndexRegion,
		},
		Cluster: service.ClusterConfig{
			Mode: service.ClusterMode(cfg.ClusterMode),
			Seed: cfg.ClusterSeed,
		},
	}).WithRunRecorder(a.runRepo)

	a.jobRepo = repository.NewIndexJobRepository(a.pool)
	a.jobs = service.NewIndexJobService(a.jobRepo, repository.NewTxRunner(a.pool))
	return nil
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newApp(ctx, cfg)
}
