package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendPgVector = "pgvector"
	BackendPinecone = "pinecone"

	ProviderOpenAI   = "openai"
	ProviderPinecone = "pinecone"

	ClusterModeKMeans   = "kmeans"
	ClusterModeSentence = "sentence"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`

	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"pgvector"`
	IndexName      string `envconfig:"INDEX_NAME" default:"knowledge-base"`
	IndexDimension int    `envconfig:"INDEX_DIMENSION" default:"1024"`
	IndexCloud     string `envconfig:"INDEX_CLOUD" default:"aws"`
	IndexRegion    string `envconfig:"INDEX_REGION" default:"us-east-1"`

	EmbeddingProvider      string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	OpenAIAPIKey           string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL          string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel         string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingInputPrefix   string `envconfig:"EMBEDDING_INPUT_PREFIX"`
	EmbeddingMaxInputChars int    `envconfig:"EMBEDDING_MAX_INPUT_CHARS" default:"2048"`

	PineconeAPIKey string `envconfig:"PINECONE_API_KEY"`

	ClusterMode string `envconfig:"CLUSTER_MODE" default:"kmeans"`
	ClusterSeed int64  `envconfig:"CLUSTER_SEED" default:"0"`

	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"10s"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("KBINDEX", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the selected backend and provider have credentials.
func (c *Config) Validate() error {
	switch c.VectorBackend {
	case BackendPgVector:
	case BackendPinecone:
		if !c.HasPinecone() {
			return fmt.Errorf("invalid config: VECTOR_BACKEND=pinecone requires PINECONE_API_KEY")
		}
	default:
		return fmt.Errorf("invalid config: unknown VECTOR_BACKEND %q", c.VectorBackend)
	}

	switch c.EmbeddingProvider {
	case ProviderOpenAI:
		if !c.HasOpenAI() {
			return fmt.Errorf("invalid config: EMBEDDING_PROVIDER=openai requires OPENAI_API_KEY")
		}
	case ProviderPinecone:
		if !c.HasPinecone() {
			return fmt.Errorf("invalid config: EMBEDDING_PROVIDER=pinecone requires PINECONE_API_KEY")
		}
	default:
		return fmt.Errorf("invalid config: unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	if c.ClusterMode != ClusterModeKMeans && c.ClusterMode != ClusterModeSentence {
		return fmt.Errorf("invalid config: unknown CLUSTER_MODE %q", c.ClusterMode)
	}
	if c.IndexName == "" {
		return fmt.Errorf("invalid config: INDEX_NAME is empty")
	}
	if c.IndexDimension <= 0 {
		return fmt.Errorf("invalid config: INDEX_DIMENSION must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid config: DB_MIN_CONNS exceeds DB_MAX_CONNS")
	}
	return nil
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasPinecone() bool {
	return c.PineconeAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

// UsesPinecone reports whether any Pinecone client is needed.
func (c *Config) UsesPinecone() bool {
	return c.VectorBackend == BackendPinecone || c.EmbeddingProvider == ProviderPinecone
}
