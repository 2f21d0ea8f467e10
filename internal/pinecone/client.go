// Package pinecone stores chunk vectors in a Pinecone serverless index and
// embeds passages with Pinecone hosted inference.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cloo-solutions/kbindex/internal/domain"
	sdk "github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// DefaultEmbeddingModel is the hosted model producing 1024-dimension vectors
	DefaultEmbeddingModel = "multilingual-e5-large"

	inputTypePassage = "passage"
	truncateEnd      = "END"
)

var ErrNoAPIKey = errors.New("PINECONE_API_KEY not set")

// Vector is one record in the shape the index API expects.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// IndexAPI is the subset of the Pinecone API the client needs.
type IndexAPI interface {
	ListIndexNames(ctx context.Context) ([]string, error)
	CreateServerlessIndex(ctx context.Context, spec domain.IndexSpec) error
	DescribeHost(ctx context.Context, indexName string) (string, error)
	DeleteNamespace(ctx context.Context, host, namespace string) error
	Upsert(ctx context.Context, host, namespace string, vectors []Vector) error
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Client implements the vector index and the passage embedder on Pinecone.
type Client struct {
	api   IndexAPI
	model string

	mu    sync.RWMutex
	hosts map[string]string
}

type Config struct {
	APIKey         string
	EmbeddingModel string
}

// NewClient creates a client backed by the official SDK.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	adapter, err := NewSDKAdapter(cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return newClient(adapter, cfg.EmbeddingModel), nil
}

func newClient(api IndexAPI, model string) *Client {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Client{api: api, model: model, hosts: map[string]string{}}
}

// ListIndexes returns the names of all indexes in the project.
func (c *Client) ListIndexes(ctx context.Context) ([]string, error) {
	return c.api.ListIndexNames(ctx)
}

// CreateIndex creates a serverless index.
func (c *Client) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	if err := c.api.CreateServerlessIndex(ctx, spec); err != nil {
		if isAlreadyExists(err) {
			return nil
		}
		return err
	}
	return nil
}

// DeleteNamespace removes every vector in the namespace. Pinecone reports a
// missing namespace or index as an error; both map to domain.ErrNamespaceNotFound.
func (c *Client) DeleteNamespace(ctx context.Context, indexName, namespace string) error {
	host, err := c.host(ctx, indexName)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("index %s: %w", indexName, domain.ErrNamespaceNotFound)
		}
		return err
	}

	if err := c.api.DeleteNamespace(ctx, host, namespace); err != nil {
		if IsNotFound(err) {
			c.evictHost(indexName)
			return fmt.Errorf("namespace %s: %w", namespace, domain.ErrNamespaceNotFound)
		}
		return err
	}
	return nil
}

// Upsert writes records into the namespace, creating it implicitly.
func (c *Client) Upsert(ctx context.Context, indexName, namespace string, records []domain.IndexRecord) error {
	host, err := c.host(ctx, indexName)
	if err != nil {
		return err
	}
	if err := c.api.Upsert(ctx, host, namespace, toVectors(records)); err != nil {
		if IsNotFound(err) {
			c.evictHost(indexName)
		}
		return err
	}
	return nil
}

// EmbedPassages embeds texts as passages, truncating overlong input at the end.
func (c *Client) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no passages to embed")
	}
	vectors, err := c.api.Embed(ctx, c.model, texts)
	if err != nil {
		return nil, fmt.Errorf("pinecone inference: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("pinecone inference returned %d embeddings for %d passages", len(vectors), len(texts))
	}
	return vectors, nil
}

func (c *Client) host(ctx context.Context, indexName string) (string, error) {
	c.mu.RLock()
	host, ok := c.hosts[indexName]
	c.mu.RUnlock()
	if ok {
		return host, nil
	}

	host, err := c.api.DescribeHost(ctx, indexName)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.hosts[indexName] = host
	c.mu.Unlock()
	return host, nil
}

// evictHost drops a cached host so the next call describes the index again.
// A recreated index gets a new host.
func (c *Client) evictHost(indexName string) {
	c.mu.Lock()
	delete(c.hosts, indexName)
	c.mu.Unlock()
}

func toVectors(records []domain.IndexRecord) []Vector {
	out := make([]Vector, len(records))
	for i, r := range records {
		out[i] = Vector{
			ID:       r.ID,
			Values:   r.Values,
			Metadata: map[string]any{"text": r.Metadata.Text},
		}
	}
	return out
}

// IsNotFound reports whether err is Pinecone's way of saying the namespace
// or index does not exist. A gRPC status from the data plane is
// authoritative. Other errors only match the SDK's namespace markers or an
// HTTP 404 status from the control plane.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if st, ok := status.FromError(err); ok {
		return st.Code() == codes.NotFound
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "namespacenotfound") || strings.Contains(msg, "namespace does not exist") {
		return true
	}
	return httpNotFound.MatchString(msg)
}

// httpNotFound matches the ways a REST error renders a 404 status line or
// status field. A bare "404" elsewhere in the text (request ids, ports)
// does not count.
var httpNotFound = regexp.MustCompile(`(^|[^\w.:])404 not found\b|"status"\s*:\s*404\b|\bstatus(?: code)?\s*[:=]?\s*404\b`)

func isAlreadyExists(err error) bool {
	if status.Code(err) == codes.AlreadyExists {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "409")
}

// SDKAdapter implements IndexAPI with the official Go SDK.
type SDKAdapter struct {
	client *sdk.Client
}

func NewSDKAdapter(apiKey string) (*SDKAdapter, error) {
	pc, err := sdk.NewClient(sdk.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}
	return &SDKAdapter{client: pc}, nil
}

func (a *SDKAdapter) ListIndexNames(ctx context.Context) ([]string, error) {
	indexes, err := a.client.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		names = append(names, idx.Name)
	}
	return names, nil
}

func (a *SDKAdapter) CreateServerlessIndex(ctx context.Context, spec domain.IndexSpec) error {
	metric := sdk.IndexMetric(spec.Metric)
	_, err := a.client.CreateServerlessIndex(ctx, &sdk.CreateServerlessIndexRequest{
		Name:      spec.Name,
		Dimension: int32(spec.Dimension),
		Metric:    metric,
		Cloud:     sdk.Cloud(spec.Cloud),
		Region:    spec.Region,
	})
	return err
}

func (a *SDKAdapter) DescribeHost(ctx context.Context, indexName string) (string, error) {
	idx, err := a.client.DescribeIndex(ctx, indexName)
	if err != nil {
		return "", err
	}
	return idx.Host, nil
}

func (a *SDKAdapter) DeleteNamespace(ctx context.Context, host, namespace string) error {
	conn, err := a.client.Index(sdk.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.DeleteAllVectorsInNamespace(ctx)
}

func (a *SDKAdapter) Upsert(ctx context.Context, host, namespace string, vectors []Vector) error {
	conn, err := a.client.Index(sdk.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return err
	}
	defer conn.Close()

	batch := make([]*sdk.Vector, len(vectors))
	for i, v := range vectors {
		metadata, err := structpb.NewStruct(v.Metadata)
		if err != nil {
			return fmt.Errorf("vector %s metadata: %w", v.ID, err)
		}
		batch[i] = &sdk.Vector{
			Id:       v.ID,
			Values:   v.Values,
			Metadata: metadata,
		}
	}

	_, err = conn.UpsertVectors(ctx, batch)
	return err
}

func (a *SDKAdapter) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	resp, err := a.client.Inference.Embed(ctx, &sdk.EmbedRequest{
		Model:      model,
		TextInputs: texts,
		Parameters: sdk.EmbedParameters{
			InputType: inputTypePassage,
			Truncate:  truncateEnd,
		},
	})
	if err != nil {
		return nil, err
	}

	if resp.Data == nil {
		return nil, errors.New("inference response has no data")
	}
	data := *resp.Data

	out := make([][]float32, len(data))
	for i, e := range data {
		if e.Values == nil {
			return nil, fmt.Errorf("embedding %d has no values", i)
		}
		out[i] = *e.Values
	}
	return out, nil
}
