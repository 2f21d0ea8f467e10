package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/cloo-solutions/kbindex/internal/telemetry"
)

// RunRecorder persists the result of every run.
type RunRecorder interface {
	RecordRun(ctx context.Context, result *domain.IndexResult) error
}

// IndexingConfig configures the target index and the clustering of one service.
type IndexingConfig struct {
	Index   domain.IndexSpec
	Cluster ClusterConfig
}

// IndexingService runs the semantic indexing pipeline for one entity at a time:
// segment, embed, cluster, aggregate, replace the namespace, upsert.
// It holds no state between runs and is safe for concurrent use.
type IndexingService struct {
	embedder EmbeddingClient
	syncer   *NamespaceSynchronizer
	writer   *IndexWriter
	cluster  ClusterConfig
	spec     domain.IndexSpec
	recorder RunRecorder
	uuidGen  UUIDGenerator
	now      func() time.Time
}

// NewIndexingService creates a new IndexingService instance
func NewIndexingService(embedder EmbeddingClient, index VectorIndex, cfg IndexingConfig) *IndexingService {
	syncer := NewNamespaceSynchronizer(index, cfg.Index)
	spec := syncer.Spec()
	return &IndexingService{
		embedder: embedder,
		syncer:   syncer,
		writer:   NewIndexWriter(index, spec.Name, spec.Dimension),
		cluster:  cfg.Cluster.withDefaults(),
		spec:     spec,
		uuidGen:  &DefaultUUIDGenerator{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithRunRecorder records every finished run. Recording failures are logged only.
func (s *IndexingService) WithRunRecorder(recorder RunRecorder) *IndexingService {
	s.recorder = recorder
	return s
}

// Index replaces the entity's namespace with chunks derived from text.
// The returned result is always populated; err is the same error as result.Err.
func (s *IndexingService) Index(ctx context.Context, entityID, text string) (res *domain.IndexResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "IndexingService.Index", telemetry.SpanAttributes{
		EntityID:  entityID,
		IndexName: s.spec.Name,
		Operation: string(domain.RunOperationIndex),
	})
	defer span.End()

	run := s.startRun(entityID, domain.RunOperationIndex, domain.CanTransition)
	defer func() {
		if p := recover(); p != nil {
			err = run.fail(fmt.Errorf("panic: %v", p))
		}
		s.finishRun(ctx, run, span)
		res = run.result
	}()

	if err := s.index(ctx, run, text); err != nil {
		return run.result, run.fail(err)
	}
	return run.result, nil
}

// DeleteIndex clears the entity's namespace. Deleting a namespace that does
// not exist succeeds.
func (s *IndexingService) DeleteIndex(ctx context.Context, entityID string) (res *domain.IndexResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "IndexingService.DeleteIndex", telemetry.SpanAttributes{
		EntityID:  entityID,
		IndexName: s.spec.Name,
		Operation: string(domain.RunOperationDelete),
	})
	defer span.End()

	run := s.startRun(entityID, domain.RunOperationDelete, domain.CanTransitionDelete)
	defer func() {
		if p := recover(); p != nil {
			err = run.fail(fmt.Errorf("panic: %v", p))
		}
		s.finishRun(ctx, run, span)
		res = run.result
	}()

	if entityID == "" {
		return run.result, run.fail(domain.ErrMissingRequiredField)
	}

	err = s.stage(ctx, run, domain.PipelineStateSynchronizing, func(ctx context.Context) error {
		if err := s.syncer.DeleteNamespace(ctx, entityID); err != nil {
			return err
		}
		run.result.NamespaceCleared = true
		return nil
	})
	if err == nil {
		err = run.advance(ctx, domain.PipelineStateDone)
	}
	if err != nil {
		return run.result, run.fail(err)
	}
	return run.result, nil
}

func (s *IndexingService) index(ctx context.Context, run *pipelineRun, text string) error {
	if run.result.EntityID == "" {
		return domain.ErrMissingRequiredField
	}

	var (
		sentences []string
		vectors   [][]float32
		labels    []int
		chunks    []domain.Chunk
	)

	steps := []struct {
		state domain.PipelineState
		fn    func(ctx context.Context) error
	}{
		{domain.PipelineStateSegmenting, func(ctx context.Context) error {
			var err error
			sentences, err = SegmentSentences(text)
			run.result.SentenceCount = len(sentences)
			return err
		}},
		{domain.PipelineStateEmbedding, func(ctx context.Context) error {
			var err error
			vectors, err = embedSentences(ctx, s.embedder, sentences, s.spec.Dimension)
			return err
		}},
		{domain.PipelineStateClustering, func(ctx context.Context) error {
			k := ClusterCount(len(sentences), s.cluster)
			labels = clusterSentences(vectors, k, s.cluster)
			run.result.ClusterCount = k
			return nil
		}},
		{domain.PipelineStateAggregating, func(ctx context.Context) error {
			chunks = AggregateChunks(sentences, vectors, labels)
			run.result.ChunkCount = len(chunks)
			if len(chunks) == 0 {
				return domain.Wrap(domain.ErrPipeline, fmt.Errorf("no chunks from %d sentences", len(sentences)))
			}
			return nil
		}},
		{domain.PipelineStateSynchronizing, func(ctx context.Context) error {
			if err := s.syncer.DeleteNamespace(ctx, run.result.EntityID); err != nil {
				return err
			}
			run.result.NamespaceCleared = true
			return s.syncer.EnsureIndex(ctx)
		}},
		{domain.PipelineStateWriting, func(ctx context.Context) error {
			return s.writer.Write(ctx, run.result.EntityID, BuildRecords(chunks))
		}},
	}

	for _, step := range steps {
		if err := s.stage(ctx, run, step.state, step.fn); err != nil {
			return err
		}
	}
	return run.advance(ctx, domain.PipelineStateDone)
}

// stage moves the run into state and executes fn inside a child span.
func (s *IndexingService) stage(ctx context.Context, run *pipelineRun, state domain.PipelineState, fn func(ctx context.Context) error) error {
	if err := run.advance(ctx, state); err != nil {
		return err
	}

	ctx, span := telemetry.StartSpan(ctx, "pipeline."+string(state), telemetry.SpanAttributes{
		EntityID:  run.result.EntityID,
		IndexName: s.spec.Name,
		Operation: string(state),
	})
	defer span.End()

	if err := fn(ctx); err != nil {
		span.SetStatus(telemetry.StatusError)
		return err
	}
	return nil
}

func (s *IndexingService) startRun(entityID string, op domain.RunOperation, canTransition func(from, to domain.PipelineState) bool) *pipelineRun {
	return &pipelineRun{
		canTransition: canTransition,
		result: &domain.IndexResult{
			RunID:     s.uuidGen.NewString(),
			EntityID:  entityID,
			Operation: op,
			State:     domain.PipelineStateIdle,
			StartedAt: s.now(),
		},
	}
}

func (s *IndexingService) finishRun(ctx context.Context, run *pipelineRun, span *telemetry.Span) {
	r := run.result
	r.FinishedAt = s.now()

	if r.Success {
		log.Printf("indexing: %s entity=%s run=%s sentences=%d clusters=%d chunks=%d took=%s",
			r.Operation, r.EntityID, r.RunID, r.SentenceCount, r.ClusterCount, r.ChunkCount, r.Duration())
	} else {
		log.Printf("indexing: %s entity=%s run=%s %s in %s: %v",
			r.Operation, r.EntityID, r.RunID, r.Outcome, r.FailedIn, r.Err)
		span.SetError(r.Err)
	}

	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordRun(context.WithoutCancel(ctx), r); err != nil {
		log.Printf("indexing: failed to record run %s: %v", r.RunID, err)
	}
}

// pipelineRun tracks the state machine of a single run.
type pipelineRun struct {
	result        *domain.IndexResult
	canTransition func(from, to domain.PipelineState) bool
}

func (r *pipelineRun) advance(ctx context.Context, to domain.PipelineState) error {
	from := r.result.State
	if !r.canTransition(from, to) {
		return domain.Wrap(domain.ErrInvalidStateTransition, fmt.Errorf("%s -> %s", from, to))
	}

	r.result.State = to
	if to == domain.PipelineStateDone {
		r.result.Success = true
		r.result.Outcome = domain.RunOutcomeSucceeded
	}
	telemetry.AddBreadcrumb(ctx, "pipeline", fmt.Sprintf("%s %s: %s -> %s", r.result.Operation, r.result.EntityID, from, to))
	return nil
}

// fail moves the run to failed and returns the error the caller sees.
// Errors without a domain code are wrapped as pipeline errors.
func (r *pipelineRun) fail(err error) error {
	if domain.ErrorCode(err) == "" {
		err = domain.Wrap(domain.ErrPipeline, err)
	}

	res := r.result
	if !res.State.IsTerminal() {
		res.FailedIn = res.State
	}
	res.State = domain.PipelineStateFailed
	res.Success = false
	res.Err = err
	res.ErrorCode = domain.ErrorCode(err)
	res.Error = err.Error()
	if res.NamespaceCleared {
		res.Outcome = domain.RunOutcomeFailedAfterDelete
	} else {
		res.Outcome = domain.RunOutcomeFailedBeforeDelete
	}
	return err
}
