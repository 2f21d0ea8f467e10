package domain

import "time"

// PipelineState is a step of one indexing run.
type PipelineState string

const (
	PipelineStateIdle          PipelineState = "idle"
	PipelineStateSegmenting    PipelineState = "segmenting"
	PipelineStateEmbedding     PipelineState = "embedding"
	PipelineStateClustering    PipelineState = "clustering"
	PipelineStateAggregating   PipelineState = "aggregating"
	PipelineStateSynchronizing PipelineState = "synchronizing"
	PipelineStateWriting       PipelineState = "writing"
	PipelineStateDone          PipelineState = "done"
	PipelineStateFailed        PipelineState = "failed"
)

// RunOperation distinguishes full indexing runs from namespace deletes.
type RunOperation string

const (
	RunOperationIndex  RunOperation = "index"
	RunOperationDelete RunOperation = "delete"
)

// RunOutcome summarizes how a run ended relative to the namespace delete.
type RunOutcome string

const (
	RunOutcomeSucceeded          RunOutcome = "succeeded"
	RunOutcomeFailedBeforeDelete RunOutcome = "failed_before_delete"
	RunOutcomeFailedAfterDelete  RunOutcome = "failed_after_delete"
)

var nextState = map[PipelineState]PipelineState{
	PipelineStateIdle:          PipelineStateSegmenting,
	PipelineStateSegmenting:    PipelineStateEmbedding,
	PipelineStateEmbedding:     PipelineStateClustering,
	PipelineStateClustering:    PipelineStateAggregating,
	PipelineStateAggregating:   PipelineStateSynchronizing,
	PipelineStateSynchronizing: PipelineStateWriting,
	PipelineStateWriting:       PipelineStateDone,
}

// CanTransition reports whether a run may move from one state to another.
// Runs advance strictly in order; failed is reachable from any
// non-terminal state. A delete-only run goes idle -> synchronizing -> done.
func CanTransition(from, to PipelineState) bool {
	if from.IsTerminal() {
		return false
	}
	if to == PipelineStateFailed {
		return true
	}
	return nextState[from] == to
}

// CanTransitionDelete is the state graph of a delete-only run.
func CanTransitionDelete(from, to PipelineState) bool {
	switch {
	case from.IsTerminal():
		return false
	case to == PipelineStateFailed:
		return true
	case from == PipelineStateIdle:
		return to == PipelineStateSynchronizing
	case from == PipelineStateSynchronizing:
		return to == PipelineStateDone
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s PipelineState) IsTerminal() bool {
	return s == PipelineStateDone || s == PipelineStateFailed
}

// IndexResult is returned for every Index and DeleteIndex call.
type IndexResult struct {
	RunID            string        `json:"run_id"`
	EntityID         string        `json:"entity_id"`
	Operation        RunOperation  `json:"operation"`
	Success          bool          `json:"success"`
	State            PipelineState `json:"state"`
	FailedIn         PipelineState `json:"failed_in,omitempty"`
	Outcome          RunOutcome    `json:"outcome"`
	NamespaceCleared bool          `json:"namespace_cleared"`
	SentenceCount    int           `json:"sentence_count"`
	ClusterCount     int           `json:"cluster_count"`
	ChunkCount       int           `json:"chunk_count"`
	ErrorCode        string        `json:"error_code,omitempty"`
	Error            string        `json:"error,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`

	Err error `json:"-"`
}

// Duration returns the wall time of the run.
func (r *IndexResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
