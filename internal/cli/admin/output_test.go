package admin

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/cloo-solutions/kbindex/internal/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadText(t *testing.T) {
	t.Run("stdin", func(t *testing.T) {
		text, err := readText(strings.NewReader("from stdin"), "-")
		require.NoError(t, err)
		assert.Equal(t, "from stdin", text)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "posting.txt")
		require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))

		text, err := readText(strings.NewReader("ignored"), path)
		require.NoError(t, err)
		assert.Equal(t, "from file", text)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readText(nil, filepath.Join(t.TempDir(), "missing.txt"))
		assert.Error(t, err)
	})
}

func TestWriteResult(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("success text", func(t *testing.T) {
		var buf bytes.Buffer
		err := writeResult(&buf, &domain.IndexResult{
			EntityID:      "job-1",
			Operation:     domain.RunOperationIndex,
			Success:       true,
			Outcome:       domain.RunOutcomeSucceeded,
			SentenceCount: 9,
			ClusterCount:  2,
			ChunkCount:    2,
			StartedAt:     started,
			FinishedAt:    started.Add(time.Second),
		}, "text")
		require.NoError(t, err)
		assert.Equal(t, "index job-1: succeeded in 1s (sentences: 9, clusters: 2, chunks: 2)\n", buf.String())
	})

	t.Run("failure after delete warns", func(t *testing.T) {
		var buf bytes.Buffer
		err := writeResult(&buf, &domain.IndexResult{
			EntityID:  "job-1",
			Operation: domain.RunOperationIndex,
			Outcome:   domain.RunOutcomeFailedAfterDelete,
			FailedIn:  domain.PipelineStateWriting,
			ErrorCode: domain.ErrCodeIndexWrite,
			Error:     "upsert failed",
		}, "text")
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "index job-1: failed_after_delete in writing [INDEX_WRITE_ERROR] upsert failed")
		assert.Contains(t, buf.String(), "warning: namespace job-1 was cleared")
	})

	t.Run("failure before delete has no warning", func(t *testing.T) {
		var buf bytes.Buffer
		err := writeResult(&buf, &domain.IndexResult{
			EntityID:  "job-1",
			Operation: domain.RunOperationIndex,
			Outcome:   domain.RunOutcomeFailedBeforeDelete,
			FailedIn:  domain.PipelineStateSegmenting,
			ErrorCode: domain.ErrCodeEmptyContent,
		}, "text")
		require.NoError(t, err)
		assert.NotContains(t, buf.String(), "warning")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResult(&buf, &domain.IndexResult{RunID: "run-1", Success: true}, "json"))

		var decoded domain.IndexResult
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "run-1", decoded.RunID)
		assert.True(t, decoded.Success)
	})

	t.Run("nil result", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResult(&buf, nil, "text"))
		assert.Empty(t, buf.String())
	})
}

func TestWriteJobPage(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	jobs := []*domain.IndexJob{
		{ID: "j2", EntityID: "job-1", Action: domain.IndexJobActionDelete, Status: domain.IndexJobStatusPending, CreatedAt: created},
		{ID: "j1", EntityID: "job-1", Action: domain.IndexJobActionIndex, Status: domain.IndexJobStatusFailed, Error: "boom", CreatedAt: created},
	}

	t.Run("text with more results", func(t *testing.T) {
		var buf bytes.Buffer
		err := writeJobPage(&buf, &pagination.PageResult[*domain.IndexJob]{Items: jobs, Cursor: "abc", HasMore: true}, "text")
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "j2: delete pending (created: 2026-01-02 03:04:05)")
		assert.Contains(t, buf.String(), "Use --cursor abc")
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeJobPage(&buf, &pagination.PageResult[*domain.IndexJob]{}, "text"))
		assert.Equal(t, "No jobs found\n", buf.String())
	})

	t.Run("json omits empty error", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeJobPage(&buf, &pagination.PageResult[*domain.IndexJob]{Items: jobs}, "json"))

		var decoded struct {
			Items []map[string]interface{} `json:"items"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded.Items, 2)
		assert.NotContains(t, decoded.Items[0], "error")
		assert.Equal(t, "boom", decoded.Items[1]["error"])
	})
}

func TestWriteJob(t *testing.T) {
	var buf bytes.Buffer
	job := &domain.IndexJob{ID: "j1", EntityID: "job-1", Action: domain.IndexJobActionIndex, Status: domain.IndexJobStatusPending, Retries: 1, Error: "retry 1: timeout"}
	require.NoError(t, writeJob(&buf, job, "text"))
	assert.Equal(t, "Job j1: index job-1 (pending, retries: 1)\n  error: retry 1: timeout\n", buf.String())
}

func TestWriteRuns_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRuns(&buf, nil, "text"))
	assert.Equal(t, "No runs found\n", buf.String())
}

func TestCommands_RequireEntity(t *testing.T) {
	index := IndexCmd()
	index.SetArgs([]string{})
	index.SetOut(&bytes.Buffer{})
	index.SetErr(&bytes.Buffer{})
	err := index.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity")

	del := DeleteIndexCmd()
	del.SetArgs([]string{})
	del.SetOut(&bytes.Buffer{})
	del.SetErr(&bytes.Buffer{})
	err = del.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity")
}
