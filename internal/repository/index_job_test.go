//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/cloo-solutions/kbindex/internal/pagination"
	"github.com/cloo-solutions/kbindex/internal/service"
	"github.com/cloo-solutions/kbindex/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(entityID string, createdAt time.Time) *domain.IndexJob {
	return domain.NewIndexJob(uuid.NewString(), entityID, domain.IndexJobActionIndex, "Remote role. Great team.",
		domain.IndexJobStatusPending, 0, "", createdAt.UTC().Truncate(time.Microsecond), nil)
}

func TestIndexJobRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pool := testutil.NewDatabase(ctx, t, "../../migrations")
	repo := NewIndexJobRepository(pool)

	job := newTestJob("entity-1", time.Now())
	require.NoError(t, repo.Create(ctx, job))

	retrieved, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, retrieved.ID)
	assert.Equal(t, "entity-1", retrieved.EntityID)
	assert.Equal(t, domain.IndexJobActionIndex, retrieved.Action)
	assert.Equal(t, job.Content, retrieved.Content)
	assert.Equal(t, domain.IndexJobStatusPending, retrieved.Status)
	assert.Equal(t, int32(0), retrieved.Retries)
	assert.Empty(t, retrieved.Error)
	assert.Nil(t, retrieved.ProcessedAt)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrIndexJobNotFound)
}

func TestIndexJobRepository_ClaimPending_OnePerEntity(t *testing.T) {
	ctx := context.Background()
	pool := testutil.NewDatabase(ctx, t, "../../migrations")
	repo := NewIndexJobRepository(pool)

	base := time.Now().Add(-time.Hour)
	first := newTestJob("entity-1", base)
	second := newTestJob("entity-1", base.Add(time.Minute))
	other := newTestJob("entity-2", base.Add(2*time.Minute))
	for _, j := range []*domain.IndexJob{first, second, other} {
		require.NoError(t, repo.Create(ctx, j))
	}

	claimed, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.ElementsMatch(t, []string{first.ID, other.ID}, []string{claimed[0].ID, claimed[1].ID})
	assert.Equal(t, domain.IndexJobStatusProcessing, claimed[0].Status)

	// entity-1 still has a processing job, so its second job waits.
	claimed, err = repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	require.NoError(t, repo.UpdateStatus(ctx, first.ID, domain.IndexJobStatusCompleted, ""))
	claimed, err = repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, second.ID, claimed[0].ID)
}

func TestIndexJobRepository_UpdateStatus_DropsContentWhenFinished(t *testing.T) {
	ctx := context.Background()
	pool := testutil.NewDatabase(ctx, t, "../../migrations")
	repo := NewIndexJobRepository(pool)

	job := newTestJob("entity-1", time.Now())
	require.NoError(t, repo.Create(ctx, job))

	require.NoError(t, repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusPending, "embedding provider failed"))
	retrieved, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Content, retrieved.Content)
	assert.Equal(t, "embedding provider failed", retrieved.Error)
	assert.Nil(t, retrieved.ProcessedAt)

	require.NoError(t, repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusFailed, "gave up"))
	retrieved, err = repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, retrieved.Content)
	assert.Equal(t, domain.IndexJobStatusFailed, retrieved.Status)
	assert.NotNil(t, retrieved.ProcessedAt)

	err = repo.UpdateStatus(ctx, uuid.NewString(), domain.IndexJobStatusCompleted, "")
	assert.ErrorIs(t, err, domain.ErrIndexJobNotFound)
}

func TestIndexJobRepository_IncrementRetries(t *testing.T) {
	ctx := context.Background()
	pool := testutil.NewDatabase(ctx, t, "../../migrations")
	repo := NewIndexJobRepository(pool)

	job := newTestJob("entity-1", time.Now())
	require.NoError(t, repo.Create(ctx, job))

	require.NoError(t, repo.IncrementRetries(ctx, job.ID))
	require.NoError(t, repo.IncrementRetries(ctx, job.ID))

	retrieved, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), retrieved.Retries)

	assert.ErrorIs(t, repo.IncrementRetries(ctx, uuid.NewString()), domain.ErrIndexJobNotFound)
}

func TestIndexJobRepository_SupersedePending(t *testing.T) {
	ctx := context.Background()
	pool := testutil.NewDatabase(ctx, t, "../../migrations")
	repo := NewIndexJobRepository(pool)

	a := newTestJob("entity-1", time.Now().Add(-time.Minute))
	b := newTestJob("entity-1", time.Now())
	c := newTestJob("entity-2", time.Now())
	for _, j := range []*domain.IndexJob{a, b, c} {
		require.NoError(t, repo.Create(ctx, j))
	}

	n, err := repo.SupersedePending(ctx, "entity-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	retrieved, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusSuperseded, retrieved.Status)
	assert.Empty(t, retrieved.Content)

	untouched, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusPending, untouched.Status)
}

func TestIndexJobRepository_ResetStale(t *testing.T) {
	ctx := context.Background()
	pool := testutil.NewDatabase(ctx, t, "../../migrations")
	repo := NewIndexJobRepository(pool)

	job := newTestJob("entity-1", time.Now())
	require.NoError(t, repo.Create(ctx, job))
	_, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)

	n, err := repo.ResetStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = repo.ResetStale(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	retrieved, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusPending, retrieved.Status)
}

func TestIndexJobRepository_ListByEntity_Cursor(t *testing.T) {
	ctx := context.Background()
	pool := testutil.NewDatabase(ctx, t, "../../migrations")
	repo := NewIndexJobRepository(pool)

	base := time.Now().Add(-time.Hour)
	var jobs []*domain.IndexJob
	for i := 0; i < 5; i++ {
		j := newTestJob("entity-1", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, j))
		jobs = append(jobs, j)
	}
	require.NoError(t, repo.Create(ctx, newTestJob("entity-2", base)))

	page, err := repo.ListByEntity(ctx, "entity-1", nil, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, jobs[4].ID, page[0].ID)
	assert.Equal(t, jobs[2].ID, page[2].ID)

	last := page[len(page)-1]
	rest, err := repo.ListByEntity(ctx, "entity-1", &pagination.Cursor{LastID: last.ID, Timestamp: last.CreatedAt}, 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, jobs[1].ID, rest[0].ID)
	assert.Equal(t, jobs[0].ID, rest[1].ID)
}

func TestTxRunner_RollsBack(t *testing.T) {
	ctx := context.Background()
	pool := testutil.NewDatabase(ctx, t, "../../migrations")
	repo := NewIndexJobRepository(pool)
	runner := NewTxRunner(pool)

	job := newTestJob("entity-1", time.Now())
	err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if err := repos.IndexJobs().Create(ctx, job); err != nil {
			return err
		}
		return domain.ErrPipeline
	})
	assert.ErrorIs(t, err, domain.ErrPipeline)

	_, err = repo.GetByID(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrIndexJobNotFound)

	svc := service.NewIndexJobService(repo, runner)
	first, err := svc.EnqueueIndex(ctx, "entity-1", "First text.")
	require.NoError(t, err)
	_, err = svc.EnqueueIndex(ctx, "entity-1", "Second text.")
	require.NoError(t, err)

	superseded, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobStatusSuperseded, superseded.Status)
}
