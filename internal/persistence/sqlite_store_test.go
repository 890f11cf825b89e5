package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spal-labs/transcriberd/internal/jobs"
)

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	notified := time.Now().UTC().Truncate(time.Millisecond)
	job := &jobs.Job{
		ID:         "job-1",
		Name:       "Weekly Meeting",
		Slug:       "weekly-meeting",
		SourcePath: "/data/weekly-meeting/meeting.mp4",
		Group:      "Clients",
		Status:     jobs.StatusDone,
		Progress:   100,
		ResultPath: "/data/weekly-meeting/weekly-meeting.txt",
		Log:        []string{"transcription started", "notification sent"},
		NotifiedAt: &notified,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, job.ID, all[0].ID)
	assert.Equal(t, job.Slug, all[0].Slug)
	assert.Equal(t, job.Group, all[0].Group)
	assert.Equal(t, job.Status, all[0].Status)
	assert.Equal(t, job.ResultPath, all[0].ResultPath)
	assert.Equal(t, job.Log, all[0].Log)
	require.NotNil(t, all[0].NotifiedAt)
	assert.True(t, all[0].NotifiedAt.Equal(notified))
}

func TestSQLiteStore_UpsertOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	job := &jobs.Job{
		ID:         "job-1",
		Name:       "a",
		Slug:       "a",
		SourcePath: "/data/a/a.mp4",
		Status:     jobs.StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	job.Status = jobs.StatusProcessing
	job.Progress = 37.5
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, jobs.StatusProcessing, all[0].Status)
	assert.Equal(t, 37.5, all[0].Progress)
	assert.Nil(t, all[0].NotifiedAt)
}

func TestSQLiteStore_LoadJobsOrderedByCreation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"job-2", "job-3", "job-1"} {
		require.NoError(t, store.UpsertJob(ctx, &jobs.Job{
			ID:         id,
			Name:       id,
			Slug:       id,
			SourcePath: "/x",
			Status:     jobs.StatusQueued,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
			UpdatedAt:  base,
		}))
	}

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "job-2", all[0].ID)
	assert.Equal(t, "job-3", all[1].ID)
	assert.Equal(t, "job-1", all[2].ID)
}

// Restarting against the same file must surface the interrupted job to the
// recovery sweep.
func TestSQLiteStore_SurvivesRestart(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "jobs.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	jobStore, err := jobs.NewStore(store)
	require.NoError(t, err)
	created, err := jobStore.Create(jobs.CreateRequest{Name: "a", Slug: "a", SourcePath: "/a.mp4"})
	require.NoError(t, err)
	_, ok := jobStore.Claim(created.ID)
	require.True(t, ok)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	restarted, err := jobs.NewStore(reopened)
	require.NoError(t, err)
	assert.Equal(t, 1, restarted.RecoverInterrupted())

	got, err := restarted.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Equal(t, jobs.ReasonInterrupted, got.Error)
}
