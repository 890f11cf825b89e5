package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spal-labs/transcriberd/internal/transcribe"
)

type fakeEngine struct {
	text     string
	err      error
	progress []float64
}

func (f *fakeEngine) Transcribe(_ context.Context, _ string, onProgress transcribe.ProgressFunc) (string, error) {
	for _, p := range f.progress {
		onProgress(p)
	}
	return f.text, f.err
}

type fakeNotifier struct {
	notified []string
	err      error
}

func (f *fakeNotifier) Notify(job *Job) error {
	f.notified = append(f.notified, job.ID)
	return f.err
}

func claimForTest(t *testing.T, s *Store, name string) *Job {
	t.Helper()
	created := createQueued(t, s, name)
	claimed, ok := s.Claim(created.ID)
	require.True(t, ok)
	return claimed
}

func TestProcessor_Run_CompletesAndWritesTranscript(t *testing.T) {
	s, _ := newTestStore(t)
	dataDir := t.TempDir()
	engine := &fakeEngine{text: "hello world\n", progress: []float64{10, 60, 100}}
	notifier := &fakeNotifier{}
	p := NewProcessor(s, engine, notifier, dataDir)

	job := claimForTest(t, s, "meeting")
	require.NoError(t, p.Run(context.Background(), job))

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, 100.0, got.Progress)
	assert.Equal(t, filepath.Join(dataDir, "meeting", "meeting.txt"), got.ResultPath)

	content, err := os.ReadFile(got.ResultPath)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(content))

	assert.Equal(t, []string{job.ID}, notifier.notified)
}

func TestProcessor_Run_CompleteWriteFailureFailsJob(t *testing.T) {
	s, p := newTestStore(t)
	notifier := &fakeNotifier{}
	proc := NewProcessor(s, &fakeEngine{text: "x"}, notifier, t.TempDir())

	// the final done write is rejected; the job must still reach a terminal
	// state instead of sitting in processing forever
	p.rejectStatus = StatusDone

	job := claimForTest(t, s, "meeting")
	require.Error(t, proc.Run(context.Background(), job))

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "completion not persisted")
	assert.Empty(t, got.ResultPath)
	assert.Empty(t, notifier.notified)
}

func TestProcessor_Run_RecordsJobEvents(t *testing.T) {
	s, _ := newTestStore(t)
	notifier := &fakeNotifier{}
	p := NewProcessor(s, &fakeEngine{text: "x"}, notifier, t.TempDir())

	job := claimForTest(t, s, "meeting")
	require.NoError(t, p.Run(context.Background(), job))

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	require.Len(t, got.Log, 3)
	assert.Contains(t, got.Log[0], "transcription started")
	assert.Contains(t, got.Log[1], "transcript written to")
	assert.Contains(t, got.Log[2], "notification sent")
}

func TestMultiNotifier_FansOutAndJoinsErrors(t *testing.T) {
	ok := &fakeNotifier{}
	bad := &fakeNotifier{err: errors.New("endpoint down")}
	n := MultiNotifier(ok, bad)

	err := n.Notify(&Job{ID: "job-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint down")
	assert.Equal(t, []string{"job-1"}, ok.notified)
	assert.Equal(t, []string{"job-1"}, bad.notified)
}

func TestProcessor_Run_EngineFailureFailsJob(t *testing.T) {
	s, _ := newTestStore(t)
	engine := &fakeEngine{err: errors.New("unreadable input")}
	notifier := &fakeNotifier{}
	p := NewProcessor(s, engine, notifier, t.TempDir())

	job := claimForTest(t, s, "broken")
	require.Error(t, p.Run(context.Background(), job))

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "unreadable input", got.Error)
	assert.Empty(t, got.ResultPath)

	// failed jobs are never emailed
	assert.Empty(t, notifier.notified)
}

func TestProcessor_Run_ProgressIsClampedAndMonotonic(t *testing.T) {
	s, _ := newTestStore(t)
	engine := &fakeEngine{text: "x", progress: []float64{30, 20, 120, 50}}
	p := NewProcessor(s, engine, nil, t.TempDir())

	job := claimForTest(t, s, "wobbly")
	require.NoError(t, p.Run(context.Background(), job))

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	// Complete pins progress at 100; the intermediate regression and the
	// out-of-range value never reached the store.
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, 100.0, got.Progress)
}

func TestProcessor_Run_NotificationFailureKeepsJobDone(t *testing.T) {
	s, _ := newTestStore(t)
	engine := &fakeEngine{text: "x"}
	notifier := &fakeNotifier{err: errors.New("smtp unreachable")}
	p := NewProcessor(s, engine, notifier, t.TempDir())

	job := claimForTest(t, s, "meeting")
	require.NoError(t, p.Run(context.Background(), job))

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	assert.Nil(t, got.NotifiedAt)
}

func TestProcessor_Run_NilNotifierSkipsDispatch(t *testing.T) {
	s, _ := newTestStore(t)
	p := NewProcessor(s, &fakeEngine{text: "x"}, nil, t.TempDir())

	job := claimForTest(t, s, "quiet")
	require.NoError(t, p.Run(context.Background(), job))

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	assert.Nil(t, got.NotifiedAt)
}
