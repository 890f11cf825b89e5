package mail

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spal-labs/transcriberd/internal/jobs"
)

type fakeTransport struct {
	sent []Message
	err  error
}

func (f *fakeTransport) Send(msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeMarker struct {
	marked map[string]time.Time
}

func newFakeMarker() *fakeMarker {
	return &fakeMarker{marked: make(map[string]time.Time)}
}

func (f *fakeMarker) MarkNotified(id string, at time.Time) error {
	if _, ok := f.marked[id]; ok {
		return nil
	}
	f.marked[id] = at
	return nil
}

func doneJob() *jobs.Job {
	return &jobs.Job{
		ID:         "job-1",
		Name:       "Weekly Meeting",
		Slug:       "weekly-meeting",
		Group:      "Team",
		Status:     jobs.StatusDone,
		Progress:   100,
		ResultPath: "",
	}
}

func newTestDispatcher(t *testing.T, transport Transport, marker *fakeMarker) *Dispatcher {
	t.Helper()
	resolver, dir := newTestResolver(t)
	writeRecipients(t, dir, "recipients_Team.txt", "carol@example.com\n")
	return NewDispatcher(resolver, transport, marker,
		"Transcript: {name}", "Job: {name}\nSlug: {slug}\n")
}

func TestDispatcher_Notify_SendsUnionAndMarks(t *testing.T) {
	transport := &fakeTransport{}
	marker := newFakeMarker()
	d := newTestDispatcher(t, transport, marker)

	require.NoError(t, d.Notify(doneJob()))

	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	assert.Equal(t, []string{"carol@example.com", "alice@example.com", "bob@example.com"}, msg.To)
	assert.Equal(t, "Transcript: Weekly Meeting", msg.Subject)
	assert.Equal(t, "Job: Weekly Meeting\nSlug: weekly-meeting\n", msg.Body)
	assert.Contains(t, marker.marked, "job-1")
}

func TestDispatcher_Notify_RejectsNonDoneJobs(t *testing.T) {
	transport := &fakeTransport{}
	marker := newFakeMarker()
	d := newTestDispatcher(t, transport, marker)

	job := doneJob()
	job.Status = jobs.StatusFailed
	require.Error(t, d.Notify(job))
	assert.Empty(t, transport.sent)
	assert.Empty(t, marker.marked)
}

func TestDispatcher_Notify_TransportFailureDoesNotMark(t *testing.T) {
	transport := &fakeTransport{err: errors.New("connection refused")}
	marker := newFakeMarker()
	d := newTestDispatcher(t, transport, marker)

	err := d.Notify(doneJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, marker.marked)
}

func TestDispatcher_Notify_NoRecipientsSkipsQuietly(t *testing.T) {
	dir := t.TempDir()
	resolver := NewResolver(dir+"/recipients.txt", dir)
	transport := &fakeTransport{}
	marker := newFakeMarker()
	d := NewDispatcher(resolver, transport, marker, "s", "b")

	require.NoError(t, d.Notify(doneJob()))
	assert.Empty(t, transport.sent)
	assert.Empty(t, marker.marked)
}

func TestDispatcher_SmokeTest_SendsToFirstMainRecipient(t *testing.T) {
	transport := &fakeTransport{}
	d := newTestDispatcher(t, transport, newFakeMarker())

	require.NoError(t, d.SmokeTest())
	require.Len(t, transport.sent, 1)
	assert.Equal(t, []string{"alice@example.com"}, transport.sent[0].To)
}
