package jobs

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spal-labs/transcriberd/pkg/log"
)

// Persister records job state durably. The store writes through it before a
// mutation becomes visible to readers, so a crash leaves durable state
// consistent with the last acknowledged call.
type Persister interface {
	LoadJobs(ctx context.Context) ([]*Job, error)
	UpsertJob(ctx context.Context, job *Job) error
}

// Store holds the in-memory index of all jobs on top of a Persister.
// The worker pool is the only writer of processing fields; HTTP readers
// only ever see cloned snapshots.
type Store struct {
	persister Persister

	mu        sync.RWMutex
	jobs      map[string]*Job
	order     []string
	idCounter uint64
}

func NewStore(persister Persister) (*Store, error) {
	s := &Store{
		persister: persister,
		jobs:      make(map[string]*Job),
	}
	if err := s.hydrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) hydrate(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	loaded, err := s.persister.LoadJobs(ctx)
	if err != nil {
		return &StorageError{Op: "load jobs", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		s.jobs[job.ID] = job
		s.order = append(s.order, job.ID)
		s.updateIDCounterLocked(job.ID)
	}
	sort.Slice(s.order, func(i, j int) bool {
		a, b := s.jobs[s.order[i]], s.jobs[s.order[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return idSeq(a.ID) < idSeq(b.ID)
	})
	return nil
}

// Create persists a queued record and returns it. The job is not visible to
// readers if the durable write failed.
func (s *Store) Create(req CreateRequest) (*Job, error) {
	now := time.Now()

	s.mu.Lock()
	s.idCounter++
	job := &Job{
		ID:         "job-" + strconv.FormatUint(s.idCounter, 10),
		Name:       req.Name,
		Slug:       req.Slug,
		SourcePath: req.SourcePath,
		Group:      req.Group,
		Status:     StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.persist(job); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	snapshot := cloneJob(job)
	s.mu.Unlock()

	return snapshot, nil
}

func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

// List returns a point-in-time snapshot of all jobs in creation order.
func (s *Store) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make([]*Job, 0, len(s.order))
	for _, id := range s.order {
		ret = append(ret, cloneJob(s.jobs[id]))
	}
	return ret
}

// Claim transitions a queued job to processing for a worker slot. It returns
// false when the job is gone or no longer queued (raced cancel, restart).
func (s *Store) Claim(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != StatusQueued {
		return nil, false
	}
	next := cloneJob(job)
	next.Status = StatusProcessing
	next.Progress = 0
	next.UpdatedAt = time.Now()
	if err := s.persist(next); err != nil {
		// A slot that cannot record its claim must not run the job.
		s.failLocked(job, "claim not persisted: "+err.Error())
		return nil, false
	}
	*job = *next
	return cloneJob(job), true
}

// UpdateProgress records engine progress for a processing job. Values are
// clamped to [0,100]; a regression below the recorded value is dropped so the
// status API never observes progress moving backwards.
func (s *Store) UpdateProgress(id string, progress float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusProcessing {
		return &InvalidTransitionError{ID: id, From: job.Status, Op: "update progress"}
	}
	progress = clampPercent(progress)
	if progress <= job.Progress {
		return nil
	}
	next := cloneJob(job)
	next.Progress = progress
	next.UpdatedAt = time.Now()
	if err := s.persist(next); err != nil {
		return err
	}
	*job = *next
	return nil
}

// Complete transitions processing -> done and records the transcript path.
func (s *Store) Complete(id string, resultPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusProcessing {
		return &InvalidTransitionError{ID: id, From: job.Status, Op: "complete"}
	}
	next := cloneJob(job)
	next.Status = StatusDone
	next.Progress = 100
	next.ResultPath = resultPath
	next.UpdatedAt = time.Now()
	if err := s.persist(next); err != nil {
		return err
	}
	*job = *next
	return nil
}

// Fail transitions processing -> failed with a captured reason.
func (s *Store) Fail(id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusProcessing {
		return &InvalidTransitionError{ID: id, From: job.Status, Op: "fail"}
	}
	s.failLocked(job, reason)
	return nil
}

// Cancel aborts a job that has not been dequeued yet (queued -> failed with
// reason "cancelled"). A job already handed to a worker is not cancellable.
func (s *Store) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusQueued {
		return &InvalidTransitionError{ID: id, From: job.Status, Op: "cancel"}
	}
	s.failLocked(job, ReasonCancelled)
	return nil
}

// MarkNotified records successful email dispatch. Idempotent: a second call
// is a no-op, not an error.
func (s *Store) MarkNotified(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.NotifiedAt != nil {
		return nil
	}
	if job.Status != StatusDone {
		return &InvalidTransitionError{ID: id, From: job.Status, Op: "mark notified"}
	}
	next := cloneJob(job)
	stamp := at
	next.NotifiedAt = &stamp
	next.UpdatedAt = time.Now()
	if err := s.persist(next); err != nil {
		return err
	}
	*job = *next
	return nil
}

// AppendLog records an operator-visible event line on the job's history.
// Allowed in any state, so completion and notification events land after the
// job is already terminal.
func (s *Store) AppendLog(id, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	next := cloneJob(job)
	next.Log = append(next.Log, time.Now().UTC().Format(time.RFC3339)+" "+event)
	next.UpdatedAt = time.Now()
	if err := s.persist(next); err != nil {
		return err
	}
	*job = *next
	return nil
}

// RecoverInterrupted sweeps jobs left in processing by a crashed process and
// fails them with reason "interrupted". Invoked once at startup, before any
// worker slot runs.
func (s *Store) RecoverInterrupted() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	recovered := 0
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status != StatusProcessing {
			continue
		}
		s.failLocked(job, ReasonInterrupted)
		recovered++
	}
	return recovered
}

// QueuedIDs returns ids of queued jobs in FIFO order (creation time, ties by
// id sequence). Used by the worker pool to refill its channel on startup.
func (s *Store) QueuedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make([]string, 0)
	for _, id := range s.order {
		if s.jobs[id].Status == StatusQueued {
			ret = append(ret, id)
		}
	}
	return ret
}

// failLocked moves a job to failed in memory and persists best-effort. It is
// the one transition applied even when the durable write fails: a job must
// never stay stuck in a non-terminal state because storage is unhealthy.
func (s *Store) failLocked(job *Job, reason string) {
	job.Status = StatusFailed
	job.Error = reason
	job.UpdatedAt = time.Now()
	if err := s.persist(job); err != nil {
		log.Error("Failed to persist failure of job %s: %v", job.ID, err)
	}
}

func (s *Store) persist(job *Job) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.UpsertJob(context.Background(), job); err != nil {
		return &StorageError{Op: "upsert job " + job.ID, Err: err}
	}
	return nil
}

func (s *Store) updateIDCounterLocked(jobID string) {
	if n := idSeq(jobID); n > s.idCounter {
		s.idCounter = n
	}
}

func idSeq(jobID string) uint64 {
	if !strings.HasPrefix(jobID, "job-") {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(jobID, "job-"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	if job.NotifiedAt != nil {
		at := *job.NotifiedAt
		tmp.NotifiedAt = &at
	}
	if job.Log != nil {
		tmp.Log = append([]string(nil), job.Log...)
	}
	return &tmp
}
