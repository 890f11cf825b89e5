package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spal-labs/transcriberd/internal/transcribe"
	"github.com/spal-labs/transcriberd/pkg/log"
)

// Notifier dispatches a completion signal for a done job. Implemented by
// mail.Dispatcher and webhook.Sender; nil disables automatic dispatch.
type Notifier interface {
	Notify(job *Job) error
}

// MultiNotifier fans a completion out to every sink. Each sink runs even when
// an earlier one fails; the failures are joined into the returned error.
func MultiNotifier(sinks ...Notifier) Notifier {
	return multiNotifier(sinks)
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(job *Job) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Processor drives one claimed job through transcription, result write and
// finalization. It is the sole writer of status, progress, result and error
// for the job it holds.
type Processor struct {
	store    *Store
	engine   transcribe.Engine
	notifier Notifier
	dataDir  string
}

func NewProcessor(store *Store, engine transcribe.Engine, notifier Notifier, dataDir string) *Processor {
	return &Processor{
		store:    store,
		engine:   engine,
		notifier: notifier,
		dataDir:  dataDir,
	}
}

// Run executes a claimed job to a terminal state. It satisfies Executor.
func (p *Processor) Run(ctx context.Context, job *Job) error {
	log.Info("Job %s (%s) claimed by worker", job.ID, job.Slug)
	p.logEvent(job.ID, "transcription started")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The engine reports progress out of band; values are clamped and coerced
	// monotonic before the store write. A store that cannot record progress
	// aborts the run instead of looping silently.
	var progressMu sync.Mutex
	var lastProgress float64
	var progressErr error
	onProgress := func(percent float64) {
		progressMu.Lock()
		defer progressMu.Unlock()
		if progressErr != nil {
			return
		}
		percent = clampPercent(percent)
		if percent <= lastProgress {
			return
		}
		lastProgress = percent
		if err := p.store.UpdateProgress(job.ID, percent); err != nil {
			var storageErr *StorageError
			if errors.As(err, &storageErr) {
				progressErr = err
				cancel()
				return
			}
			log.Warn("Progress update for job %s dropped: %v", job.ID, err)
		}
	}

	text, engineErr := p.engine.Transcribe(ctx, job.SourcePath, onProgress)

	progressMu.Lock()
	abortErr := progressErr
	progressMu.Unlock()
	if abortErr != nil {
		return p.fail(job.ID, fmt.Sprintf("progress write failed: %v", abortErr))
	}
	if engineErr != nil {
		return p.fail(job.ID, engineErr.Error())
	}

	resultPath, err := p.writeResult(job, text)
	if err != nil {
		return p.fail(job.ID, err.Error())
	}
	if err := p.store.Complete(job.ID, resultPath); err != nil {
		// The job is still processing; failing it applies in memory even when
		// storage is unhealthy, so it never sits stuck in a non-terminal state.
		return p.fail(job.ID, fmt.Sprintf("completion not persisted: %v", err))
	}
	log.Info("Job %s done, transcript at %s", job.ID, resultPath)
	p.logEvent(job.ID, "transcript written to "+resultPath)

	p.maybeNotify(job.ID)
	return nil
}

func (p *Processor) writeResult(job *Job, text string) (string, error) {
	dir := filepath.Join(p.dataDir, job.Slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job directory: %w", err)
	}
	resultPath := filepath.Join(dir, job.Slug+".txt")
	if err := os.WriteFile(resultPath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return resultPath, nil
}

// fail records the reason and leaves the input file in place for operator
// inspection.
func (p *Processor) fail(id string, reason string) error {
	if err := p.store.Fail(id, reason); err != nil {
		log.Error("Failed to record failure of job %s: %v", id, err)
	}
	p.logEvent(id, "failed: "+reason)
	return errors.New(reason)
}

// maybeNotify runs notification dispatch synchronously before the slot pulls
// the next job. Delivery failures never touch the job's own outcome.
func (p *Processor) maybeNotify(id string) {
	if p.notifier == nil {
		log.Debug("No notification sinks configured, skipping job %s", id)
		return
	}
	job, err := p.store.Get(id)
	if err != nil || job.Status != StatusDone {
		return
	}
	if err := p.notifier.Notify(job); err != nil {
		log.Error("Notification for job %s failed: %v", id, err)
		p.logEvent(id, "notification failed: "+err.Error())
		return
	}
	p.logEvent(id, "notification sent")
}

// logEvent appends to the job's operator log; a write failure here never
// affects the run outcome.
func (p *Processor) logEvent(id, event string) {
	if err := p.store.AppendLog(id, event); err != nil {
		log.Warn("Could not record event for job %s: %v", id, err)
	}
}
