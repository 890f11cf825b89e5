package jobs

import (
	"context"
	"sync"

	"github.com/spal-labs/transcriberd/pkg/log"
)

// Executor runs one claimed job to a terminal state. The returned error is
// logged only; the executor is responsible for recording the outcome on the
// job itself.
type Executor func(ctx context.Context, job *Job) error

// Queue feeds queued job ids to a fixed pool of worker slots in FIFO order.
// Each slot claims through the store, so only one job is processing per slot.
type Queue struct {
	workerCount int
	store       *Store

	mu         sync.Mutex
	started    bool
	pendingIDs chan string
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewQueue(workerCount int, store *Store) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Queue{
		workerCount: workerCount,
		store:       store,
		pendingIDs:  make(chan string, 1024),
		stopCh:      make(chan struct{}),
	}
}

// Start refills the channel with jobs that survived a restart, oldest first,
// then launches the worker slots.
func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for _, id := range q.store.QueuedIDs() {
		q.Enqueue(id)
	}

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.wg.Wait()
	})
}

// Enqueue hands a created job id to the pool. Jobs cancelled before a slot
// reaches them are skipped at claim time. When the buffer is full the send
// moves to a goroutine that gives up once the queue stops.
func (q *Queue) Enqueue(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() {
			select {
			case q.pendingIDs <- id:
			case <-q.stopCh:
			}
		}()
	}
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case id := <-q.pendingIDs:
			job, ok := q.store.Claim(id)
			if !ok {
				continue
			}
			if err := exec(context.Background(), job); err != nil {
				log.Error("Job %s finished with error: %v", id, err)
			}
		}
	}
}
