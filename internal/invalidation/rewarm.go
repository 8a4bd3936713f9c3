package invalidation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goran-ethernal/ChainReactor/internal/cache"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
)

// RewarmFunc recomputes the value for an invalidated key. Registered by the
// read-model owner at bootstrap; the queue stays inert without one.
type RewarmFunc func(ctx context.Context, key string) ([]byte, error)

type rewarmTask struct {
	key string
	ttl time.Duration
}

// rewarmQueue repopulates invalidated keys in the background. Tasks are
// drained on a fixed interval, strictly one at a time; the busy flag keeps a
// slow drain from being re-entered by the next tick. A full queue drops new
// tasks (rewarming is an optimization, never a correctness requirement).
type rewarmQueue struct {
	log      *logger.Logger
	interval time.Duration
	timeout  time.Duration
	storesFn func() []cache.Store

	mu sync.RWMutex
	fn RewarmFunc

	tasks    chan rewarmTask
	busy     atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	queued    atomic.Uint64
	completed atomic.Uint64
	failures  atomic.Uint64
	dropped   atomic.Uint64
}

func newRewarmQueue(
	queueSize int, interval, timeout time.Duration, storesFn func() []cache.Store, log *logger.Logger,
) *rewarmQueue {
	if queueSize < 1 {
		queueSize = 1
	}

	return &rewarmQueue{
		log:      log,
		interval: interval,
		timeout:  timeout,
		storesFn: storesFn,
		tasks:    make(chan rewarmTask, queueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// setFunc registers the loader that recomputes values.
func (q *rewarmQueue) setFunc(fn RewarmFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.fn = fn
}

func (q *rewarmQueue) loader() RewarmFunc {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.fn
}

// enqueue queues one key for rewarming. Returns false when the queue is
// full or no loader is registered.
func (q *rewarmQueue) enqueue(key string, ttl time.Duration) bool {
	if q.loader() == nil {
		return false
	}

	select {
	case q.tasks <- rewarmTask{key: key, ttl: ttl}:
		q.queued.Add(1)
		metrics.RewarmQueuedInc()

		return true
	default:
		q.dropped.Add(1)
		q.log.Warnw("rewarm queue full, dropping task", "key", key)

		return false
	}
}

// run drains the queue on the configured interval until stopped.
func (q *rewarmQueue) run() {
	defer close(q.done)

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.drain()
		}
	}
}

// drain processes every queued task serially. The CAS flag rejects
// re-entrant drains when a tick fires while the previous drain still runs.
func (q *rewarmQueue) drain() {
	if !q.busy.CompareAndSwap(false, true) {
		return
	}
	defer q.busy.Store(false)

	for {
		select {
		case task := <-q.tasks:
			q.process(task)
		default:
			return
		}
	}
}

func (q *rewarmQueue) process(task rewarmTask) {
	fn := q.loader()
	if fn == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	value, err := fn(ctx, task.key)
	if err != nil {
		q.failures.Add(1)
		metrics.RewarmFailureInc()
		q.log.Warnw("rewarm failed", "key", task.key, "err", err)

		return
	}

	for _, store := range q.storesFn() {
		if err := store.Set(ctx, task.key, value, task.ttl); err != nil {
			q.failures.Add(1)
			metrics.RewarmFailureInc()
			q.log.Warnw("rewarm store write failed", "key", task.key, "store", store.Name(), "err", err)

			return
		}
	}

	q.completed.Add(1)
	metrics.RewarmCompletedInc()
}

// shutdown stops the drain loop and waits for it to exit.
func (q *rewarmQueue) shutdown() {
	q.stopOnce.Do(func() {
		close(q.stop)
	})
	<-q.done
}
