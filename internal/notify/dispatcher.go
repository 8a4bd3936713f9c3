package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

const (
	// historyLimit bounds the in-memory ring of terminal records.
	historyLimit = 256

	// delaySamples is the sliding-window size for enqueue-to-sent delays.
	delaySamples = 1000
)

// HistorySink mirrors terminal notification records to persistent storage.
// Persisting is best effort; a sink failure never affects delivery status.
type HistorySink interface {
	SaveNotification(ctx context.Context, rec *Record) error
}

// Stats is a read-only snapshot of the dispatcher's counters.
type Stats struct {
	Total      uint64            `json:"total"`
	Sent       uint64            `json:"sent"`
	Failed     uint64            `json:"failed"`
	Retries    uint64            `json:"retries"`
	Batches    uint64            `json:"batches"`
	Pending    int               `json:"pending"`
	ByMethod   map[string]uint64 `json:"by_method"`
	ByUser     map[string]uint64 `json:"by_user"`
	AvgDelayMs float64           `json:"avg_delay_ms"`
}

// Dispatcher batches notification records and fans them out to delivery
// channels. The queue flushes when it reaches the batch size or when the
// batch interval elapses after the first unflushed record, whichever comes
// first: the flush timer is armed only when the queue goes from empty to
// non-empty and is cleared on every flush. Failed deliveries are retried up
// to the configured bound, then moved to history as failed.
type Dispatcher struct {
	log *logger.Logger

	batchSize     int
	batchInterval time.Duration
	maxRetries    int
	queueSize     int
	retryBackoff  time.Duration
	maxBackoff    time.Duration
	backoffMult   float64

	mu        sync.Mutex
	queue     []*Record
	timer     *time.Timer
	channels  map[string]Channel
	history   []*Record
	destroyed bool

	sinkMu sync.RWMutex
	sink   HistorySink

	statsMu  sync.Mutex
	total    uint64
	sent     uint64
	failed   uint64
	retries  uint64
	batches  uint64
	byMethod map[string]uint64
	byUser   map[string]uint64
	window   *internalcommon.SlidingWindow
}

// New builds a dispatcher with no channels. Channels are attached with
// RegisterChannel; the bootstrap owns their construction.
func New(cfg config.DispatcherConfig, log *logger.Logger) *Dispatcher {
	d := &Dispatcher{
		log:           log,
		batchSize:     cfg.BatchSize,
		batchInterval: cfg.BatchInterval.Duration,
		maxRetries:    cfg.MaxRetries,
		queueSize:     cfg.QueueSize,
		retryBackoff:  cfg.RetryBackoff.Duration,
		maxBackoff:    cfg.MaxBackoff.Duration,
		backoffMult:   cfg.BackoffMultiplier,
		channels:      make(map[string]Channel),
		byMethod:      make(map[string]uint64),
		byUser:        make(map[string]uint64),
		window:        internalcommon.NewSlidingWindow(delaySamples),
	}

	metrics.ComponentHealthSet(internalcommon.ComponentDispatcher, true)

	return d
}

// RegisterChannel attaches a delivery channel. Names are unique.
func (d *Dispatcher) RegisterChannel(ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.destroyed {
		return ErrDispatcherClosed
	}

	if _, exists := d.channels[ch.Name()]; exists {
		return fmt.Errorf("channel %q already registered", ch.Name())
	}

	d.channels[ch.Name()] = ch

	return nil
}

// UnregisterChannel detaches and closes the named channel, reporting
// whether it was registered.
func (d *Dispatcher) UnregisterChannel(name string) bool {
	d.mu.Lock()
	ch, ok := d.channels[name]
	delete(d.channels, name)
	d.mu.Unlock()

	if !ok {
		return false
	}

	if err := ch.Close(); err != nil {
		d.log.Warnw("closing notification channel failed", "channel", name, "err", err)
	}

	return true
}

// Channels lists the registered channel names, sorted.
func (d *Dispatcher) Channels() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.channels))

	for name := range d.channels {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Channel returns the named channel, reporting absence via the bool.
func (d *Dispatcher) Channel(name string) (Channel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, ok := d.channels[name]

	return ch, ok
}

// SetHistorySink installs the persistent mirror for terminal records.
func (d *Dispatcher) SetHistorySink(sink HistorySink) {
	d.sinkMu.Lock()
	defer d.sinkMu.Unlock()

	d.sink = sink
}

// Enqueue creates a pending record for the event and queues it. Reaching
// the batch size flushes inline; otherwise the record waits for the batch
// timer.
func (d *Dispatcher) Enqueue(evt *event.DomainEvent, deliveryMethod string) (*Record, error) {
	rec := NewRecord(evt, deliveryMethod)

	if err := d.EnqueueRecord(rec); err != nil {
		return nil, err
	}

	return rec, nil
}

// EnqueueRecord queues a prebuilt record. Used for notifications that do not
// originate from a domain event, such as reorg announcements.
func (d *Dispatcher) EnqueueRecord(rec *Record) error {
	if rec.Status == "" {
		rec.Status = StatusPending
	}

	if rec.EnqueuedAt.IsZero() {
		rec.EnqueuedAt = time.Now().UTC()
	}

	d.mu.Lock()

	if d.destroyed {
		d.mu.Unlock()

		return ErrDispatcherClosed
	}

	if len(d.queue) >= d.queueSize {
		d.mu.Unlock()
		metrics.NotificationDroppedInc(rec.DeliveryMethod)

		return ErrQueueFull
	}

	wasEmpty := len(d.queue) == 0
	d.queue = append(d.queue, rec)
	full := len(d.queue) >= d.batchSize

	if wasEmpty && !full {
		d.armTimerLocked()
	}

	d.mu.Unlock()

	metrics.NotificationEnqueuedInc(string(rec.Kind))
	d.noteEnqueued(rec)

	if full {
		d.flushOnce(context.Background())
	}

	return nil
}

// Flush drains the queue, flushing batch after batch until nothing remains
// pending. Records re-enqueued by retries are processed in the same drain;
// the configured backoff spaces consecutive retry rounds. Returns the
// number of delivery attempts made.
func (d *Dispatcher) Flush(ctx context.Context) int {
	total := 0
	backoff := d.retryBackoff

	for {
		processed, requeued := d.flushOnce(ctx)
		total += processed

		if processed == 0 || d.Len() == 0 {
			return total
		}

		if requeued > 0 {
			select {
			case <-ctx.Done():
				return total
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * d.backoffMult)
			if backoff > d.maxBackoff {
				backoff = d.maxBackoff
			}
		}
	}
}

// Destroy cancels the pending timer, drops the queue and closes every
// channel. The dispatcher accepts nothing afterwards.
func (d *Dispatcher) Destroy() {
	d.mu.Lock()

	if d.destroyed {
		d.mu.Unlock()

		return
	}

	d.destroyed = true

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	dropped := len(d.queue)
	d.queue = nil

	channels := d.channels
	d.channels = make(map[string]Channel)

	d.mu.Unlock()

	for name, ch := range channels {
		if err := ch.Close(); err != nil {
			d.log.Warnw("closing notification channel failed", "channel", name, "err", err)
		}
	}

	if dropped > 0 {
		d.log.Warnw("dispatcher destroyed with pending notifications", "dropped", dropped)
	}

	metrics.ComponentHealthSet(internalcommon.ComponentDispatcher, false)
}

// Len returns the number of queued records.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.queue)
}

// History returns the retained terminal records, newest first.
func (d *Dispatcher) History() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	records := make([]Record, 0, len(d.history))

	for i := len(d.history) - 1; i >= 0; i-- {
		records = append(records, *d.history[i])
	}

	return records
}

// Stats returns a snapshot of the dispatcher's counters.
func (d *Dispatcher) Stats() Stats {
	d.statsMu.Lock()

	stats := Stats{
		Total:      d.total,
		Sent:       d.sent,
		Failed:     d.failed,
		Retries:    d.retries,
		Batches:    d.batches,
		ByMethod:   make(map[string]uint64, len(d.byMethod)),
		ByUser:     make(map[string]uint64, len(d.byUser)),
		AvgDelayMs: d.window.Average(),
	}

	for method, n := range d.byMethod {
		stats.ByMethod[method] = n
	}

	for user, n := range d.byUser {
		stats.ByUser[user] = n
	}

	d.statsMu.Unlock()

	stats.Pending = d.Len()

	return stats
}

// armTimerLocked schedules the batch-interval flush. Callers hold d.mu.
func (d *Dispatcher) armTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.batchInterval, func() {
		d.flushOnce(context.Background())
	})
}

// flushOnce processes one batch: it clears the timer, takes up to batchSize
// records and settles every delivery before returning. One failed record
// never aborts the rest of the batch.
func (d *Dispatcher) flushOnce(ctx context.Context) (processed, requeued int) {
	d.mu.Lock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if d.destroyed || len(d.queue) == 0 {
		d.mu.Unlock()

		return 0, 0
	}

	n := len(d.queue)
	if n > d.batchSize {
		n = d.batchSize
	}

	batch := make([]*Record, n)
	copy(batch, d.queue[:n])

	rest := make([]*Record, len(d.queue)-n)
	copy(rest, d.queue[n:])
	d.queue = rest

	channels := make(map[string]Channel, len(d.channels))
	for name, ch := range d.channels {
		channels[name] = ch
	}

	// Records beyond this batch keep waiting; give them a fresh timer.
	if len(d.queue) > 0 {
		d.armTimerLocked()
	}

	d.mu.Unlock()

	metrics.NotificationBatchFlushed()
	d.noteBatch()

	for _, rec := range batch {
		err := d.deliver(ctx, channels, rec)
		if err == nil {
			d.markSent(ctx, rec)

			continue
		}

		rec.RetryCount++

		if rec.RetryCount < d.maxRetries {
			d.log.Debugw("notification delivery failed, retrying",
				"id", rec.ID, "method", rec.DeliveryMethod, "attempt", rec.RetryCount, "err", err)
			metrics.NotificationRetryInc(rec.DeliveryMethod)
			d.noteRetry()

			if d.requeue(rec) {
				requeued++
			} else {
				d.markFailed(ctx, rec)
			}

			continue
		}

		d.log.Warnw("notification delivery failed permanently",
			"id", rec.ID, "method", rec.DeliveryMethod, "attempts", rec.RetryCount, "err", err)
		d.markFailed(ctx, rec)
	}

	return n, requeued
}

// deliver routes one record: "all" fans out to every channel concurrently
// and requires all of them to succeed, anything else goes to the matching
// channel only.
func (d *Dispatcher) deliver(ctx context.Context, channels map[string]Channel, rec *Record) error {
	if rec.DeliveryMethod == DeliveryAll {
		if len(channels) == 0 {
			return ErrNoChannels
		}

		var g errgroup.Group

		for _, ch := range channels {
			g.Go(func() error {
				if err := ch.Deliver(ctx, rec); err != nil {
					return fmt.Errorf("channel %s: %w", ch.Name(), err)
				}

				return nil
			})
		}

		return g.Wait()
	}

	ch, ok := channels[rec.DeliveryMethod]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, rec.DeliveryMethod)
	}

	return ch.Deliver(ctx, rec)
}

// requeue puts a retryable record back at the end of the queue. Returns
// false when the dispatcher is destroyed or the queue is full.
func (d *Dispatcher) requeue(rec *Record) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.destroyed || len(d.queue) >= d.queueSize {
		return false
	}

	wasEmpty := len(d.queue) == 0
	d.queue = append(d.queue, rec)

	if wasEmpty {
		d.armTimerLocked()
	}

	return true
}

func (d *Dispatcher) markSent(ctx context.Context, rec *Record) {
	now := time.Now().UTC()
	rec.Status = StatusSent
	rec.SentAt = &now

	metrics.NotificationDelivered(rec.DeliveryMethod, 1)
	d.noteSent(now.Sub(rec.EnqueuedAt))
	d.remember(ctx, rec)
}

func (d *Dispatcher) markFailed(ctx context.Context, rec *Record) {
	rec.Status = StatusFailed

	metrics.NotificationFailureInc(rec.DeliveryMethod)
	d.noteFailed()
	d.remember(ctx, rec)
}

// remember appends a terminal record to the bounded history and mirrors it
// to the sink when one is installed.
func (d *Dispatcher) remember(ctx context.Context, rec *Record) {
	d.mu.Lock()

	d.history = append(d.history, rec)
	if len(d.history) > historyLimit {
		d.history = d.history[len(d.history)-historyLimit:]
	}

	d.mu.Unlock()

	d.sinkMu.RLock()
	sink := d.sink
	d.sinkMu.RUnlock()

	if sink != nil {
		if err := sink.SaveNotification(ctx, rec); err != nil {
			d.log.Warnw("persisting notification failed", "id", rec.ID, "err", err)
		}
	}
}

func (d *Dispatcher) noteEnqueued(rec *Record) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	d.total++
	d.byMethod[rec.DeliveryMethod]++
	d.byUser[rec.UserID]++
}

func (d *Dispatcher) noteSent(delay time.Duration) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	d.sent++
	d.window.Add(float64(delay.Microseconds()) / 1000.0)
}

func (d *Dispatcher) noteFailed() {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	d.failed++
}

func (d *Dispatcher) noteRetry() {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	d.retries++
}

func (d *Dispatcher) noteBatch() {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	d.batches++
}
