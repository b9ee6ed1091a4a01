package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// pendingRecord tracks an inflight task and its visibility deadline.
type pendingRecord struct {
	task     *Task
	deadline time.Time
}

// Hooks provides optional callbacks for queue operations. All are optional no-ops by default.
type Hooks struct {
	OnEnqueue   func(queueName string, task *Task)
	OnDequeue   func(queueName string, task *Task)
	OnAck       func(queueName string, task *Task)
	OnNack      func(queueName string, task *Task, requeue bool)
	OnRedeliver func(queueName string, task *Task)
}

// Options configures the in-memory queue behavior.
type Options struct {
	// VisibilityTimeout controls how long a dequeued task stays invisible
	// before it is eligible for redelivery if not Ack'ed.
	VisibilityTimeout time.Duration
	// Capacity is the per-queue buffer size; Enqueue blocks when full.
	Capacity int
	// EnableDLQ routes Nack'ed (requeue=false) tasks to an in-memory DLQ.
	EnableDLQ bool
	// ScanInterval is how often expired inflight tasks are redelivered.
	ScanInterval time.Duration
	Hooks        Hooks
}

// InMemoryQueue is a channel-based in-memory queue implementation
type InMemoryQueue struct {
	mu        sync.RWMutex
	queues    map[string]chan *Task
	pending   map[string]map[string]*pendingRecord // queueName -> taskID -> record
	dlq       map[string][]*Task
	closed    bool
	opts      Options
	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewInMemoryQueue creates a new in-memory queue
func NewInMemoryQueue() *InMemoryQueue {
	return NewInMemoryQueueWithOptions(Options{})
}

// NewInMemoryQueueWithOptions creates a new in-memory queue with options.
func NewInMemoryQueueWithOptions(opts Options) *InMemoryQueue {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 100
	}
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = 200 * time.Millisecond
	}
	q := &InMemoryQueue{
		queues:  make(map[string]chan *Task),
		pending: make(map[string]map[string]*pendingRecord),
		dlq:     make(map[string][]*Task),
		opts:    opts,
		stopCh:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.scanLoop()
	return q
}

// queue returns the channel for queueName, creating it on first use.
func (q *InMemoryQueue) queue(queueName string) (chan *Task, error) {
	q.mu.RLock()
	ch, ok := q.queues[queueName]
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return ch, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	if ch, ok = q.queues[queueName]; !ok {
		ch = make(chan *Task, q.opts.Capacity)
		q.queues[queueName] = ch
		q.pending[queueName] = make(map[string]*pendingRecord)
	}
	return ch, nil
}

// Enqueue implements Queue
func (q *InMemoryQueue) Enqueue(ctx context.Context, queueName string, task *Task) error {
	if task == nil {
		return fmt.Errorf("nil task")
	}
	ch, err := q.queue(queueName)
	if err != nil {
		return err
	}

	// Hold the read lock while sending so Close cannot close ch underneath us;
	// Close signals stopCh before taking the write lock.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case ch <- task:
		if q.opts.Hooks.OnEnqueue != nil {
			q.opts.Hooks.OnEnqueue(queueName, task)
		}
		return nil
	case <-q.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue implements Queue
func (q *InMemoryQueue) Dequeue(ctx context.Context, queueName string) (*Task, error) {
	return q.DequeueWithTimeout(ctx, queueName, 0)
}

// DequeueWithTimeout implements Queue. A zero timeout blocks until a task
// arrives, ctx ends or the queue closes.
func (q *InMemoryQueue) DequeueWithTimeout(ctx context.Context, queueName string, timeout time.Duration) (*Task, error) {
	ch, err := q.queue(queueName)
	if err != nil {
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case task, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		task.Attempts++
		q.addPending(queueName, task, time.Now().Add(q.opts.VisibilityTimeout))
		if q.opts.Hooks.OnDequeue != nil {
			q.opts.Hooks.OnDequeue(queueName, task)
		}
		return task, nil
	case <-timeoutCh:
		return nil, ErrTimeout
	case <-q.stopCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) addPending(queueName string, task *Task, deadline time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if pending, exists := q.pending[queueName]; exists {
		pending[task.ID] = &pendingRecord{task: task, deadline: deadline}
	}
}

func (q *InMemoryQueue) removePending(queueName string, taskID string) *pendingRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if pending, exists := q.pending[queueName]; exists {
		rec := pending[taskID]
		delete(pending, taskID)
		return rec
	}
	return nil
}

// Ack implements Queue
func (q *InMemoryQueue) Ack(ctx context.Context, queueName string, taskID string) error {
	rec := q.removePending(queueName, taskID)
	if rec == nil {
		return fmt.Errorf("task %s: %w", taskID, ErrUnknown)
	}
	if q.opts.Hooks.OnAck != nil {
		q.opts.Hooks.OnAck(queueName, rec.task)
	}
	return nil
}

// Nack implements Queue
func (q *InMemoryQueue) Nack(ctx context.Context, queueName string, taskID string, requeue bool) error {
	rec := q.removePending(queueName, taskID)
	if rec == nil {
		return fmt.Errorf("task %s: %w", taskID, ErrUnknown)
	}
	if q.opts.Hooks.OnNack != nil {
		q.opts.Hooks.OnNack(queueName, rec.task, requeue)
	}
	if requeue {
		return q.Enqueue(ctx, queueName, rec.task)
	}
	if q.opts.EnableDLQ {
		q.mu.Lock()
		q.dlq[queueName] = append(q.dlq[queueName], rec.task)
		q.mu.Unlock()
	}
	return nil
}

// DeadLetters returns the tasks Nack'ed without requeue when the DLQ is
// enabled.
func (q *InMemoryQueue) DeadLetters(queueName string) []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]*Task(nil), q.dlq[queueName]...)
}

// Len returns the number of READY (not inflight) tasks for the named queue.
func (q *InMemoryQueue) Len(ctx context.Context, queueName string) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ch, exists := q.queues[queueName]
	if !exists {
		return 0, nil
	}
	return len(ch), nil
}

// Close implements Queue
func (q *InMemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.stopCh) })
	q.wg.Wait()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for _, ch := range q.queues {
		close(ch)
	}
	q.queues = make(map[string]chan *Task)
	q.pending = make(map[string]map[string]*pendingRecord)
	return nil
}

// scanLoop periodically redelivers inflight tasks past their visibility deadline.
func (q *InMemoryQueue) scanLoop() {
	defer q.wg.Done()
	t := time.NewTicker(q.opts.ScanInterval)
	defer t.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case now := <-t.C:
			q.scanOnce(now)
		}
	}
}

func (q *InMemoryQueue) scanOnce(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for queueName, inflight := range q.pending {
		ch := q.queues[queueName]
		for id, rec := range inflight {
			if !now.After(rec.deadline) {
				continue
			}
			select {
			case ch <- rec.task:
				if q.opts.Hooks.OnRedeliver != nil {
					q.opts.Hooks.OnRedeliver(queueName, rec.task)
				}
				delete(inflight, id)
			default:
				// Queue is full; try again on the next scan.
				rec.deadline = now.Add(q.opts.ScanInterval)
			}
		}
	}
}
