// Package worker runs queued recommendation jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dishscout/dishscout/metrics"
	"github.com/dishscout/dishscout/queue"
	"github.com/dishscout/dishscout/recommend"
	"github.com/dishscout/dishscout/retry"
	"github.com/dishscout/dishscout/state"
)

// QueueName is the queue recommendation tasks travel on.
const QueueName = "recommendations"

// Recommender produces recommendations for a job.
type Recommender interface {
	Recommend(ctx context.Context, p recommend.Params) (*recommend.Result, error)
	RecommendFromText(ctx context.Context, p recommend.Params) (*recommend.Result, error)
}

// Payload is the body of a recommend task. It carries the request so a task
// can run even when its job record is gone.
type Payload struct {
	Mode   string           `json:"mode"`
	Params recommend.Params `json:"params"`
}

// interruptedKey counts deliveries cut short by worker shutdown; they do
// not count against the attempt limit.
const interruptedKey = "interrupted"

// NewRecommendTask builds the queue task for job.
func NewRecommendTask(job *state.Job) (*queue.Task, error) {
	return queue.NewTask(queue.KindRecommend, job.ID, Payload{Mode: job.Mode, Params: job.Params})
}

// Worker polls tasks from a queue and executes recommendation jobs
type Worker struct {
	id            string
	queue         queue.Queue
	queueName     string
	recommender   Recommender
	stateStore    state.Store
	metrics       *metrics.JobMetrics
	logger        *slog.Logger
	pollInterval  time.Duration
	jobTimeout    time.Duration
	maxAttempts   int
	maxConcurrent int
	stopCh        chan struct{}
	wg            sync.WaitGroup
	running       bool
	mu            sync.Mutex
}

// Config holds worker configuration
type Config struct {
	ID            string
	Queue         queue.Queue
	QueueName     string
	Recommender   Recommender
	StateStore    state.Store
	Metrics       *metrics.JobMetrics
	Logger        *slog.Logger
	PollInterval  time.Duration
	JobTimeout    time.Duration
	MaxAttempts   int
	MaxConcurrent int
}

// DefaultConfig returns a default worker configuration
func DefaultConfig() Config {
	return Config{
		ID:            fmt.Sprintf("worker-%d", time.Now().UnixNano()),
		QueueName:     QueueName,
		PollInterval:  time.Second,
		JobTimeout:    2 * time.Minute,
		MaxAttempts:   3,
		MaxConcurrent: 5,
	}
}

// New creates a new worker
func New(cfg Config) (*Worker, error) {
	if cfg.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if cfg.Recommender == nil {
		return nil, errors.New("recommender is required")
	}
	if cfg.StateStore == nil {
		return nil, errors.New("state store is required")
	}
	def := DefaultConfig()
	if cfg.QueueName == "" {
		cfg.QueueName = def.QueueName
	}
	if cfg.ID == "" {
		cfg.ID = def.ID
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Worker{
		id:            cfg.ID,
		queue:         cfg.Queue,
		queueName:     cfg.QueueName,
		recommender:   cfg.Recommender,
		stateStore:    cfg.StateStore,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.With("worker", cfg.ID),
		pollInterval:  cfg.PollInterval,
		jobTimeout:    cfg.JobTimeout,
		maxAttempts:   cfg.MaxAttempts,
		maxConcurrent: cfg.MaxConcurrent,
		stopCh:        make(chan struct{}),
	}, nil
}

// Start begins polling for and executing tasks
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("starting worker", "queue", w.queueName, "concurrency", w.maxConcurrent)

	for i := 0; i < w.maxConcurrent; i++ {
		w.wg.Add(1)
		go w.pollLoop(ctx, i)
	}
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker stop timeout: %w", ctx.Err())
	}
}

func (w *Worker) pollLoop(ctx context.Context, slot int) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			w.pollOnce(ctx, slot)
		}
	}
}

// pollOnce polls for a single task and executes it
func (w *Worker) pollOnce(ctx context.Context, slot int) {
	task, err := w.queue.DequeueWithTimeout(ctx, w.queueName, w.pollInterval)
	if err != nil {
		if !errors.Is(err, queue.ErrTimeout) && ctx.Err() == nil {
			w.logger.Warn("dequeue failed", "slot", slot, "error", err)
			if errors.Is(err, queue.ErrClosed) {
				// Avoid spinning on a closed queue until Stop arrives.
				select {
				case <-w.stopCh:
				case <-ctx.Done():
				case <-time.After(w.pollInterval):
				}
			}
		}
		return
	}
	w.process(ctx, task)
}

func (w *Worker) process(ctx context.Context, task *queue.Task) {
	log := w.logger.With("task", task.ID, "job", task.JobID, "attempt", task.Attempts)

	if task.Kind != queue.KindRecommend {
		log.Error("unknown task kind", "kind", task.Kind)
		w.nack(ctx, log, task, false)
		return
	}
	var payload Payload
	if err := task.Decode(&payload); err != nil {
		log.Error("bad task payload", "error", err)
		w.nack(ctx, log, task, false)
		return
	}

	job, err := w.loadJob(ctx, task, payload)
	if err != nil {
		log.Error("load job failed", "error", err)
		w.nack(ctx, log, task, true)
		return
	}
	if job.Status.IsTerminal() {
		log.Debug("job already finished", "status", job.Status)
		w.ack(ctx, log, task)
		return
	}

	attempts := task.Attempts - interruptions(job)
	job.Status = state.StatusRunning
	job.Attempts = attempts
	job.UpdatedAt = time.Now().UTC()
	if err := w.stateStore.SaveJob(ctx, job); err != nil {
		log.Warn("save running job failed", "error", err)
	}
	w.metrics.Started()

	start := time.Now()
	res, err := w.run(ctx, job)
	now := time.Now().UTC()
	job.UpdatedAt = now

	switch {
	case err == nil:
		job.Status = state.StatusCompleted
		job.Items = res.Items
		m := res.Metrics
		job.Metrics = &m
		job.Error = ""
		job.FinishedAt = &now
		w.save(ctx, log, job)
		w.ack(ctx, log, task)
		w.metrics.Finished(string(state.StatusCompleted))
		log.Info("job completed", "items", len(res.Items), "cached", res.Cached,
			"total_attempts", m.TotalAttempts, "elapsed", time.Since(start))

	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// The worker is shutting down; hand the job back untouched.
		bg := context.WithoutCancel(ctx)
		job.Status = state.StatusPending
		if job.Metadata == nil {
			job.Metadata = map[string]string{}
		}
		job.Metadata[interruptedKey] = strconv.Itoa(interruptions(job) + 1)
		job.Attempts = attempts - 1
		w.save(bg, log, job)
		w.nack(bg, log, task, true)
		log.Warn("job interrupted by shutdown, requeued")

	case retry.IsRetryable(err) && attempts < w.maxAttempts:
		job.Status = state.StatusPending
		job.Error = err.Error()
		w.save(ctx, log, job)
		w.nack(ctx, log, task, true)
		w.metrics.Requeued()
		log.Warn("job requeued", "error", err)

	default:
		job.Status = state.StatusFailed
		job.Error = err.Error()
		job.FinishedAt = &now
		w.save(ctx, log, job)
		w.nack(ctx, log, task, false)
		w.metrics.Finished(string(state.StatusFailed))
		log.Error("job failed", "error", err, "logical", retry.IsLogicalValidation(err))
	}
}

func (w *Worker) run(ctx context.Context, job *state.Job) (*recommend.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()
	if job.Mode == recommend.ModeText {
		return w.recommender.RecommendFromText(ctx, job.Params)
	}
	return w.recommender.Recommend(ctx, job.Params)
}

func interruptions(job *state.Job) int {
	n, _ := strconv.Atoi(job.Metadata[interruptedKey])
	return n
}

// loadJob returns the stored job, recreating it from the payload when the
// record is missing.
func (w *Worker) loadJob(ctx context.Context, task *queue.Task, payload Payload) (*state.Job, error) {
	job, err := w.stateStore.GetJob(ctx, task.JobID)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	now := time.Now().UTC()
	return &state.Job{
		ID:        task.JobID,
		Status:    state.StatusPending,
		Mode:      payload.Mode,
		Params:    payload.Params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (w *Worker) save(ctx context.Context, log *slog.Logger, job *state.Job) {
	if err := w.stateStore.SaveJob(ctx, job); err != nil {
		log.Error("save job failed", "status", job.Status, "error", err)
	}
}

func (w *Worker) ack(ctx context.Context, log *slog.Logger, task *queue.Task) {
	if err := w.queue.Ack(ctx, w.queueName, task.ID); err != nil {
		log.Warn("ack failed", "error", err)
	}
}

func (w *Worker) nack(ctx context.Context, log *slog.Logger, task *queue.Task, requeue bool) {
	if err := w.queue.Nack(ctx, w.queueName, task.ID, requeue); err != nil {
		log.Warn("nack failed", "requeue", requeue, "error", err)
	}
}
