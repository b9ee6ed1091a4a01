// Package engine accepts asynchronous recommendation jobs and hands them to
// workers through the queue.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dishscout/dishscout/queue"
	"github.com/dishscout/dishscout/recommend"
	"github.com/dishscout/dishscout/state"
	"github.com/dishscout/dishscout/worker"
)

// ErrUnknownMode is returned for a mode other than recommend.ModeTool or
// recommend.ModeText.
var ErrUnknownMode = errors.New("unknown recommendation mode")

// Engine coordinates job submission
type Engine struct {
	stateStore state.Store
	queue      queue.Queue
	queueName  string
	logger     *slog.Logger
}

// Config holds engine configuration
type Config struct {
	StateStore state.Store
	Queue      queue.Queue
	QueueName  string
	Logger     *slog.Logger
}

// New creates a new engine
func New(cfg Config) (*Engine, error) {
	if cfg.StateStore == nil {
		return nil, errors.New("state store is required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = worker.QueueName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		stateStore: cfg.StateStore,
		queue:      cfg.Queue,
		queueName:  cfg.QueueName,
		logger:     cfg.Logger,
	}, nil
}

// SubmitOptions configures job submission.
type SubmitOptions struct {
	// IdempotencyKey maps repeated submissions onto the first job.
	IdempotencyKey string
}

// Submit stores a pending job and enqueues it. When the idempotency key was
// already claimed the existing job is returned with created false.
func (e *Engine) Submit(ctx context.Context, mode string, p recommend.Params, opts SubmitOptions) (*state.Job, bool, error) {
	if mode == "" {
		mode = recommend.ModeTool
	}
	if mode != recommend.ModeTool && mode != recommend.ModeText {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if err := p.Validate(); err != nil {
		return nil, false, err
	}

	jobID := uuid.NewString()
	if opts.IdempotencyKey != "" {
		created, existing, err := e.stateStore.ClaimIdempotencyKey(ctx, opts.IdempotencyKey, jobID)
		if err != nil {
			return nil, false, fmt.Errorf("claim idempotency key: %w", err)
		}
		if !created {
			job, err := e.stateStore.GetJob(ctx, existing)
			if err != nil {
				return nil, false, fmt.Errorf("load job for idempotency key: %w", err)
			}
			return job, false, nil
		}
	}

	now := time.Now().UTC()
	job := &state.Job{
		ID:        jobID,
		Status:    state.StatusPending,
		Mode:      mode,
		Params:    p,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.IdempotencyKey != "" {
		job.Metadata = map[string]string{"idempotency_key": opts.IdempotencyKey}
	}
	if err := e.stateStore.SaveJob(ctx, job); err != nil {
		return nil, false, fmt.Errorf("save job: %w", err)
	}

	task, err := worker.NewRecommendTask(job)
	if err == nil {
		err = e.queue.Enqueue(ctx, e.queueName, task)
	}
	if err != nil {
		job.Status = state.StatusFailed
		job.Error = err.Error()
		job.FinishedAt = &now
		if saveErr := e.stateStore.SaveJob(ctx, job); saveErr != nil {
			e.logger.Error("save failed job", "job", jobID, "error", saveErr)
		}
		return nil, false, fmt.Errorf("enqueue job: %w", err)
	}

	e.logger.Info("job submitted", "job", jobID, "mode", mode)
	return job, true, nil
}

// GetJob retrieves a job by id.
func (e *Engine) GetJob(ctx context.Context, jobID string) (*state.Job, error) {
	return e.stateStore.GetJob(ctx, jobID)
}

// ListJobs lists jobs, optionally filtered by status.
func (e *Engine) ListJobs(ctx context.Context, status state.JobStatus) ([]*state.Job, error) {
	return e.stateStore.ListJobs(ctx, status)
}

// QueueDepth reports the number of jobs waiting for a worker.
func (e *Engine) QueueDepth(ctx context.Context) (int, error) {
	return e.queue.Len(ctx, e.queueName)
}
