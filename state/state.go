// Package state persists asynchronous recommendation jobs.
package state

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dishscout/dishscout/recommend"
	"github.com/dishscout/dishscout/retry"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("job not found")

// JobStatus represents the lifecycle of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job is one asynchronous recommendation request and its outcome.
type Job struct {
	ID         string            `json:"id"`
	Status     JobStatus         `json:"status"`
	Mode       string            `json:"mode"`
	Params     recommend.Params  `json:"params"`
	Items      []recommend.Item  `json:"items,omitempty"`
	Metrics    *retry.Metrics    `json:"metrics,omitempty"`
	Error      string            `json:"error,omitempty"`
	Attempts   int               `json:"attempts"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Store defines the interface for persisting jobs
type Store interface {
	// SaveJob creates or replaces a job
	SaveJob(ctx context.Context, job *Job) error

	// GetJob returns ErrNotFound for unknown ids
	GetJob(ctx context.Context, id string) (*Job, error)

	// ListJobs lists jobs ordered by creation time, optionally filtered by status
	ListJobs(ctx context.Context, status JobStatus) ([]*Job, error)

	// DeleteJob removes a job and is a no-op for unknown ids
	DeleteJob(ctx context.Context, id string) error

	// ClaimIdempotencyKey maps key to jobID if the key is unused. Otherwise it
	// returns created=false and the job id the key already maps to.
	ClaimIdempotencyKey(ctx context.Context, key string, jobID string) (created bool, existing string, err error)
}

// IsTerminal returns true if the job will not change any more
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	c.Params.Restrictions = slices.Clone(j.Params.Restrictions)
	c.Items = slices.Clone(j.Items)
	if j.Metrics != nil {
		m := *j.Metrics
		c.Metrics = &m
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	if j.Metadata != nil {
		c.Metadata = make(map[string]string, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Duration returns how long the job has been running or ran.
func (j *Job) Duration() time.Duration {
	if j.FinishedAt != nil {
		return j.FinishedAt.Sub(j.CreatedAt)
	}
	return time.Since(j.CreatedAt)
}

// SortJobs orders jobs by CreatedAt then ID.
func SortJobs(jobs []*Job) {
	slices.SortFunc(jobs, func(a, b *Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
