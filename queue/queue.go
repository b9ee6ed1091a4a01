// Package queue provides task queue interfaces and implementations for
// distributing recommendation jobs to workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Errors shared by queue implementations.
var (
	ErrClosed  = errors.New("queue is closed")
	ErrTimeout = errors.New("dequeue timeout")
	ErrUnknown = errors.New("task not found in pending")
)

// TaskKind identifies the handler a task is routed to.
type TaskKind string

const (
	// KindRecommend runs a recommendation job.
	KindRecommend TaskKind = "recommend"
)

// Task represents a unit of work to be executed
type Task struct {
	ID          string            `json:"id"`
	Kind        TaskKind          `json:"kind"`
	JobID       string            `json:"job_id"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	EnqueueTime time.Time         `json:"enqueue_time"`
	Attempts    int               `json:"attempts"`
}

// Queue defines the interface for task distribution
type Queue interface {
	// Enqueue adds a task to the queue
	Enqueue(ctx context.Context, queueName string, task *Task) error

	// Dequeue retrieves a task from the queue (blocking)
	Dequeue(ctx context.Context, queueName string) (*Task, error)

	// DequeueWithTimeout retrieves a task, returning ErrTimeout when none
	// arrives in time
	DequeueWithTimeout(ctx context.Context, queueName string, timeout time.Duration) (*Task, error)

	// Ack acknowledges successful task completion
	Ack(ctx context.Context, queueName string, taskID string) error

	// Nack indicates task failure and requeues it when requeue is set
	Nack(ctx context.Context, queueName string, taskID string, requeue bool) error

	// Len returns the number of ready tasks in the queue
	Len(ctx context.Context, queueName string) (int, error)

	// Close closes the queue and releases resources
	Close() error
}

// NewTask creates a task with a random ID. payload is JSON encoded.
func NewTask(kind TaskKind, jobID string, payload any) (*Task, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode task payload: %w", err)
		}
		raw = b
	}
	return &Task{
		ID:          uuid.NewString(),
		Kind:        kind,
		JobID:       jobID,
		Payload:     raw,
		Metadata:    make(map[string]string),
		EnqueueTime: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the task payload into v.
func (t *Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("task %s has no payload", t.ID)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode task %s payload: %w", t.ID, err)
	}
	return nil
}
