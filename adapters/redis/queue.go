package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dishscout/dishscout/queue"
)

var _ queue.Queue = (*Queue)(nil)

// QueueOptions configures Queue.
type QueueOptions struct {
	// PopTimeout bounds a single BRPOP when Dequeue is called without a timeout.
	PopTimeout time.Duration
	// VisibilityTimeout is how long a dequeued task stays inflight before it
	// is handed out again.
	VisibilityTimeout time.Duration
	EnableDLQ         bool
}

// Queue is a LIST-based queue. Producers LPUSH and consumers BRPOP; dequeued
// tasks are kept in an inflight hash with a deadline zset so Ack, Nack and
// visibility redelivery work by task id.
type Queue struct {
	rdb    redis.UniversalClient
	prefix string
	opts   QueueOptions
}

func NewQueue(rdb redis.UniversalClient, prefix string, opts QueueOptions) *Queue {
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 5 * time.Second
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	return &Queue{rdb: rdb, prefix: prefixOrDefault(prefix), opts: opts}
}

func (q *Queue) keyReady(name string) string    { return fmt.Sprintf("%s:queue:%s", q.prefix, name) }
func (q *Queue) keyInflight(name string) string { return fmt.Sprintf("%s:inflight:%s", q.prefix, name) }
func (q *Queue) keyDeadline(name string) string { return fmt.Sprintf("%s:deadline:%s", q.prefix, name) }
func (q *Queue) keyDLQ(name string) string      { return fmt.Sprintf("%s:dlq:%s", q.prefix, name) }

// Enqueue adds a task to the queue.
func (q *Queue) Enqueue(ctx context.Context, queueName string, task *queue.Task) error {
	if task == nil {
		return fmt.Errorf("nil task")
	}
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.keyReady(queueName), b).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Dequeue blocks until a task arrives or ctx ends.
func (q *Queue) Dequeue(ctx context.Context, queueName string) (*queue.Task, error) {
	for {
		task, err := q.DequeueWithTimeout(ctx, queueName, q.opts.PopTimeout)
		if errors.Is(err, queue.ErrTimeout) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return task, err
	}
}

// DequeueWithTimeout redelivers expired inflight tasks, then pops one task.
func (q *Queue) DequeueWithTimeout(ctx context.Context, queueName string, timeout time.Duration) (*queue.Task, error) {
	if timeout <= 0 {
		timeout = q.opts.PopTimeout
	}
	if _, err := q.Reclaim(ctx, queueName, time.Now()); err != nil {
		return nil, err
	}
	res, err := q.rdb.BRPop(ctx, timeout, q.keyReady(queueName)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, queue.ErrTimeout
		}
		return nil, fmt.Errorf("redis brpop: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result")
	}
	var task queue.Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	task.Attempts++
	b, err := json.Marshal(&task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	deadline := time.Now().Add(q.opts.VisibilityTimeout).UnixMilli()
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.keyInflight(queueName), task.ID, b)
	pipe.ZAdd(ctx, q.keyDeadline(queueName), redis.Z{Score: float64(deadline), Member: task.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis mark inflight: %w", err)
	}
	return &task, nil
}

// Ack removes a task from the inflight set.
func (q *Queue) Ack(ctx context.Context, queueName string, taskID string) error {
	pipe := q.rdb.TxPipeline()
	del := pipe.HDel(ctx, q.keyInflight(queueName), taskID)
	pipe.ZRem(ctx, q.keyDeadline(queueName), taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis ack: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("task %s: %w", taskID, queue.ErrUnknown)
	}
	return nil
}

// Nack requeues the task or moves it to the dead letter list.
func (q *Queue) Nack(ctx context.Context, queueName string, taskID string, requeue bool) error {
	keys := []string{q.keyInflight(queueName), q.keyDeadline(queueName), q.keyReady(queueName), q.keyDLQ(queueName)}
	n, err := nackTaskScript.Run(ctx, q.rdb, keys, taskID, flag(requeue), flag(q.opts.EnableDLQ)).Int()
	if err != nil {
		return fmt.Errorf("redis nack: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", taskID, queue.ErrUnknown)
	}
	return nil
}

// Reclaim moves inflight tasks whose deadline is before now back to the
// ready list.
func (q *Queue) Reclaim(ctx context.Context, queueName string, now time.Time) (int, error) {
	keys := []string{q.keyDeadline(queueName), q.keyInflight(queueName), q.keyReady(queueName)}
	n, err := reclaimScript.Run(ctx, q.rdb, keys, strconv.FormatInt(now.UnixMilli(), 10)).Int()
	if err != nil {
		return 0, fmt.Errorf("redis reclaim: %w", err)
	}
	return n, nil
}

// Len returns the number of ready tasks.
func (q *Queue) Len(ctx context.Context, queueName string) (int, error) {
	n, err := q.rdb.LLen(ctx, q.keyReady(queueName)).Result()
	return int(n), err
}

// Close is a no-op; the client belongs to the caller.
func (q *Queue) Close() error { return nil }

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
