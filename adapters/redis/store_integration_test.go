package redisstore

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dishscout/dishscout/queue"
	"github.com/dishscout/dishscout/recommend"
	"github.com/dishscout/dishscout/state"
)

func redisAddrFromEnv(t *testing.T) string {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping Redis integration tests")
	}
	return addr
}

// newTestClient returns a client and a unique key prefix whose keys are
// removed when the test ends.
func newTestClient(t *testing.T) (redis.UniversalClient, string) {
	addr := redisAddrFromEnv(t)
	prefix := "dishscout-test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	rdb, err := Open(context.Background(), Config{Addr: addr})
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var cursor uint64
		for {
			keys, cur, err := rdb.Scan(ctx, cursor, prefix+"*", 200).Result()
			if err != nil {
				break
			}
			cursor = cur
			if len(keys) > 0 {
				_ = rdb.Del(ctx, keys...).Err()
			}
			if cursor == 0 {
				break
			}
		}
		_ = rdb.Close()
	})
	return rdb, prefix
}

func TestJobRoundTripAndStatusIndex(t *testing.T) {
	rdb, prefix := newTestClient(t)
	s := NewStore(rdb, prefix)
	ctx := context.Background()
	now := time.Now().UTC()

	job := &state.Job{
		ID:        "job-1",
		Status:    state.StatusPending,
		Mode:      recommend.ModeTool,
		Params:    recommend.Params{Location: "35.6,139.7"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != job.ID || got.Status != job.Status || got.Params.Location != "35.6,139.7" {
		t.Fatalf("job mismatch: got %+v", got)
	}

	list, err := s.ListJobs(ctx, state.StatusPending)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 1 || list[0].ID != job.ID {
		t.Fatalf("expected 1 pending job, got %d", len(list))
	}

	job.Status = state.StatusCompleted
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob 2: %v", err)
	}
	if list, _ := s.ListJobs(ctx, state.StatusPending); len(list) != 0 {
		t.Fatalf("expected 0 pending after status change, got %d", len(list))
	}
	if list, _ := s.ListJobs(ctx, ""); len(list) != 1 || list[0].Status != state.StatusCompleted {
		t.Fatalf("expected 1 completed job in full listing, got %+v", list)
	}

	if err := s.DeleteJob(ctx, job.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := s.GetJob(ctx, job.ID); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestIdempotencyKey(t *testing.T) {
	rdb, prefix := newTestClient(t)
	s := NewStore(rdb, prefix)
	ctx := context.Background()

	created, _, err := s.ClaimIdempotencyKey(ctx, "k", "job-1")
	if err != nil || !created {
		t.Fatalf("first claim: created=%v err=%v", created, err)
	}
	created, existing, err := s.ClaimIdempotencyKey(ctx, "k", "job-2")
	if err != nil || created || existing != "job-1" {
		t.Fatalf("second claim: created=%v existing=%q err=%v", created, existing, err)
	}

	_ = s.SaveJob(ctx, &state.Job{ID: "job-1", Status: state.StatusPending, CreatedAt: time.Now()})
	_ = s.DeleteJob(ctx, "job-1")
	if created, _, _ := s.ClaimIdempotencyKey(ctx, "k", "job-3"); !created {
		t.Fatal("expected key released after job deletion")
	}
}

func TestCacheTTL(t *testing.T) {
	rdb, prefix := newTestClient(t)
	c := NewCache(rdb, prefix)
	ctx := context.Background()

	items := []recommend.Item{{Category: "Ramen", TopicTitle: "t", Reason: "r"}}
	if err := c.Set(ctx, "k", items, time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || got[0].Category != "Ramen" {
		t.Fatalf("Get: %+v %v %v", got, ok, err)
	}
	if ttl := rdb.TTL(ctx, c.key("k")).Val(); ttl <= 0 || ttl > time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Fatal("expected miss")
	}
}

func TestQueueAckNackReclaim(t *testing.T) {
	rdb, prefix := newTestClient(t)
	q := NewQueue(rdb, prefix, QueueOptions{VisibilityTimeout: 100 * time.Millisecond, EnableDLQ: true})
	ctx := context.Background()

	task, _ := queue.NewTask(queue.KindRecommend, "job-1", map[string]string{"a": "b"})
	if err := q.Enqueue(ctx, "jobs", task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if n, _ := q.Len(ctx, "jobs"); n != 1 {
		t.Fatalf("expected len 1, got %d", n)
	}

	got, err := q.DequeueWithTimeout(ctx, "jobs", time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.ID != task.ID || got.Attempts != 1 {
		t.Fatalf("unexpected task %+v", got)
	}

	time.Sleep(150 * time.Millisecond)
	again, err := q.DequeueWithTimeout(ctx, "jobs", time.Second)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if again.ID != task.ID || again.Attempts != 2 {
		t.Fatalf("expected redelivery with attempts=2, got %+v", again)
	}

	if err := q.Nack(ctx, "jobs", again.ID, true); err != nil {
		t.Fatalf("Nack requeue: %v", err)
	}
	third, _ := q.DequeueWithTimeout(ctx, "jobs", time.Second)
	if err := q.Nack(ctx, "jobs", third.ID, false); err != nil {
		t.Fatalf("Nack dlq: %v", err)
	}
	if n := rdb.LLen(ctx, q.keyDLQ("jobs")).Val(); n != 1 {
		t.Fatalf("expected 1 dead letter, got %d", n)
	}
	if err := q.Ack(ctx, "jobs", third.ID); !errors.Is(err, queue.ErrUnknown) {
		t.Fatalf("expected ErrUnknown acking a settled task, got %v", err)
	}

	if _, err := q.DequeueWithTimeout(ctx, "jobs", time.Second); !errors.Is(err, queue.ErrTimeout) {
		t.Fatalf("expected ErrTimeout on empty queue, got %v", err)
	}
}
