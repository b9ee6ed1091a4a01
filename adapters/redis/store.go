package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/dishscout/dishscout/state"
)

// Ensure Store implements state.Store
var _ state.Store = (*Store)(nil)

// Store is a Redis-backed implementation of state.Store.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewStore creates a job store on a caller-managed client.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefixOrDefault(prefix)}
}

// ---------- Key helpers ----------

func (s *Store) jobKey(id string) string     { return fmt.Sprintf("%s:job:%s", s.prefix, id) }
func (s *Store) jobIdemKey(id string) string { return fmt.Sprintf("%s:job:%s:idem", s.prefix, id) }
func (s *Store) jobsIdxKey() string          { return fmt.Sprintf("%s:idx:jobs", s.prefix) }
func (s *Store) statusIdxPrefix() string     { return fmt.Sprintf("%s:idx:status:", s.prefix) }
func (s *Store) statusIdxKey(st state.JobStatus) string {
	return s.statusIdxPrefix() + string(st)
}
func (s *Store) idemPrefix() string        { return fmt.Sprintf("%s:idem:", s.prefix) }
func (s *Store) idemKey(key string) string { return s.idemPrefix() + key }

// ---------- Jobs ----------

func (s *Store) SaveJob(ctx context.Context, job *state.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	keys := []string{s.jobKey(job.ID), s.jobsIdxKey()}
	score := strconv.FormatInt(job.CreatedAt.UnixNano(), 10)
	if err := saveJobScript.Run(ctx, s.rdb, keys, string(b), s.statusIdxPrefix(), score, job.ID).Err(); err != nil {
		return fmt.Errorf("redis save job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*state.Job, error) {
	v, err := s.rdb.Get(ctx, s.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("job %s: %w", id, state.ErrNotFound)
		}
		return nil, fmt.Errorf("redis get job: %w", err)
	}
	var job state.Job
	if err := json.Unmarshal(v, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *Store) ListJobs(ctx context.Context, status state.JobStatus) ([]*state.Job, error) {
	var ids []string
	var err error
	if status == "" {
		ids, err = s.rdb.ZRange(ctx, s.jobsIdxKey(), 0, -1).Result()
	} else {
		ids, err = s.rdb.SMembers(ctx, s.statusIdxKey(status)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("redis list job ids: %w", err)
	}
	if len(ids) == 0 {
		return []*state.Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget jobs: %w", err)
	}
	out := make([]*state.Job, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // deleted between index read and MGET
		}
		var job state.Job
		if err := json.Unmarshal([]byte(str), &job); err != nil {
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}
		out = append(out, &job)
	}
	state.SortJobs(out)
	return out, nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	keys := []string{s.jobKey(id), s.jobsIdxKey(), s.jobIdemKey(id)}
	if err := deleteJobScript.Run(ctx, s.rdb, keys, s.statusIdxPrefix(), id, s.idemPrefix()).Err(); err != nil {
		return fmt.Errorf("redis delete job: %w", err)
	}
	return nil
}

// ---------- Idempotency ----------

func (s *Store) ClaimIdempotencyKey(ctx context.Context, key string, jobID string) (bool, string, error) {
	ok, err := s.rdb.SetNX(ctx, s.idemKey(key), jobID, 0).Result()
	if err != nil {
		return false, "", fmt.Errorf("redis setnx idempotency: %w", err)
	}
	if ok {
		if err := s.rdb.Set(ctx, s.jobIdemKey(jobID), key, 0).Err(); err != nil {
			return false, "", fmt.Errorf("redis set idempotency reverse key: %w", err)
		}
		return true, "", nil
	}
	existing, err := s.rdb.Get(ctx, s.idemKey(key)).Result()
	if err != nil {
		return false, "", fmt.Errorf("redis get idempotency: %w", err)
	}
	return false, existing, nil
}
