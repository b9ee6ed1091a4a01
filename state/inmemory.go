package state

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore is an in-memory implementation of Store
type InMemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	idemKeys map[string]string // idempotency key -> job id
}

// NewInMemoryStore creates a new in-memory job store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		jobs:     make(map[string]*Job),
		idemKeys: make(map[string]string),
	}
}

// SaveJob implements Store
func (s *InMemoryStore) SaveJob(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutations
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob implements Store
func (s *InMemoryStore) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job.Clone(), nil
}

// ListJobs implements Store
func (s *InMemoryStore) ListJobs(ctx context.Context, status JobStatus) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status == "" || job.Status == status {
			result = append(result, job.Clone())
		}
	}
	SortJobs(result)
	return result, nil
}

// DeleteJob implements Store
func (s *InMemoryStore) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, id)
	for key, jobID := range s.idemKeys {
		if jobID == id {
			delete(s.idemKeys, key)
		}
	}
	return nil
}

// ClaimIdempotencyKey implements Store
func (s *InMemoryStore) ClaimIdempotencyKey(ctx context.Context, key string, jobID string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.idemKeys[key]; ok {
		return false, existing, nil
	}
	s.idemKeys[key] = jobID
	return true, "", nil
}
