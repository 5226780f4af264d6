package operations

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryJobStore is an in-memory implementation of JobStore. Jobs are copied
// on the way in and out.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryJobStore creates a new in-memory job store
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*Job)}
}

// CreateJob creates a new job
func (s *MemoryJobStore) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return &OperationError{Type: ErrorTypeValidation, Message: "job " + job.ID + " already exists"}
	}
	s.jobs[job.ID] = job.clone()
	return nil
}

// GetJob retrieves a job by ID
func (s *MemoryJobStore) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, NewNotFoundError("job", id)
	}
	return job.clone(), nil
}

// UpdateJob updates an existing job
func (s *MemoryJobStore) UpdateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return NewNotFoundError("job", job.ID)
	}
	s.jobs[job.ID] = job.clone()
	return nil
}

// Transition moves a job from one status to another in a single step and
// returns the updated copy. It fails without touching the job when the
// stored status is not from.
func (s *MemoryJobStore) Transition(id string, from, to JobStatus, message string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, NewNotFoundError("job", id)
	}
	if job.Status != from {
		return nil, NewValidationError("", fmt.Sprintf("job %s is %s, not %s", id, job.Status, from))
	}

	now := time.Now()
	job.Status = to
	job.Message = message
	if to == JobStatusRunning {
		job.StartedAt = &now
	}
	if to.Terminal() {
		job.CompletedAt = &now
	}
	return job.clone(), nil
}

// ListJobs returns jobs matching the filter, newest first
func (s *MemoryJobStore) ListJobs(filter JobFilter) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Job
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Dataset != "" && job.Request.Dataset != filter.Dataset {
			continue
		}
		if !filter.Since.IsZero() && job.CreatedAt.Before(filter.Since) {
			continue
		}
		result = append(result, job.clone())
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// DeleteJob removes a job from the store
func (s *MemoryJobStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return NewNotFoundError("job", id)
	}
	delete(s.jobs, id)
	return nil
}

// CleanupOldJobs removes finished jobs created before olderThan ago
func (s *MemoryJobStore) CleanupOldJobs(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	deleted := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted
}

// GetStats returns job counts by status
func (s *MemoryJobStore) GetStats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{"total_jobs": len(s.jobs)}
	for _, job := range s.jobs {
		stats[string(job.Status)]++
	}
	return stats
}
