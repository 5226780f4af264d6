package operations

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tabtweak/internal/infrastructure"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job has finished
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents an async operation job
type Job struct {
	ID          string                 `json:"id"`
	OperationID string                 `json:"operation_id"`
	Status      JobStatus              `json:"status"`
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Request     OperationRequest       `json:"request"`
	Result      *OperationResponse     `json:"result,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (j *Job) clone() *Job {
	c := *j
	if j.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// JobStore interface for job persistence
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	Transition(id string, from, to JobStatus, message string) (*Job, error)
	ListJobs(filter JobFilter) ([]*Job, error)
	DeleteJob(id string) error
}

// JobFilter for querying jobs
type JobFilter struct {
	Status  JobStatus
	Dataset string
	Since   time.Time
	Limit   int
}

// JobQueue runs operations asynchronously on a fixed pool of workers
type JobQueue struct {
	jobs     chan string
	workers  int
	wg       sync.WaitGroup
	store    JobStore
	manager  *Manager
	logger   *slog.Logger
	shutdown chan struct{}
	stopOnce sync.Once
}

// NewJobQueue creates a new job queue
func NewJobQueue(workers int, store JobStore, manager *Manager, logger *slog.Logger) *JobQueue {
	if workers <= 0 {
		workers = 2
	}
	return &JobQueue{
		jobs:     make(chan string, workers*16),
		workers:  workers,
		store:    store,
		manager:  manager,
		logger:   infrastructure.WithComponent(logger, "jobqueue"),
		shutdown: make(chan struct{}),
	}
}

// Start begins processing jobs
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.Info("starting job queue", slog.Int("workers", q.workers))
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop signals workers to exit and waits up to timeout for running jobs
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.stopOnce.Do(func() { close(q.shutdown) })

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		q.logger.Warn("job queue stop timeout exceeded")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// Enqueue records a pending job for req and queues it. The returned job
// carries the assigned job and operation IDs.
func (q *JobQueue) Enqueue(req OperationRequest, traceID string) (*Job, error) {
	if req.ID == "" {
		req.ID = NewOperationID()
	}
	job := &Job{
		ID:          "job-" + uuid.New().String(),
		OperationID: req.ID,
		Status:      JobStatusPending,
		Message:     "Job queued",
		CreatedAt:   time.Now(),
		Request:     req,
		Metadata:    map[string]interface{}{"trace_id": traceID},
	}
	if err := q.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if steps, err := q.manager.GetRegistry().GetDependencyOrder(); err == nil {
		q.manager.GetBroadcaster().CreateOperation(job.OperationID, req.Dataset, steps)
	}

	select {
	case q.jobs <- job.ID:
		q.logger.Info("job enqueued",
			slog.String("job_id", job.ID),
			slog.String("operation_id", job.OperationID),
			slog.String("dataset", req.Dataset))
		return job.clone(), nil
	default:
		job.Status = JobStatusFailed
		job.Error = "job queue is full"
		now := time.Now()
		job.CompletedAt = &now
		_ = q.store.UpdateJob(job)
		q.manager.GetBroadcaster().FailOperation(job.OperationID, fmt.Errorf("job queue is full"))
		return nil, fmt.Errorf("job queue is full")
	}
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// ListJobs returns jobs matching the filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

// CancelJob cancels a pending or running job
func (q *JobQueue) CancelJob(id string) error {
	job, err := q.store.GetJob(id)
	if err != nil {
		return err
	}

	switch job.Status {
	case JobStatusPending:
		cancelled, err := q.store.Transition(id, JobStatusPending, JobStatusCancelled, "Job cancelled before start")
		if err != nil {
			if GetErrorType(err) == ErrorTypeNotFound {
				return err
			}
			// a worker claimed the job first
			return q.CancelJob(id)
		}
		q.manager.GetBroadcaster().CancelOperation(cancelled.OperationID)
		return nil
	case JobStatusRunning:
		return q.manager.CancelOperation(job.OperationID)
	default:
		return NewValidationError("", fmt.Sprintf("job %s cannot be cancelled (status: %s)", id, job.Status))
	}
}

func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()
	logger := q.logger.With(slog.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.shutdown:
			return
		case id := <-q.jobs:
			q.processJob(ctx, id, logger)
		}
	}
}

func (q *JobQueue) processJob(ctx context.Context, id string, logger *slog.Logger) {
	job, err := q.store.GetJob(id)
	if err != nil {
		logger.Error("queued job disappeared", slog.String("job_id", id))
		return
	}
	if job.Status != JobStatusPending {
		logger.Debug("skipping job", slog.String("job_id", id), slog.String("status", string(job.Status)))
		return
	}
	// claim the job; a cancel may have landed since the read
	job, err = q.store.Transition(id, JobStatusPending, JobStatusRunning, "Job started")
	if err != nil {
		logger.Debug("skipping job", slog.String("job_id", id), slog.String("reason", err.Error()))
		return
	}

	if traceID, ok := job.Metadata["trace_id"].(string); ok && traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, traceID)
	}
	logger = logger.With(slog.String("job_id", job.ID), slog.String("operation_id", job.OperationID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job processing panicked", slog.Any("panic", r))
			q.finish(job, JobStatusFailed, nil, fmt.Errorf("job processing panicked: %v", r), logger)
		}
	}()

	logger.InfoContext(ctx, "processing job started")

	resp, err := q.manager.Execute(ctx, job.Request)
	switch {
	case err == nil:
		q.finish(job, JobStatusCompleted, resp, nil, logger)
	case IsCancellation(err):
		q.finish(job, JobStatusCancelled, resp, err, logger)
	default:
		q.finish(job, JobStatusFailed, resp, err, logger)
	}
}

func (q *JobQueue) finish(job *Job, status JobStatus, resp *OperationResponse, err error, logger *slog.Logger) {
	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	job.Result = resp
	job.Message = "Job " + string(status)
	if err != nil {
		job.Error = err.Error()
	}
	if uerr := q.store.UpdateJob(job); uerr != nil {
		logger.Error("failed to update job", slog.String("error", uerr.Error()))
	}
	logger.Info("processing job finished", slog.String("status", string(status)))
}

// GetQueueStats returns queue statistics
func (q *JobQueue) GetQueueStats() map[string]interface{} {
	return map[string]interface{}{
		"workers":    q.workers,
		"queue_size": len(q.jobs),
		"queue_cap":  cap(q.jobs),
	}
}
