package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tabtweak/internal/infrastructure"
	"tabtweak/internal/operations"
)

// OperationService runs tweak operations, synchronously or through the job queue
type OperationService struct {
	manager *operations.Manager
	queue   *operations.JobQueue
	store   *operations.MemoryJobStore
	logger  *slog.Logger
}

// StepInfo describes a registered operation step
type StepInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Dependencies []string `json:"dependencies,omitempty"`
	Timeout      string   `json:"timeout"`
}

// NewOperationService registers the load, tweak and export steps on a new
// manager and prepares a job queue with the given number of workers.
func NewOperationService(hub operations.WebSocketHub, loader operations.DatasetLoader, exporter operations.TableExporter, workers int, logger *slog.Logger) (*OperationService, error) {
	logger = infrastructure.WithComponent(logger, "operation_service")

	manager := operations.NewManager(hub, nil, nil, logger)
	if err := operations.RegisterTweakSteps(manager.GetRegistry(), loader, exporter, logger); err != nil {
		return nil, fmt.Errorf("failed to register steps: %w", err)
	}

	store := operations.NewMemoryJobStore()
	logger.Info("operation service initialized",
		slog.Int("steps", manager.GetRegistry().Count()),
		slog.Int("workers", workers))

	return &OperationService{
		manager: manager,
		queue:   operations.NewJobQueue(workers, store, manager, logger),
		store:   store,
		logger:  logger,
	}, nil
}

// SetMetrics enables operation metrics
func (s *OperationService) SetMetrics(metrics *infrastructure.TweakMetrics) {
	s.manager.SetMetrics(metrics)
}

// Start starts the job queue workers
func (s *OperationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits up to timeout for running jobs
func (s *OperationService) Stop(timeout time.Duration) error {
	return s.queue.Stop(timeout)
}

// StartOperation queues req and returns the pending job
func (s *OperationService) StartOperation(ctx context.Context, req operations.OperationRequest) (*operations.Job, error) {
	job, err := s.queue.Enqueue(req, infrastructure.GetTraceID(ctx))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to queue operation",
			slog.String("dataset", req.Dataset),
			slog.String("error", err.Error()))
		return nil, err
	}
	return job, nil
}

// ExecuteOperation runs req and waits for the outcome
func (s *OperationService) ExecuteOperation(ctx context.Context, req operations.OperationRequest) (*operations.OperationResponse, error) {
	return s.manager.Execute(ctx, req)
}

// GetJob returns a job by ID
func (s *OperationService) GetJob(ctx context.Context, id string) (*operations.Job, error) {
	return s.queue.GetJob(id)
}

// ListJobs returns jobs matching filter, newest first
func (s *OperationService) ListJobs(ctx context.Context, filter operations.JobFilter) ([]*operations.Job, error) {
	return s.queue.ListJobs(filter)
}

// CancelJob cancels a pending or running job
func (s *OperationService) CancelJob(ctx context.Context, id string) error {
	if err := s.queue.CancelJob(id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "job cancellation requested", slog.String("job_id", id))
	return nil
}

// GetSnapshot returns the latest broadcast state of an operation
func (s *OperationService) GetSnapshot(ctx context.Context, operationID string) (*operations.OperationSnapshot, error) {
	snapshot, ok := s.manager.GetBroadcaster().GetSnapshot(operationID)
	if !ok {
		return nil, operations.NewNotFoundError("operation", operationID)
	}
	return snapshot, nil
}

// ActiveOperations returns the number of operations currently executing
func (s *OperationService) ActiveOperations() int {
	return len(s.manager.ListOperations())
}

// Steps describes the registered steps in execution order
func (s *OperationService) Steps() ([]StepInfo, error) {
	steps, err := s.manager.GetRegistry().GetDependencyOrder()
	if err != nil {
		return nil, err
	}
	infos := make([]StepInfo, 0, len(steps))
	for _, step := range steps {
		infos = append(infos, StepInfo{
			ID:           step.ID(),
			Name:         step.Name(),
			Dependencies: step.GetDependencies(),
			Timeout:      s.manager.GetConfig().GetStepTimeout(step.ID()).String(),
		})
	}
	return infos, nil
}

// Cleanup forgets finished jobs and operation snapshots older than maxAge
func (s *OperationService) Cleanup(maxAge time.Duration) int {
	jobs := s.store.CleanupOldJobs(maxAge)
	snapshots := s.manager.GetBroadcaster().CleanupOldOperations(maxAge)
	if jobs > 0 || snapshots > 0 {
		s.logger.Info("old operations cleaned up",
			slog.Int("jobs", jobs),
			slog.Int("snapshots", snapshots))
	}
	return jobs
}

// GetOperationMetrics returns job and queue counters
func (s *OperationService) GetOperationMetrics(ctx context.Context) map[string]interface{} {
	metrics := map[string]interface{}{
		"active_operations": s.ActiveOperations(),
		"queue":             s.queue.GetQueueStats(),
	}
	for status, count := range s.store.GetStats() {
		metrics[status] = count
	}
	return metrics
}
