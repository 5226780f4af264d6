package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tabtweak/internal/infrastructure"
	"tabtweak/pkg/contracts/domain"
)

// Manager orchestrates operation execution
type Manager struct {
	registry    *Registry
	config      *Config
	broadcaster *StatusBroadcaster
	tracer      *OperationTracer
	logger      *slog.Logger

	mu      sync.RWMutex
	running map[string]*runningOperation
}

type runningOperation struct {
	state  *OperationState
	cancel context.CancelFunc
}

// NewManager creates a new operation manager
func NewManager(hub WebSocketHub, registry *Registry, config *Config, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	logger = infrastructure.WithComponent(logger, "operations_manager")

	return &Manager{
		registry:    registry,
		config:      config,
		broadcaster: NewStatusBroadcaster(hub, logger),
		tracer:      NewOperationTracer(nil),
		logger:      logger,
		running:     make(map[string]*runningOperation),
	}
}

// SetMetrics enables operation metrics
func (m *Manager) SetMetrics(metrics *infrastructure.TweakMetrics) {
	m.tracer = NewOperationTracer(metrics)
}

// RegisterStage registers a step with the manager
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// GetRegistry returns the registry for accessing registered steps
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetBroadcaster returns the status broadcaster
func (m *Manager) GetBroadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// NewOperationID returns a fresh operation identifier
func NewOperationID() string {
	return "op-" + uuid.New().String()
}

// Execute runs every registered step in dependency order for req
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationResponse, error) {
	if req.ID == "" {
		req.ID = NewOperationID()
	}
	logger := m.logger.With(slog.String("operation_id", req.ID), slog.String("dataset", req.Dataset))

	state := NewOperationState(req.ID, req)
	steps, err := m.registry.GetDependencyOrder()
	if err != nil {
		err = NewFatalError("failed to order steps", err)
		state.Fail(err)
		m.broadcaster.FailOperation(req.ID, err)
		return m.createResponse(state), err
	}
	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}
	m.broadcaster.CreateOperation(req.ID, req.Dataset, steps)

	ctx, cancel := context.WithCancel(ctx)
	m.store(req.ID, &runningOperation{state: state, cancel: cancel})
	defer func() {
		cancel()
		m.remove(req.ID)
	}()

	ctx, span := m.tracer.TraceOperation(ctx, req.ID, req.Dataset)
	logger.InfoContext(ctx, "operation_started", slog.Int("step_count", len(steps)))

	state.Start()
	m.broadcaster.StartOperation(req.ID)

	err = m.executeSequential(ctx, state, steps, logger)
	switch {
	case err == nil:
		state.Complete()
		m.broadcaster.CompleteOperation(req.ID, "Operation completed successfully")
		logger.InfoContext(ctx, "operation_completed", slog.Duration("duration", state.Duration()))
	case IsCancellation(err):
		state.Cancel()
		m.broadcaster.CancelOperation(req.ID)
		logger.WarnContext(ctx, "operation_cancelled")
	default:
		state.Fail(err)
		m.broadcaster.FailOperation(req.ID, err)
		logger.ErrorContext(ctx, "operation_failed", slog.String("error", err.Error()))
	}
	m.tracer.EndOperation(ctx, span, req.Dataset, state.Duration(), err)

	return m.createResponse(state), err
}

// executeSequential runs steps one by one. After the first failure the
// remaining steps are skipped.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step, logger *slog.Logger) error {
	for i, step := range steps {
		if ctx.Err() != nil {
			m.skipSteps(state, steps[i:], "operation cancelled")
			return NewCancellationError(step.ID())
		}

		logger.InfoContext(ctx, "executing_stage",
			slog.String("step", step.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(steps)))

		if err := m.executeStage(ctx, state, step, logger); err != nil {
			m.skipSteps(state, steps[i+1:], fmt.Sprintf("Previous step %s did not complete", step.ID()))
			return err
		}
	}
	return nil
}

// executeStage executes a single step with retry logic
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step, logger *slog.Logger) error {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		return NewFatalError("step state not found", nil)
	}

	if err := m.checkDependencies(state, step); err != nil {
		stepState.Skip(err.Error())
		m.broadcaster.SkipStep(state.ID, step.ID(), err.Error())
		return NewValidationError(step.ID(), err.Error())
	}
	if err := step.Validate(state); err != nil {
		logger.WarnContext(ctx, "validation_failed",
			slog.String("step", step.ID()),
			slog.String("error", err.Error()))
		stepState.Skip(fmt.Sprintf("Validation failed: %v", err))
		m.broadcaster.SkipStep(state.ID, step.ID(), fmt.Sprintf("Validation failed: %v", err))
		return NewValidationError(step.ID(), err.Error())
	}

	timeout := m.config.GetStepTimeout(step.ID())
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retry := m.config.RetryConfig
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		stepState.Start()
		m.broadcaster.UpdateStepProgress(state.ID, step.ID(), 1, fmt.Sprintf("%s started", step.Name()))

		attemptCtx, span := m.tracer.TraceStep(stepCtx, state.ID, step.ID(), attempt)
		start := time.Now()
		err := step.Execute(attemptCtx, state)
		m.tracer.EndStep(span, err)

		if err == nil {
			stepState.Complete()
			m.broadcaster.CompleteStep(state.ID, step.ID(), fmt.Sprintf("%s completed", step.Name()), stepState.clone().Metadata)
			logger.InfoContext(ctx, "stage_completed",
				slog.String("step", step.ID()),
				slog.Duration("duration", time.Since(start)))
			return nil
		}

		switch {
		case ctx.Err() != nil:
			err = NewCancellationError(step.ID())
		case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
			err = NewTimeoutError(step.ID(), timeout.String())
		}

		logger.ErrorContext(ctx, "stage_execution_failed",
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		if !IsRetryable(err) || attempt >= retry.MaxAttempts {
			stepState.Fail(err)
			m.broadcaster.FailStep(state.ID, step.ID(), err)
			return err
		}

		delay := retry.retryDelay(attempt)
		logger.WarnContext(ctx, "stage_retry",
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-stepCtx.Done():
			if ctx.Err() != nil {
				err = NewCancellationError(step.ID())
			} else {
				err = NewTimeoutError(step.ID(), timeout.String())
			}
			stepState.Fail(err)
			m.broadcaster.FailStep(state.ID, step.ID(), err)
			return err
		}
	}
}

// checkDependencies verifies that all dependencies completed
func (m *Manager) checkDependencies(state *OperationState, step Step) error {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			return fmt.Errorf("dependency %s not found", dep)
		}
		if status := depState.GetStatus(); status != StepStatusCompleted {
			return fmt.Errorf("dependency %s not completed (status: %s)", dep, status)
		}
	}
	return nil
}

func (m *Manager) skipSteps(state *OperationState, steps []Step, reason string) {
	for _, step := range steps {
		if s := state.GetStage(step.ID()); s != nil && s.GetStatus() == StepStatusPending {
			s.Skip(reason)
			m.broadcaster.SkipStep(state.ID, step.ID(), reason)
		}
	}
}

func (m *Manager) createResponse(state *OperationState) *OperationResponse {
	snapshot := state.Clone()
	resp := &OperationResponse{
		ID:       snapshot.ID,
		Status:   snapshot.Status,
		Duration: state.Duration(),
		Steps:    snapshot.Steps,
		Error:    snapshot.Error,
	}
	if v, ok := state.GetContext(ContextKeyOutputPath); ok {
		resp.OutputPath, _ = v.(string)
	}
	if v, ok := state.GetContext(ContextKeyTable); ok {
		if t, ok := v.(*domain.Table); ok {
			resp.Rows = t.Rows()
		}
	}
	return resp
}

// GetOperation retrieves the state of a running operation
func (m *Manager) GetOperation(id string) (*OperationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	op, exists := m.running[id]
	if !exists {
		return nil, NewNotFoundError("operation", id)
	}
	return op.state.Clone(), nil
}

// ListOperations returns all running operations
func (m *Manager) ListOperations() []*OperationState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := make([]*OperationState, 0, len(m.running))
	for _, op := range m.running {
		ops = append(ops, op.state.Clone())
	}
	return ops
}

// CancelOperation cancels a running operation. Execute observes the
// cancellation and records the final status.
func (m *Manager) CancelOperation(id string) error {
	m.mu.RLock()
	op, exists := m.running[id]
	m.mu.RUnlock()
	if !exists {
		return NewNotFoundError("operation", id)
	}
	op.cancel()
	return nil
}

func (m *Manager) store(id string, op *runningOperation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[id] = op
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, id)
}
