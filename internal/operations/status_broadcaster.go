package operations

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// StatusBroadcaster is the single authority for operation status updates.
// It keeps one snapshot per operation and broadcasts the whole snapshot on
// every change.
type StatusBroadcaster struct {
	mu         sync.Mutex
	operations map[string]*OperationSnapshot
	hub        WebSocketHub
	logger     *slog.Logger
}

// OperationSnapshot represents the complete state of an operation at a point in time
type OperationSnapshot struct {
	OperationID string         `json:"operation_id"`
	Dataset     string         `json:"dataset,omitempty"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step,omitempty"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// StepSnapshot represents the state of a single step
type StepSnapshot struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewStatusBroadcaster creates a new status broadcaster. hub may be nil.
func NewStatusBroadcaster(hub WebSocketHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusBroadcaster{
		operations: make(map[string]*OperationSnapshot),
		hub:        hub,
		logger:     logger.With(slog.String("component", "status_broadcaster")),
	}
}

// UpdateStatus applies updateFunc to the operation snapshot, creating it
// when absent, and broadcasts the result
func (sb *StatusBroadcaster) UpdateStatus(operationID string, updateFunc func(*OperationSnapshot)) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	snapshot, exists := sb.operations[operationID]
	if !exists {
		now := time.Now()
		snapshot = &OperationSnapshot{
			OperationID: operationID,
			Status:      string(OperationStatusPending),
			StartedAt:   now,
			Steps:       []StepSnapshot{},
		}
		sb.operations[operationID] = snapshot
	}

	updateFunc(snapshot)
	snapshot.UpdatedAt = time.Now()

	if len(snapshot.Steps) > 0 {
		total := 0
		for _, step := range snapshot.Steps {
			total += step.Progress
		}
		snapshot.Progress = total / len(snapshot.Steps)
	}
	if OperationStatusValue(snapshot.Status).Terminal() && snapshot.CompletedAt == nil {
		now := time.Now()
		snapshot.CompletedAt = &now
	}

	sb.broadcast(snapshot)
}

func (sb *StatusBroadcaster) broadcast(snapshot *OperationSnapshot) {
	if sb.hub == nil {
		return
	}
	sb.logger.Debug("broadcasting operation snapshot",
		slog.String("operation_id", snapshot.OperationID),
		slog.String("status", snapshot.Status),
		slog.Int("progress", snapshot.Progress),
		slog.String("current_step", snapshot.CurrentStep),
	)
	sb.hub.BroadcastUpdate(EventTypeOperationSnapshot, snapshot.OperationID, snapshot.Status, snapshot.copy())
}

// CreateOperation initializes an operation with the given steps in order
func (sb *StatusBroadcaster) CreateOperation(operationID, dataset string, steps []Step) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusPending)
		snapshot.Dataset = dataset
		snapshot.Progress = 0
		snapshot.Steps = make([]StepSnapshot, len(steps))
		for i, step := range steps {
			snapshot.Steps[i] = StepSnapshot{
				ID:     step.ID(),
				Name:   step.Name(),
				Status: string(StepStatusPending),
			}
		}
		snapshot.Message = "Operation created"
	})
}

// StartOperation marks an operation as running
func (sb *StatusBroadcaster) StartOperation(operationID string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusRunning)
		snapshot.Message = "Operation started"
	})
}

// UpdateStepProgress updates a specific step's progress. Progress never
// moves backwards while the step is running.
func (sb *StatusBroadcaster) UpdateStepProgress(operationID, stepID string, progress int, message string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		step := snapshot.step(stepID)
		if step == nil {
			return
		}
		if progress > step.Progress || step.Status != string(StepStatusActive) {
			step.Progress = clamp(progress, 0, 100)
		}
		step.Message = message
		step.Status = string(StepStatusActive)
		snapshot.CurrentStep = step.Name
	})
}

// SkipStep marks a step as skipped
func (sb *StatusBroadcaster) SkipStep(operationID, stepID, reason string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		if step := snapshot.step(stepID); step != nil {
			step.Status = string(StepStatusSkipped)
			step.Message = reason
		}
	})
}

// CompleteStep marks a step as completed
func (sb *StatusBroadcaster) CompleteStep(operationID, stepID, message string, metadata map[string]interface{}) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		if step := snapshot.step(stepID); step != nil {
			step.Status = string(StepStatusCompleted)
			step.Progress = 100
			step.Message = message
			step.Metadata = metadata
		}
	})
}

// FailStep marks a step as failed
func (sb *StatusBroadcaster) FailStep(operationID, stepID string, err error) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		if step := snapshot.step(stepID); step != nil {
			step.Status = string(StepStatusFailed)
			step.Error = err.Error()
		}
	})
}

// CompleteOperation marks an operation as completed
func (sb *StatusBroadcaster) CompleteOperation(operationID, message string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusCompleted)
		snapshot.CurrentStep = ""
		snapshot.Message = message
	})
}

// FailOperation marks an operation as failed
func (sb *StatusBroadcaster) FailOperation(operationID string, err error) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusFailed)
		snapshot.Error = err.Error()
		snapshot.CurrentStep = ""
	})
}

// CancelOperation marks an operation as cancelled
func (sb *StatusBroadcaster) CancelOperation(operationID string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusCancelled)
		snapshot.CurrentStep = ""
		snapshot.Message = "Operation cancelled by user"
	})
}

// GetSnapshot returns a copy of the current snapshot for an operation
func (sb *StatusBroadcaster) GetSnapshot(operationID string) (*OperationSnapshot, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	snapshot, exists := sb.operations[operationID]
	if !exists {
		return nil, false
	}
	return snapshot.copy(), true
}

// GetAllSnapshots returns copies of all snapshots, newest first
func (sb *StatusBroadcaster) GetAllSnapshots() []*OperationSnapshot {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	snapshots := make([]*OperationSnapshot, 0, len(sb.operations))
	for _, snapshot := range sb.operations {
		snapshots = append(snapshots, snapshot.copy())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].StartedAt.After(snapshots[j].StartedAt)
	})
	return snapshots
}

// CleanupOldOperations removes finished operations older than maxAge and
// returns how many were removed
func (sb *StatusBroadcaster) CleanupOldOperations(maxAge time.Duration) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, snapshot := range sb.operations {
		if snapshot.CompletedAt != nil && now.Sub(*snapshot.CompletedAt) > maxAge {
			delete(sb.operations, id)
			removed++
		}
	}
	if removed > 0 {
		sb.logger.Info("cleaned up old operations", slog.Int("removed", removed))
	}
	return removed
}

func (s *OperationSnapshot) step(id string) *StepSnapshot {
	for i := range s.Steps {
		if s.Steps[i].ID == id {
			return &s.Steps[i]
		}
	}
	return nil
}

func (s *OperationSnapshot) copy() *OperationSnapshot {
	c := *s
	c.Steps = make([]StepSnapshot, len(s.Steps))
	copy(c.Steps, s.Steps)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
