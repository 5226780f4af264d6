package http

import (
	"context"

	"tabtweak/internal/operations"
	"tabtweak/internal/services"
)

// OperationServiceInterface defines the interface for operations service
type OperationServiceInterface interface {
	StartOperation(ctx context.Context, req operations.OperationRequest) (*operations.Job, error)
	ExecuteOperation(ctx context.Context, req operations.OperationRequest) (*operations.OperationResponse, error)
	GetJob(ctx context.Context, id string) (*operations.Job, error)
	ListJobs(ctx context.Context, filter operations.JobFilter) ([]*operations.Job, error)
	CancelJob(ctx context.Context, id string) error
	GetSnapshot(ctx context.Context, operationID string) (*operations.OperationSnapshot, error)
	Steps() ([]services.StepInfo, error)
	GetOperationMetrics(ctx context.Context) map[string]interface{}
}
