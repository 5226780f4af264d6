package http

import (
	"context"

	"tabtweak/internal/files"
	"tabtweak/internal/services"
	"tabtweak/pkg/contracts/domain"
)

// DataServiceInterface defines the dataset operations the handlers need
type DataServiceInterface interface {
	Datasets(ctx context.Context) []services.DatasetInfo
	InputFiles(ctx context.Context) ([]files.FileInfo, error)
	Dataset(name string) (domain.DatasetSpec, error)
	Tweaked(ctx context.Context, name string) (*domain.Table, bool, error)
	Invalidate(name string)
	Describe(ctx context.Context, name string) (domain.TableDescription, error)
	Corr(ctx context.Context, name, x, y string) (domain.Correlation, error)
	Pivot(ctx context.Context, name string, req services.PivotRequest) (*domain.Table, error)
	Resample(ctx context.Context, name string, req services.ResampleRequest) (*domain.Table, error)
}
