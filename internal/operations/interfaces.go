package operations

import (
	"context"

	"tabtweak/pkg/contracts/domain"
)

// WebSocketHub interface for sending WebSocket messages
type WebSocketHub interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
}

// DatasetLoader resolves dataset definitions and reads their raw tables
type DatasetLoader interface {
	Dataset(name string) (domain.DatasetSpec, error)
	// LoadRaw reads the untweaked table. A non-empty input replaces the
	// dataset source.
	LoadRaw(ctx context.Context, spec domain.DatasetSpec, input string) (*domain.Table, error)
}

// TableExporter writes a table to a report file and returns its full path
type TableExporter interface {
	Export(path string, t *domain.Table, bom bool) (string, error)
}
