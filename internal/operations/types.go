package operations

import (
	"time"
)

// Step identifiers of a tweak run
const (
	StepIDLoad   = "load"
	StepIDTweak  = "tweak"
	StepIDExport = "export"
)

// Step display names
const (
	StepNameLoad   = "Load Dataset"
	StepNameTweak  = "Tweak Table"
	StepNameExport = "Export Table"
)

// Context keys for values passed between steps
const (
	ContextKeySpec       = "spec"
	ContextKeyRawTable   = "raw_table"
	ContextKeyTable      = "table"
	ContextKeyOutputPath = "output_path"
)

// WebSocket event types
const (
	EventTypeOperationSnapshot = "operation:snapshot"
)

// Default timeouts
const (
	DefaultStepTimeout   = 30 * time.Minute
	DefaultExportTimeout = 10 * time.Minute
)

// RetryConfig defines retry behavior for steps
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationRequest asks for one dataset to be loaded, tweaked and exported.
// Validation tags use the request validator registered by the HTTP layer.
type OperationRequest struct {
	ID      string `json:"id,omitempty"`
	Dataset string `json:"dataset" validate:"required,dataset"`
	// Input overrides the dataset source with a file in the input directory.
	Input string `json:"input,omitempty" validate:"omitempty,filename"`
	// Output names the export file in the reports directory. The extension
	// picks the format and defaults to "<dataset>-clean.csv".
	Output string `json:"output,omitempty" validate:"omitempty,filename"`
	BOM    bool   `json:"bom,omitempty"`
}

// OutputName returns the export file name for the request
func (r OperationRequest) OutputName() string {
	if r.Output != "" {
		return r.Output
	}
	return r.Dataset + "-clean.csv"
}

// OperationResponse is the outcome of an executed operation
type OperationResponse struct {
	ID         string                `json:"id"`
	Status     OperationStatusValue  `json:"status"`
	Duration   time.Duration         `json:"duration"`
	Steps      map[string]*StepState `json:"steps"`
	OutputPath string                `json:"output_path,omitempty"`
	Rows       int                   `json:"rows,omitempty"`
	Error      string                `json:"error,omitempty"`
}
