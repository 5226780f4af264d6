package dataprocessing

import (
	"tabtweak/pkg/contracts/domain"
)

// Processor transforms a table into a new table
type Processor interface {
	Process(t *domain.Table) (*domain.Table, error)
}

// FillStrategy selects how missing cells are filled
type FillStrategy string

const (
	// FillMean replaces missing cells with the column mean
	FillMean FillStrategy = "mean"
	// FillForward carries the last present value forward
	FillForward FillStrategy = "ffill"
	// FillBackward carries the next present value backward
	FillBackward FillStrategy = "bfill"
	// FillInterpolate fills gaps linearly by row position
	FillInterpolate FillStrategy = "interpolate"
	// FillValue replaces missing cells with a constant
	FillValue FillStrategy = "value"
)

// FillRule fills one column
type FillRule struct {
	Column   string       `yaml:"column" json:"column" validate:"required"`
	Strategy FillStrategy `yaml:"strategy" json:"strategy" validate:"required,oneof=mean ffill bfill interpolate value"`
	Value    string       `yaml:"value" json:"value,omitempty"`
	// Limit caps consecutive fills for ffill and bfill. Zero means no limit.
	Limit int `yaml:"limit" json:"limit,omitempty" validate:"min=0"`
}
