package dataprocessing

import (
	"errors"
	"fmt"

	apperrors "tabtweak/internal/errors"
)

// Sentinel causes carried by pipeline configuration errors. Match with errors.Is.
var (
	ErrMissingColumn   = errors.New("missing column")
	ErrColumnCollision = errors.New("column name collision")
	ErrInvalidRule     = errors.New("invalid rule")
	ErrUnknownDataset  = errors.New("unknown dataset")
)

func missingColumnError(step, column string) error {
	return apperrors.NewConfigError(
		fmt.Sprintf("%s: column %q not found", step, column),
		ErrMissingColumn,
	).WithContext("column", column).WithContext("step", step)
}

func collisionError(normalized string, raw []string) error {
	return apperrors.NewConfigError(
		fmt.Sprintf("normalize: columns %q all normalize to %q", raw, normalized),
		ErrColumnCollision,
	).WithContext("column", normalized)
}

// UnknownDatasetError reports a dataset name with no definition
func UnknownDatasetError(name string) error {
	return apperrors.NewAppError(
		apperrors.ErrTypeNotFound,
		fmt.Sprintf("dataset %q is not defined", name),
		ErrUnknownDataset,
	).WithContext("dataset", name)
}

func invalidRuleError(step, format string, args ...any) error {
	return apperrors.NewConfigError(
		fmt.Sprintf("%s: %s", step, fmt.Sprintf(format, args...)),
		ErrInvalidRule,
	).WithContext("step", step)
}
