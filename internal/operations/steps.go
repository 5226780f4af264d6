package operations

import (
	"context"
	"fmt"
	"log/slog"

	"tabtweak/internal/dataprocessing"
	apperrors "tabtweak/internal/errors"
	"tabtweak/pkg/contracts/domain"
)

// LoadStep resolves the requested dataset and reads its raw table
type LoadStep struct {
	BaseStage
	loader DatasetLoader
}

// NewLoadStep creates the load step
func NewLoadStep(loader DatasetLoader) *LoadStep {
	return &LoadStep{BaseStage: NewBaseStage(StepIDLoad, StepNameLoad, nil), loader: loader}
}

// Validate requires a dataset name
func (s *LoadStep) Validate(state *OperationState) error {
	if state.Request.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}
	return nil
}

// Execute reads the raw table into the operation context
func (s *LoadStep) Execute(ctx context.Context, state *OperationState) error {
	spec, err := s.loader.Dataset(state.Request.Dataset)
	if err != nil {
		return err
	}
	raw, err := s.loader.LoadRaw(ctx, spec, state.Request.Input)
	if err != nil {
		return NewExecutionError(s.ID(), err, apperrors.IsType(err, apperrors.ErrTypeStorage))
	}

	state.SetContext(ContextKeySpec, spec)
	state.SetContext(ContextKeyRawTable, raw)
	if step := state.GetStage(s.ID()); step != nil {
		step.SetMetadata("rows", raw.Rows())
		step.SetMetadata("columns", raw.Width())
	}
	return nil
}

// TweakStep runs the normalize, recode, coerce, derive and drop pipeline
type TweakStep struct {
	BaseStage
	logger *slog.Logger
}

// NewTweakStep creates the tweak step
func NewTweakStep(logger *slog.Logger) *TweakStep {
	return &TweakStep{
		BaseStage: NewBaseStage(StepIDTweak, StepNameTweak, []string{StepIDLoad}),
		logger:    logger,
	}
}

// Validate requires the raw table and spec from the load step
func (s *TweakStep) Validate(state *OperationState) error {
	if _, ok := state.GetContext(ContextKeyRawTable); !ok {
		return fmt.Errorf("no raw table loaded")
	}
	if _, ok := state.GetContext(ContextKeySpec); !ok {
		return fmt.Errorf("no dataset definition loaded")
	}
	return nil
}

// Execute tweaks the raw table
func (s *TweakStep) Execute(ctx context.Context, state *OperationState) error {
	rawVal, _ := state.GetContext(ContextKeyRawTable)
	specVal, _ := state.GetContext(ContextKeySpec)
	raw := rawVal.(*domain.Table)
	spec := specVal.(domain.DatasetSpec)

	out, err := dataprocessing.NewPipeline(spec.Tweak, s.logger).Run(ctx, raw)
	if err != nil {
		return err
	}
	state.SetContext(ContextKeyTable, out)
	if step := state.GetStage(s.ID()); step != nil {
		step.SetMetadata("columns", out.Names())
	}
	return nil
}

// ExportStep writes the tweaked table to the reports directory
type ExportStep struct {
	BaseStage
	exporter TableExporter
}

// NewExportStep creates the export step
func NewExportStep(exporter TableExporter) *ExportStep {
	return &ExportStep{
		BaseStage: NewBaseStage(StepIDExport, StepNameExport, []string{StepIDTweak}),
		exporter:  exporter,
	}
}

// Validate requires the tweaked table
func (s *ExportStep) Validate(state *OperationState) error {
	if _, ok := state.GetContext(ContextKeyTable); !ok {
		return fmt.Errorf("no tweaked table")
	}
	return nil
}

// Execute exports the table. Write failures are retried.
func (s *ExportStep) Execute(ctx context.Context, state *OperationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tableVal, _ := state.GetContext(ContextKeyTable)
	path, err := s.exporter.Export(state.Request.OutputName(), tableVal.(*domain.Table), state.Request.BOM)
	if err != nil {
		return NewExecutionError(s.ID(), err, true)
	}
	state.SetContext(ContextKeyOutputPath, path)
	if step := state.GetStage(s.ID()); step != nil {
		step.SetMetadata("output_path", path)
	}
	return nil
}

// RegisterTweakSteps registers load, tweak and export on registry
func RegisterTweakSteps(registry *Registry, loader DatasetLoader, exporter TableExporter, logger *slog.Logger) error {
	for _, step := range []Step{NewLoadStep(loader), NewTweakStep(logger), NewExportStep(exporter)} {
		if err := registry.Register(step); err != nil {
			return err
		}
	}
	return nil
}
