package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tabtweak/pkg/contracts/domain"
)

const TracerName = "tabtweak.pipeline"

// Step names, in execution order
const (
	StepNormalize = "normalize"
	StepRecode    = "recode"
	StepCoerce    = "coerce"
	StepDerive    = "derive"
	StepDrop      = "drop"
)

// Step is one stage of the tweak pipeline. Apply must not mutate its input.
type Step interface {
	Name() string
	Apply(ctx context.Context, t *domain.Table) (*domain.Table, error)
}

type stepFunc struct {
	name string
	fn   func(ctx context.Context, t *domain.Table) (*domain.Table, error)
}

func (s stepFunc) Name() string { return s.name }

func (s stepFunc) Apply(ctx context.Context, t *domain.Table) (*domain.Table, error) {
	return s.fn(ctx, t)
}

// Pipeline runs its steps in a fixed order over a table
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
	tracer trace.Tracer
}

// NewPipeline builds the five step pipeline described by spec:
// normalize, recode, coerce, derive, drop.
func NewPipeline(spec domain.TweakSpec, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	normalizer := NewNormalizer(spec.Normalize)

	steps := []Step{
		stepFunc{StepNormalize, func(_ context.Context, t *domain.Table) (*domain.Table, error) {
			return normalizer.NormalizeColumns(t)
		}},
		stepFunc{StepRecode, func(_ context.Context, t *domain.Table) (*domain.Table, error) {
			return Recode(t, spec.Recode)
		}},
		stepFunc{StepCoerce, func(ctx context.Context, t *domain.Table) (*domain.Table, error) {
			return Coerce(ctx, t, spec.Coerce)
		}},
		stepFunc{StepDerive, func(ctx context.Context, t *domain.Table) (*domain.Table, error) {
			return Derive(ctx, t, spec.Derive, spec.Parallelism)
		}},
		stepFunc{StepDrop, func(_ context.Context, t *domain.Table) (*domain.Table, error) {
			return Drop(t, spec.Drop)
		}},
	}

	return &Pipeline{
		steps:  steps,
		logger: logger.With(slog.String("component", "pipeline")),
		tracer: otel.Tracer(TracerName),
	}
}

// Steps returns the step names in execution order
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Run applies every step in order. Either all steps succeed and the final
// table is returned, or the first error is returned with no table.
func (p *Pipeline) Run(ctx context.Context, t *domain.Table) (*domain.Table, error) {
	if t == nil {
		return nil, fmt.Errorf("tweak: nil table")
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.Int("table.rows", t.Rows()),
			attribute.Int("table.columns", t.Width()),
		),
	)
	defer span.End()

	rows := t.Rows()
	out := t
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		next, err := p.runStep(ctx, step, out)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if next.Rows() != rows {
			err := fmt.Errorf("tweak: step %s changed row count from %d to %d", step.Name(), rows, next.Rows())
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = next
	}

	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step, t *domain.Table) (*domain.Table, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.step."+step.Name())
	defer span.End()

	start := time.Now()
	out, err := step.Apply(ctx, t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.ErrorContext(ctx, "tweak step failed",
			slog.String("step", step.Name()),
			slog.String("error", err.Error()))
		return nil, err
	}

	span.SetAttributes(attribute.Int("table.columns", out.Width()))
	p.logger.DebugContext(ctx, "tweak step complete",
		slog.String("step", step.Name()),
		slog.Int("columns", out.Width()),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

// Tweak runs the pipeline described by spec over t
func Tweak(ctx context.Context, t *domain.Table, spec domain.TweakSpec) (*domain.Table, error) {
	return NewPipeline(spec, nil).Run(ctx, t)
}

// Drop removes the named columns. Naming a column that does not exist is a
// configuration error.
func Drop(t *domain.Table, names []string) (*domain.Table, error) {
	for _, name := range names {
		if !t.Has(name) {
			return nil, missingColumnError(StepDrop, name)
		}
	}
	return t.Without(names...), nil
}
