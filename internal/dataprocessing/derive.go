package dataprocessing

import (
	"context"

	"golang.org/x/sync/errgroup"

	"tabtweak/pkg/contracts/domain"
)

// Derive appends one column per rule. Every rule reads the table as it was
// before any derivation ran, so rules cannot depend on each other and the
// result does not depend on evaluation order. With parallelism > 1 the rules
// are evaluated concurrently; output columns are still appended in rule order.
func Derive(ctx context.Context, t *domain.Table, rules []domain.DeriveRule, parallelism int) (*domain.Table, error) {
	if err := checkDeriveRules(t, rules); err != nil {
		return nil, err
	}

	derived := make([]domain.Column, len(rules))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism < 1 {
		parallelism = 1
	}
	g.SetLimit(parallelism)

	for i, rule := range rules {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			col, err := deriveColumn(t, rule)
			if err != nil {
				return err
			}
			derived[i] = col
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := t
	for _, col := range derived {
		var err error
		if out, err = out.With(col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func checkDeriveRules(t *domain.Table, rules []domain.DeriveRule) error {
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if rule.Name == "" {
			return invalidRuleError(StepDerive, "derived column needs a name")
		}
		if seen[rule.Name] {
			return invalidRuleError(StepDerive, "column %q is derived more than once", rule.Name)
		}
		if t.Has(rule.Name) {
			return invalidRuleError(StepDerive, "derived column %q would replace an existing column", rule.Name)
		}
		seen[rule.Name] = true
	}
	return nil
}

func deriveColumn(t *domain.Table, rule domain.DeriveRule) (domain.Column, error) {
	if rule.Op == domain.DeriveConstant {
		return constantColumn(rule.Name, rule.Value, t.Rows()), nil
	}

	src, ok := t.Column(rule.Source)
	if !ok {
		return domain.Column{}, missingColumnError(StepDerive, rule.Source)
	}
	if src.Kind != domain.KindNumeric {
		return domain.Column{}, invalidRuleError(StepDerive, "source %q of %q is a %s column; coerce it to numeric first", src.Name, rule.Name, src.Kind)
	}

	var fn func(float64) float64
	switch rule.Op {
	case domain.DeriveAffine:
		a, b := rule.Scale, rule.Offset
		fn = func(x float64) float64 { return a*x + b }
	case domain.DeriveRatio:
		if rule.Divisor == 0 {
			return domain.Column{}, invalidRuleError(StepDerive, "ratio for %q has a zero divisor", rule.Name)
		}
		k := rule.Divisor
		fn = func(x float64) float64 { return x / k }
	default:
		return domain.Column{}, invalidRuleError(StepDerive, "unknown op %q for %q", rule.Op, rule.Name)
	}

	values := make([]float64, src.Len())
	valid := src.Mask()
	for i, x := range src.Nums() {
		if valid[i] {
			values[i] = fn(x)
		}
	}
	return domain.NewNumericColumn(rule.Name, values, valid), nil
}

func constantColumn(name, value string, rows int) domain.Column {
	if v, ok := ParseNumber(value); ok {
		values := make([]float64, rows)
		for i := range values {
			values[i] = v
		}
		return domain.NewNumericColumn(name, values, nil)
	}
	values := make([]string, rows)
	for i := range values {
		values[i] = value
	}
	return domain.NewTextColumn(name, values, nil)
}
