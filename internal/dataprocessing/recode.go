package dataprocessing

import (
	"strconv"
	"strings"

	"tabtweak/pkg/contracts/domain"
)

// Recode applies sentinel substitutions in rule order. Cells equal to a rule's
// sentinel (or already missing, for match_missing rules) become the missing
// marker or the rule's replacement; every other cell is left untouched.
func Recode(t *domain.Table, rules []domain.RecodeRule) (*domain.Table, error) {
	out := t
	for _, rule := range rules {
		col, ok := out.Column(rule.Column)
		if !ok {
			return nil, missingColumnError(StepRecode, rule.Column)
		}

		recoded, err := recodeColumn(col, rule)
		if err != nil {
			return nil, err
		}

		if out, err = out.With(recoded); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func recodeColumn(col domain.Column, rule domain.RecodeRule) (domain.Column, error) {
	switch col.Kind {
	case domain.KindText:
		return recodeText(col, rule), nil
	case domain.KindNumeric:
		return recodeNumeric(col, rule)
	default:
		return domain.Column{}, invalidRuleError(StepRecode, "column %q is a %s column; recode before coercion", col.Name, col.Kind)
	}
}

func recodeText(col domain.Column, rule domain.RecodeRule) domain.Column {
	out := col.Clone()
	for i := 0; i < col.Len(); i++ {
		if !matches(!col.IsMissing(i), col.TextAt(i) == rule.Match, rule) {
			continue
		}
		if rule.Replace == nil {
			out.Set(i, nil)
			continue
		}
		out.Set(i, *rule.Replace)
	}
	return out
}

func recodeNumeric(col domain.Column, rule domain.RecodeRule) (domain.Column, error) {
	var replacement float64
	if rule.Replace != nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(*rule.Replace), 64)
		if err != nil {
			return domain.Column{}, invalidRuleError(StepRecode, "replacement %q is not numeric but column %q is", *rule.Replace, col.Name)
		}
		replacement = v
	}

	var sentinel float64
	if !rule.MatchMissing {
		v, err := strconv.ParseFloat(strings.TrimSpace(rule.Match), 64)
		if err != nil {
			// a numeric column cannot hold a non-numeric token
			return col.Clone(), nil
		}
		sentinel = v
	}

	out := col.Clone()
	for i := 0; i < col.Len(); i++ {
		if !matches(!col.IsMissing(i), col.NumAt(i) == sentinel, rule) {
			continue
		}
		if rule.Replace == nil {
			out.Set(i, nil)
			continue
		}
		out.Set(i, replacement)
	}
	return out, nil
}

func matches(valid, equal bool, rule domain.RecodeRule) bool {
	if rule.MatchMissing {
		return !valid
	}
	return valid && equal
}
