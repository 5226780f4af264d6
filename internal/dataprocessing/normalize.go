package dataprocessing

import (
	"sort"
	"strings"
	"unicode"

	"tabtweak/pkg/contracts/domain"
)

// DefaultTrimTrailing is stripped from the end of raw names unless a dataset overrides it
const DefaultTrimTrailing = "."

// Normalizer turns raw column names into identifiers safe for field-style access
type Normalizer struct {
	trimTrailing string
}

// NewNormalizer creates a normalizer from dataset options
func NewNormalizer(opts domain.NormalizeOptions) *Normalizer {
	trim := DefaultTrimTrailing
	if opts.TrimTrailing != nil {
		trim = *opts.TrimTrailing
	}
	return &Normalizer{trimTrailing: trim}
}

// Normalize trims surrounding whitespace and trailing designated punctuation,
// then replaces each internal whitespace run and each remaining punctuation
// rune with a single underscore. Normalize(Normalize(s)) == Normalize(s).
func (n *Normalizer) Normalize(name string) string {
	s := n.trimRight(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		if r != '_' && unicode.IsPunct(r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}

	return n.trimRight(b.String())
}

func (n *Normalizer) trimRight(s string) string {
	if n.trimTrailing == "" {
		return s
	}
	for {
		trimmed := strings.TrimRightFunc(strings.TrimRight(s, n.trimTrailing), unicode.IsSpace)
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

// NormalizeColumns renames every column of t. Two raw names that collapse to
// the same identifier are a configuration error; columns are never merged.
func (n *Normalizer) NormalizeColumns(t *domain.Table) (*domain.Table, error) {
	groups := make(map[string][]string, t.Width())
	for _, raw := range t.Names() {
		norm := n.Normalize(raw)
		groups[norm] = append(groups[norm], raw)
	}

	collisions := make([]string, 0)
	for norm, raws := range groups {
		if len(raws) > 1 {
			collisions = append(collisions, norm)
		}
	}
	if len(collisions) > 0 {
		sort.Strings(collisions)
		return nil, collisionError(collisions[0], groups[collisions[0]])
	}
	if raws, ok := groups[""]; ok {
		return nil, invalidRuleError(StepNormalize, "column %q normalizes to an empty name", raws[0])
	}

	columns := t.Columns()
	for i, col := range columns {
		columns[i] = col.Renamed(n.Normalize(col.Name))
	}
	return domain.NewTable(columns...)
}
