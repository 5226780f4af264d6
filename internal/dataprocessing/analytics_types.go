package dataprocessing

import (
	"context"
	"strconv"
	"time"

	"tabtweak/pkg/contracts/domain"
)

// Analyzer answers read-only questions about a cleaned table
type Analyzer interface {
	Describe(ctx context.Context, t *domain.Table) domain.TableDescription
	Corr(t *domain.Table, x, y string) (domain.Correlation, error)
	GroupBy(ctx context.Context, t *domain.Table, keys []domain.GroupKey, aggs []domain.Aggregation) (*domain.Table, error)
	Resample(ctx context.Context, t *domain.Table, timeColumn string, freq domain.Frequency, aggs []domain.Aggregation) (*domain.Table, error)
	Filter(ctx context.Context, t *domain.Table, preds ...domain.Predicate) (*domain.Table, error)
}

// keyCell is one component of a group key
type keyCell struct {
	kind domain.ColumnKind
	num  float64
	text string
	time time.Time
}

func (k keyCell) less(o keyCell) bool {
	switch k.kind {
	case domain.KindNumeric:
		return k.num < o.num
	case domain.KindTimestamp:
		return k.time.Before(o.time)
	default:
		return k.text < o.text
	}
}

func (k keyCell) encode() string {
	switch k.kind {
	case domain.KindNumeric:
		return "n" + strconv.FormatFloat(k.num, 'g', -1, 64)
	case domain.KindTimestamp:
		return "t" + strconv.FormatInt(k.time.UnixNano(), 10)
	default:
		return "s" + k.text
	}
}

// group collects the row positions sharing one key
type group struct {
	key  []keyCell
	rows []int
}

func groupLess(a, b *group) bool {
	for i := range a.key {
		if a.key[i].less(b.key[i]) {
			return true
		}
		if b.key[i].less(a.key[i]) {
			return false
		}
	}
	return false
}
