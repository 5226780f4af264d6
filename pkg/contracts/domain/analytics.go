package domain

import (
	"time"
)

// ColumnSummary holds descriptive statistics for one numeric column.
// Std is the sample standard deviation.
type ColumnSummary struct {
	Column string   `json:"column"`
	Kind   string   `json:"kind"`
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean"`
	Std    *float64 `json:"std"`
	Min    *float64 `json:"min"`
	P25    *float64 `json:"p25"`
	P50    *float64 `json:"p50"`
	P75    *float64 `json:"p75"`
	Max    *float64 `json:"max"`
}

// TableDescription summarizes every numeric column of a table
type TableDescription struct {
	Dataset     string          `json:"dataset,omitempty"`
	Rows        int             `json:"rows"`
	Columns     []ColumnSummary `json:"columns"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Correlation is a pairwise-complete Pearson coefficient
type Correlation struct {
	X           string   `json:"x"`
	Y           string   `json:"y"`
	Pairs       int      `json:"pairs"`
	Coefficient *float64 `json:"coefficient"`
}

// TimePart extracts a calendar component from a timestamp column
type TimePart string

const (
	PartNone    TimePart = ""
	PartYear    TimePart = "year"
	PartMonth   TimePart = "month"
	PartDay     TimePart = "day"
	PartWeekday TimePart = "weekday"
)

// GroupKey is one grouping dimension: a column, optionally through a time part
type GroupKey struct {
	Column string   `json:"column" yaml:"column" validate:"required"`
	Part   TimePart `json:"part,omitempty" yaml:"part" validate:"omitempty,oneof=year month day weekday"`
	// As names the output key column. Defaults to the part, or the column.
	As string `json:"as,omitempty" yaml:"as"`
}

// AggFunc names a group aggregation
type AggFunc string

const (
	AggMax   AggFunc = "max"
	AggMin   AggFunc = "min"
	AggMean  AggFunc = "mean"
	AggSum   AggFunc = "sum"
	AggCount AggFunc = "count"
	AggSize  AggFunc = "size"
)

// Aggregation applies one function to one value column
type Aggregation struct {
	Column string  `json:"column" yaml:"column" validate:"required"`
	Func   AggFunc `json:"func" yaml:"func" validate:"required,oneof=max min mean sum count size"`
}

// Frequency is a resampling bin width
type Frequency string

const (
	FreqDay   Frequency = "day"
	FreqWeek  Frequency = "week"
	FreqMonth Frequency = "month"
	FreqYear  Frequency = "year"
)

// CompareOp is a filter comparison
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Predicate selects rows where Column (optionally through Part) compares to Value
type Predicate struct {
	Column string    `json:"column" yaml:"column" validate:"required"`
	Part   TimePart  `json:"part,omitempty" yaml:"part"`
	Op     CompareOp `json:"op" yaml:"op" validate:"required"`
	Value  string    `json:"value" yaml:"value"`
}
