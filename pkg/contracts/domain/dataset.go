package domain

// DatasetSpec describes one dataset: where it comes from, how to read it and
// how to tweak it.
type DatasetSpec struct {
	Name        string      `yaml:"name" json:"name" validate:"required,max=64,excludesall=/\\"`
	Description string      `yaml:"description" json:"description,omitempty"`
	Source      string      `yaml:"source" json:"source" validate:"required"`
	Read        ReadOptions `yaml:"read" json:"read"`
	Tweak       TweakSpec   `yaml:"tweak" json:"tweak"`
}

// ReadOptions controls how raw text is materialized into a table
type ReadOptions struct {
	// Delimiter is a single character. "space" and "tab" are accepted aliases,
	// and "whitespace" splits on runs of blanks the way header-less .dat files are laid out.
	Delimiter string `yaml:"delimiter" json:"delimiter,omitempty"`
	// Names supplies column names for header-less files.
	Names []string `yaml:"names" json:"names,omitempty" validate:"omitempty,dive,required"`
	// NAValues are raw tokens read as the missing marker. Empty cells are always missing.
	NAValues []string `yaml:"na_values" json:"na_values,omitempty"`
	// Gzip forces gzip decoding; files ending in .gz are decoded regardless.
	Gzip bool `yaml:"gzip" json:"gzip,omitempty"`
	// Sheet selects the worksheet for .xlsx input. Defaults to the first sheet.
	Sheet string `yaml:"sheet" json:"sheet,omitempty"`
	// NoInference keeps every column as text.
	NoInference bool `yaml:"no_inference" json:"no_inference,omitempty"`
}

// TweakSpec is the per-dataset configuration of the tweak pipeline
type TweakSpec struct {
	Normalize   NormalizeOptions `yaml:"normalize" json:"normalize"`
	Recode      []RecodeRule     `yaml:"recode" json:"recode,omitempty" validate:"dive"`
	Coerce      []CoerceRule     `yaml:"coerce" json:"coerce,omitempty" validate:"dive"`
	Derive      []DeriveRule     `yaml:"derive" json:"derive,omitempty" validate:"dive"`
	Drop        []string         `yaml:"drop" json:"drop,omitempty" validate:"dive,required"`
	Parallelism int              `yaml:"parallelism" json:"parallelism,omitempty" validate:"min=0"`
}

// NormalizeOptions controls column name normalization
type NormalizeOptions struct {
	// TrimTrailing lists characters stripped from the end of a name before
	// replacement. Nil means ".".
	TrimTrailing *string `yaml:"trim_trailing" json:"trim_trailing,omitempty"`
}

// RecodeRule maps a raw sentinel token to the missing marker or a substitute.
type RecodeRule struct {
	Column string `yaml:"column" json:"column" validate:"required"`
	// Match is the sentinel token compared against each cell.
	Match string `yaml:"match" json:"match,omitempty" validate:"required_without=MatchMissing"`
	// MatchMissing targets cells that already hold the missing marker.
	MatchMissing bool `yaml:"match_missing" json:"match_missing,omitempty"`
	// Replace is the substitute value; nil recodes to the missing marker.
	Replace *string `yaml:"replace" json:"replace,omitempty"`
}

// CoerceRule converts a column to a target kind
type CoerceRule struct {
	Column string     `yaml:"column" json:"column" validate:"required"`
	To     ColumnKind `yaml:"to" json:"to" validate:"required,oneof=numeric text timestamp"`
	// Layout is a strftime style format such as "%y%m%d". Empty auto-detects.
	Layout string `yaml:"layout" json:"layout,omitempty"`
	// Sources combines year, month and day columns into a new timestamp column named Column.
	Sources []string `yaml:"sources" json:"sources,omitempty" validate:"omitempty,len=3,dive,required"`
}

// DeriveOp names a derivation
type DeriveOp string

const (
	DeriveAffine   DeriveOp = "affine"
	DeriveRatio    DeriveOp = "ratio"
	DeriveConstant DeriveOp = "constant"
)

// DeriveRule defines a new column as a pure function of existing columns
type DeriveRule struct {
	Name   string   `yaml:"name" json:"name" validate:"required"`
	Op     DeriveOp `yaml:"op" json:"op" validate:"required,oneof=affine ratio constant"`
	Source string   `yaml:"source" json:"source,omitempty" validate:"required_unless=Op constant"`
	// Scale and Offset drive affine: y = Scale*x + Offset.
	Scale  float64 `yaml:"scale" json:"scale,omitempty"`
	Offset float64 `yaml:"offset" json:"offset,omitempty"`
	// Divisor drives ratio: y = x / Divisor.
	Divisor float64 `yaml:"divisor" json:"divisor,omitempty" validate:"required_if=Op ratio"`
	// Value is the constant cell for op constant. Numeric when it parses as a number.
	Value string `yaml:"value" json:"value,omitempty"`
}
