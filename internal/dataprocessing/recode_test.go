package dataprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabtweak/pkg/contracts/domain"
)

func TestRecode(t *testing.T) {
	tests := []struct {
		name string
		col  domain.Column
		rule domain.RecodeRule
		want domain.Column
	}{
		{
			name: "sentinel to substitute",
			col:  textCol("PrecipitationIn", "0.1", "T", "0.3", nil),
			rule: domain.RecodeRule{Column: "PrecipitationIn", Match: "T", Replace: strPtr("0.001")},
			want: textCol("PrecipitationIn", "0.1", "0.001", "0.3", nil),
		},
		{
			name: "sentinel to missing",
			col:  textCol("x", "a", "-", "b"),
			rule: domain.RecodeRule{Column: "x", Match: "-"},
			want: textCol("x", "a", nil, "b"),
		},
		{
			name: "fill missing text",
			col:  textCol("Events", "Rain", nil, "Fog-Rain", nil),
			rule: domain.RecodeRule{Column: "Events", MatchMissing: true, Replace: strPtr("")},
			want: textCol("Events", "Rain", "", "Fog-Rain", ""),
		},
		{
			name: "numeric sentinel",
			col:  numCol("humidity", 80.5, -99, 70, nil),
			rule: domain.RecodeRule{Column: "humidity", Match: "-99"},
			want: numCol("humidity", 80.5, nil, 70, nil),
		},
		{
			name: "numeric missing to zero",
			col:  numCol("rain", 1, nil),
			rule: domain.RecodeRule{Column: "rain", MatchMissing: true, Replace: strPtr("0")},
			want: numCol("rain", 1, 0),
		},
		{
			name: "non numeric sentinel cannot occur in numeric column",
			col:  numCol("PrecipitationIn", 0.1, 0.2),
			rule: domain.RecodeRule{Column: "PrecipitationIn", Match: "T", Replace: strPtr("0.001")},
			want: numCol("PrecipitationIn", 0.1, 0.2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := domain.MustTable(tt.col)
			before := in.Clone()

			out, err := Recode(in, []domain.RecodeRule{tt.rule})
			require.NoError(t, err)

			assert.Empty(t, diffTables(domain.MustTable(tt.want), out))
			assert.Empty(t, diffTables(before, in), "input must not change")
		})
	}
}

func TestRecode_OnlySentinelCellsChange(t *testing.T) {
	in := domain.MustTable(textCol("v", "T", "1", "T ", "t", nil, "T"))
	out, err := Recode(in, []domain.RecodeRule{{Column: "v", Match: "T", Replace: strPtr("0.001")}})
	require.NoError(t, err)

	col := column(t, out, "v")
	orig := column(t, in, "v")
	for i := 0; i < in.Rows(); i++ {
		if orig.Mask()[i] && orig.TextAt(i) == "T" {
			assert.Equal(t, "0.001", col.TextAt(i))
			continue
		}
		assert.Equal(t, orig.Mask()[i], col.Mask()[i], "row %d", i)
		assert.Equal(t, orig.TextAt(i), col.TextAt(i), "row %d", i)
	}
}

func TestRecode_Errors(t *testing.T) {
	t.Run("missing column", func(t *testing.T) {
		_, err := Recode(domain.MustTable(numCol("n", 1)), []domain.RecodeRule{{Column: "absent", Match: "x"}})
		assertConfigError(t, err, ErrMissingColumn)
	})

	t.Run("numeric replacement required", func(t *testing.T) {
		_, err := Recode(domain.MustTable(numCol("n", 1)), []domain.RecodeRule{{Column: "n", Match: "1", Replace: strPtr("one")}})
		assertConfigError(t, err, ErrInvalidRule)
	})

	t.Run("timestamp column", func(t *testing.T) {
		ts := domain.MustTable(domain.NewTimestampColumn("ts", nil, nil))
		_, err := Recode(ts, []domain.RecodeRule{{Column: "ts", Match: "x"}})
		assertConfigError(t, err, ErrInvalidRule)
	})
}
