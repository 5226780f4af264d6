package dataprocessing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabtweak/pkg/contracts/domain"
)

func rawNYC() *domain.Table {
	return domain.MustTable(
		textCol("EST", "2000-1-1", "2000-1-2", "2000-1-3"),
		numCol("Max Humidity", 90, 85, nil),
		textCol("PrecipitationIn", "0.1", "T", "0.3"),
		textCol(" Events", "Rain", nil, "Fog-Rain"),
	)
}

func TestTweak_NYCScenario(t *testing.T) {
	in := rawNYC()
	before := in.Clone()

	out, err := Tweak(context.Background(), in, NYCDataset().Tweak)
	require.NoError(t, err)

	assert.Equal(t, []string{"EST", "Max_Humidity", "PrecipitationIn", "Events", "PrecipitationCm"}, out.Names())
	assert.Equal(t, in.Rows(), out.Rows())

	precipIn := column(t, out, "PrecipitationIn")
	require.Equal(t, domain.KindNumeric, precipIn.Kind)
	assert.Equal(t, []float64{0.1, 0.001, 0.3}, precipIn.Nums())

	precipCm := column(t, out, "PrecipitationCm")
	want := []float64{0.254, 0.00254, 0.762}
	for i, w := range want {
		assert.InDelta(t, w, precipCm.NumAt(i), 1e-12, "row %d", i)
	}

	events := column(t, out, "Events")
	assert.Equal(t, []string{"Rain", "", "Fog-Rain"}, events.Texts())
	assert.Equal(t, []bool{true, true, true}, events.Mask(), "missing events become empty strings")

	est := column(t, out, "EST")
	assert.Equal(t, domain.KindTimestamp, est.Kind)
	assert.True(t, date(2000, 1, 2).Equal(est.TimeAt(1)))

	assert.True(t, column(t, out, "Max_Humidity").IsMissing(2))
	assert.Empty(t, diffTables(before, in), "input must not change")
}

func TestTweak_PrecipitationNormalizedName(t *testing.T) {
	in := domain.MustTable(textCol("Precipitation In", "0.1", "T", "0.3"))
	spec := domain.TweakSpec{
		Recode: []domain.RecodeRule{{Column: "Precipitation_In", Match: "T", Replace: strPtr("0.001")}},
		Coerce: []domain.CoerceRule{{Column: "Precipitation_In", To: domain.KindNumeric}},
		Derive: []domain.DeriveRule{{Name: "PrecipitationCm", Op: domain.DeriveAffine, Source: "Precipitation_In", Scale: 2.54}},
	}

	out, err := Tweak(context.Background(), in, spec)
	require.NoError(t, err)

	assert.Equal(t, []float64{0.1, 0.001, 0.3}, column(t, out, "Precipitation_In").Nums())
	cm := column(t, out, "PrecipitationCm")
	assert.InDelta(t, 0.254, cm.NumAt(0), 1e-12)
	assert.InDelta(t, 0.00254, cm.NumAt(1), 1e-12)
	assert.InDelta(t, 0.762, cm.NumAt(2), 1e-12)
}

func rawNino() *domain.Table {
	return domain.MustTable(
		numCol("obs", 1, 2, 3),
		numCol("year", 99, 80, 98),
		numCol("month", 1, 3, 2),
		numCol("day", 15, 7, 30),
		numCol("date", 990115, 800307, 980230),
		numCol("latitude", -0.02, 0, 2),
		numCol("longitude", -109.46, -109.46, 165),
		numCol("zon.winds", -6.8, nil, 2.237),
		numCol("mer.winds", 0.7, 1.1, -2.237),
		numCol("humidity", nil, 80.2, 79),
		numCol("air temp.", 26.14, 25, nil),
		numCol("s.s.temp.", 26.24, 25.1, 28),
	)
}

func TestTweak_NinoScenario(t *testing.T) {
	spec := NinoDataset().Tweak
	spec.Parallelism = 3

	out, err := Tweak(context.Background(), rawNino(), spec)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"year", "month", "day", "date", "latitude", "longitude", "zon_winds", "mer_winds",
		"humidity", "air_temp", "s_s_temp", "year_month_day", "air_temp_F", "zon_winds_mph", "mer_winds_mph",
	}, out.Names())

	ymd := column(t, out, "year_month_day")
	assert.True(t, date(1999, 1, 15).Equal(ymd.TimeAt(0)))
	assert.True(t, date(1980, 3, 7).Equal(ymd.TimeAt(1)))
	assert.True(t, ymd.IsMissing(2), "Feb 30 is not a date")

	d := column(t, out, "date")
	assert.Equal(t, domain.KindTimestamp, d.Kind)
	assert.True(t, date(1999, 1, 15).Equal(d.TimeAt(0)))
	assert.True(t, d.IsMissing(2))

	f := column(t, out, "air_temp_F")
	assert.InDelta(t, 26.14*9/5+32, f.NumAt(0), 1e-9)
	assert.True(t, f.IsMissing(2))

	zon := column(t, out, "zon_winds_mph")
	assert.InDelta(t, -6.8/2.237, zon.NumAt(0), 1e-12)
	assert.True(t, zon.IsMissing(1))
	assert.InDelta(t, 1.0, zon.NumAt(2), 1e-12)
}

func TestTweak_CombinedDateScenario(t *testing.T) {
	in := domain.MustTable(numCol("year", 99), numCol("month", 1), numCol("day", 15))
	out, err := Tweak(context.Background(), in, domain.TweakSpec{
		Coerce: []domain.CoerceRule{{Column: "when", To: domain.KindTimestamp, Sources: []string{"year", "month", "day"}}},
	})
	require.NoError(t, err)
	assert.True(t, date(1999, 1, 15).Equal(column(t, out, "when").TimeAt(0)))
}

func TestTweak_Deterministic(t *testing.T) {
	spec := NYCDataset().Tweak
	first, err := Tweak(context.Background(), rawNYC(), spec)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		spec.Parallelism = i
		again, err := Tweak(context.Background(), rawNYC(), spec)
		require.NoError(t, err)
		assert.Empty(t, diffTables(first, again))
	}
}

func TestTweak_ErrorsReturnNoTable(t *testing.T) {
	tests := []struct {
		name  string
		in    *domain.Table
		spec  domain.TweakSpec
		cause error
	}{
		{
			name:  "recode names raw column",
			in:    domain.MustTable(textCol("Precipitation In", "T")),
			spec:  domain.TweakSpec{Recode: []domain.RecodeRule{{Column: "Precipitation In", Match: "T"}}},
			cause: ErrMissingColumn,
		},
		{
			name:  "collision",
			in:    domain.MustTable(textCol("a b", "1"), textCol("a_b", "2")),
			cause: ErrColumnCollision,
		},
		{
			name:  "derive from text",
			in:    domain.MustTable(textCol("x", "1")),
			spec:  domain.TweakSpec{Derive: []domain.DeriveRule{{Name: "y", Op: domain.DeriveAffine, Source: "x", Scale: 1}}},
			cause: ErrInvalidRule,
		},
		{
			name:  "drop absent column",
			in:    domain.MustTable(textCol("x", "1")),
			spec:  domain.TweakSpec{Drop: []string{"obs"}},
			cause: ErrMissingColumn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Tweak(context.Background(), tt.in, tt.spec)
			assert.Nil(t, out)
			assertConfigError(t, err, tt.cause)
		})
	}
}

func TestPipeline_StepOrder(t *testing.T) {
	p := NewPipeline(domain.TweakSpec{}, nil)
	assert.Equal(t, []string{StepNormalize, StepRecode, StepCoerce, StepDerive, StepDrop}, p.Steps())
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := NewPipeline(NYCDataset().Tweak, nil).Run(ctx, rawNYC())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreset(t *testing.T) {
	assert.Equal(t, []string{"nino", "nyc"}, PresetNames())

	spec, err := Preset("nino")
	require.NoError(t, err)
	assert.Equal(t, NinoColumns, spec.Read.Names)
	assert.NoError(t, ValidateDatasetSpec(spec))

	nyc, err := Preset("nyc")
	require.NoError(t, err)
	assert.NoError(t, ValidateDatasetSpec(nyc))

	_, err = Preset("iris")
	assert.ErrorIs(t, err, ErrUnknownDataset)
}
