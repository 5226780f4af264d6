package dataprocessing

import (
	"sort"

	"tabtweak/pkg/contracts/domain"
)

func strPtr(s string) *string { return &s }

// NinoColumns are the names of the header-less TAO buoy file, in file order
var NinoColumns = []string{
	"obs", "year", "month", "day", "date", "latitude", "longitude",
	"zon.winds", "mer.winds", "humidity", "air temp.", "s.s.temp.",
}

// NYCDataset is the Central Park daily weather preset
func NYCDataset() domain.DatasetSpec {
	return domain.DatasetSpec{
		Name:        "nyc",
		Description: "Central Park daily weather observations",
		Source:      "central-park-raw.csv",
		Tweak: domain.TweakSpec{
			Recode: []domain.RecodeRule{
				{Column: "PrecipitationIn", Match: "T", Replace: strPtr("0.001")},
				{Column: "Events", MatchMissing: true, Replace: strPtr("")},
			},
			Coerce: []domain.CoerceRule{
				{Column: "EST", To: domain.KindTimestamp},
				{Column: "PrecipitationIn", To: domain.KindNumeric},
			},
			Derive: []domain.DeriveRule{
				{Name: "PrecipitationCm", Op: domain.DeriveAffine, Source: "PrecipitationIn", Scale: 2.54},
			},
		},
	}
}

// NinoDataset is the TAO El Nino buoy preset
func NinoDataset() domain.DatasetSpec {
	return domain.DatasetSpec{
		Name:        "nino",
		Description: "TAO array buoy readings from the equatorial Pacific",
		Source:      "tao-all2.dat.gz",
		Read: domain.ReadOptions{
			Delimiter: "space",
			Names:     NinoColumns,
			NAValues:  []string{"."},
			Gzip:      true,
		},
		Tweak: domain.TweakSpec{
			Coerce: []domain.CoerceRule{
				{Column: "year_month_day", To: domain.KindTimestamp, Sources: []string{"year", "month", "day"}},
				{Column: "date", To: domain.KindTimestamp, Layout: "%y%m%d"},
			},
			Derive: []domain.DeriveRule{
				{Name: "air_temp_F", Op: domain.DeriveAffine, Source: "air_temp", Scale: 9.0 / 5.0, Offset: 32},
				{Name: "zon_winds_mph", Op: domain.DeriveRatio, Source: "zon_winds", Divisor: 2.237},
				{Name: "mer_winds_mph", Op: domain.DeriveRatio, Source: "mer_winds", Divisor: 2.237},
			},
			Drop: []string{"obs"},
		},
	}
}

// Presets returns the built-in datasets keyed by name
func Presets() map[string]domain.DatasetSpec {
	return map[string]domain.DatasetSpec{
		"nyc":  NYCDataset(),
		"nino": NinoDataset(),
	}
}

// Preset looks up a built-in dataset by name
func Preset(name string) (domain.DatasetSpec, error) {
	spec, ok := Presets()[name]
	if !ok {
		return domain.DatasetSpec{}, UnknownDatasetError(name)
	}
	return spec, nil
}

// PresetNames returns the built-in dataset names in sorted order
func PresetNames() []string {
	names := make([]string, 0, 2)
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
