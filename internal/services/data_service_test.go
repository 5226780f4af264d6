package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabtweak/internal/config"
	"tabtweak/internal/dataprocessing"
	apperrors "tabtweak/internal/errors"
	"tabtweak/internal/shared/testutil"
	"tabtweak/pkg/contracts/domain"
	"tabtweak/pkg/contracts/events"
)

type recordedEvent struct {
	eventType string
	subject   string
	data      interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) BroadcastUpdate(eventType, subject, status string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{eventType: eventType, subject: subject, data: data})
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newTestDataService(t *testing.T) (*DataService, *config.Paths) {
	t.Helper()
	paths := config.NewPaths(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())
	testutil.WriteDatasetFixtures(t, paths.InputDir)

	logger, _ := testutil.NewTestLogger(t)
	ds, err := NewDataService(config.Default(), paths, logger)
	require.NoError(t, err)
	t.Cleanup(ds.Close)
	return ds, paths
}

func TestDataService_Datasets(t *testing.T) {
	ds, paths := newTestDataService(t)
	require.NoError(t, os.Remove(paths.GetInputPath("tao-all2.dat.gz")))

	infos := ds.Datasets(context.Background())
	require.Len(t, infos, 2)

	assert.Equal(t, "nino", infos[0].Name)
	assert.False(t, infos[0].Available)
	assert.Nil(t, infos[0].File)

	assert.Equal(t, "nyc", infos[1].Name)
	assert.True(t, infos[1].Available)
	require.NotNil(t, infos[1].File)
	assert.Equal(t, int64(len(testutil.NYCSampleCSV)), infos[1].File.Size)
}

func TestDataService_DatasetsFile(t *testing.T) {
	paths := config.NewPaths(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())
	file := testutil.WriteFixture(t, paths.BaseDir, "datasets.yaml", `
datasets:
  - name: nyc
    description: overridden
    source: other.csv
  - name: extra
    source: extra.csv
`)

	cfg := config.Default()
	cfg.Data.DatasetsFile = file
	ds, err := NewDataService(cfg, paths, nil)
	require.NoError(t, err)
	defer ds.Close()

	nyc, err := ds.Dataset("nyc")
	require.NoError(t, err)
	assert.Equal(t, "other.csv", nyc.Source)

	_, err = ds.Dataset("extra")
	assert.NoError(t, err)
	_, err = ds.Dataset("nino")
	assert.NoError(t, err)
}

func TestDataService_UnknownDataset(t *testing.T) {
	ds, _ := newTestDataService(t)

	_, _, err := ds.Tweaked(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataprocessing.ErrUnknownDataset))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestDataService_TweakedCaches(t *testing.T) {
	ds, paths := newTestDataService(t)
	pub := &fakePublisher{}
	ds.SetPublisher(pub)
	ctx := context.Background()

	first, cached, err := ds.Tweaked(ctx, "nyc")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 6, first.Rows())
	assert.Contains(t, first.Names(), "PrecipitationCm")
	assert.Contains(t, first.Names(), "Mean_Humidity")

	// The cached table survives the source going away.
	require.NoError(t, os.Remove(paths.GetInputPath("central-park-raw.csv")))
	second, cached, err := ds.Tweaked(ctx, "nyc")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, first, second)

	require.Equal(t, 1, pub.count())
	ev := pub.events[0]
	assert.Equal(t, string(events.TypeDatasetTweaked), ev.eventType)
	assert.Equal(t, "nyc", ev.subject)
	data, ok := ev.data.(events.DatasetTweakedData)
	require.True(t, ok)
	assert.Equal(t, 6, data.Rows)

	ds.Invalidate("nyc")
	_, _, err = ds.Tweaked(ctx, "nyc")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestDataService_LoadRawInputOverride(t *testing.T) {
	ds, paths := newTestDataService(t)
	testutil.WriteFixture(t, paths.InputDir, "small.csv", "EST,Max TemperatureF\n2000-1-1,46\n")

	spec, err := ds.Dataset("nyc")
	require.NoError(t, err)

	raw, err := ds.LoadRaw(context.Background(), spec, "small.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, raw.Rows())
	assert.Equal(t, []string{"EST", "Max TemperatureF"}, raw.Names())
}

func TestDataService_MaxInputSize(t *testing.T) {
	paths := config.NewPaths(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())
	testutil.WriteDatasetFixtures(t, paths.InputDir)

	cfg := config.Default()
	cfg.Data.MaxInputSize = 32
	ds, err := NewDataService(cfg, paths, nil)
	require.NoError(t, err)
	defer ds.Close()

	_, _, err = ds.Tweaked(context.Background(), "nyc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataprocessing.ErrInputTooLarge))
}

func TestDataService_Describe(t *testing.T) {
	ds, _ := newTestDataService(t)

	desc, err := ds.Describe(context.Background(), "nyc")
	require.NoError(t, err)
	assert.Equal(t, "nyc", desc.Dataset)
	assert.Equal(t, 6, desc.Rows)

	var maxTemp *domain.ColumnSummary
	for i := range desc.Columns {
		if desc.Columns[i].Column == "Max_TemperatureF" {
			maxTemp = &desc.Columns[i]
		}
	}
	require.NotNil(t, maxTemp)
	assert.Equal(t, 6, maxTemp.Count)
	require.NotNil(t, maxTemp.Max)
	assert.Equal(t, 55.0, *maxTemp.Max)
	require.NotNil(t, maxTemp.Min)
	assert.Equal(t, 32.0, *maxTemp.Min)
}

func TestDataService_Corr(t *testing.T) {
	ds, _ := newTestDataService(t)

	c, err := ds.Corr(context.Background(), "nyc", "Max_TemperatureF", "Min_TemperatureF")
	require.NoError(t, err)
	assert.Equal(t, 6, c.Pairs)
	require.NotNil(t, c.Coefficient)
	assert.Greater(t, *c.Coefficient, 0.8)

	_, err = ds.Corr(context.Background(), "nyc", "Max_TemperatureF", "absent")
	assert.True(t, errors.Is(err, dataprocessing.ErrMissingColumn))
}

func TestDataService_Pivot(t *testing.T) {
	tests := []struct {
		name    string
		filters []string
		want    map[float64]float64
	}{
		{
			name: "all rows",
			want: map[float64]float64{2000: 46, 2001: 40},
		},
		{
			name:    "january only",
			filters: []string{"EST.month == 1"},
			want:    map[float64]float64{2000: 52, 2001: 40},
		},
		{
			name:    "one year",
			filters: []string{"EST.year >= 2001"},
			want:    map[float64]float64{2001: 40},
		},
	}

	ds, _ := newTestDataService(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ds.Pivot(context.Background(), "nyc", PivotRequest{
				Keys:    []domain.GroupKey{{Column: "EST", Part: domain.PartYear}},
				Aggs:    []domain.Aggregation{{Column: "Max_TemperatureF", Func: domain.AggMean}},
				Filters: tt.filters,
			})
			require.NoError(t, err)
			require.Equal(t, len(tt.want), out.Rows())

			years, ok := out.Column("year")
			require.True(t, ok)
			means, ok := out.Column("Max_TemperatureF_mean")
			require.True(t, ok)
			for i := 0; i < out.Rows(); i++ {
				year, _ := years.Float(i)
				mean, _ := means.Float(i)
				assert.InDelta(t, tt.want[year], mean, 1e-9, "year %v", year)
			}
		})
	}
}

func TestDataService_PivotBadFilter(t *testing.T) {
	ds, _ := newTestDataService(t)

	_, err := ds.Pivot(context.Background(), "nyc", PivotRequest{
		Keys:    []domain.GroupKey{{Column: "EST", Part: domain.PartYear}},
		Aggs:    []domain.Aggregation{{Column: "Max_TemperatureF", Func: domain.AggMax}},
		Filters: []string{"no operator here"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataprocessing.ErrInvalidRule))
}

func TestDataService_Resample(t *testing.T) {
	ds, _ := newTestDataService(t)

	out, err := ds.Resample(context.Background(), "nyc", ResampleRequest{
		TimeColumn: "EST",
		Freq:       domain.FreqYear,
		Aggs:       []domain.Aggregation{{Column: "Max_TemperatureF", Func: domain.AggMax}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Rows())

	maxes, ok := out.Column("Max_TemperatureF_max")
	require.True(t, ok)
	first, _ := maxes.Float(0)
	second, _ := maxes.Float(1)
	assert.Equal(t, 55.0, first)
	assert.Equal(t, 40.0, second)
}

func TestTableCost(t *testing.T) {
	tbl := domain.MustTable(
		domain.NewNumericColumn("n", []float64{1, 2}, nil),
		domain.NewTextColumn("s", []string{"ab", "c"}, nil),
	)
	assert.Equal(t, int64(2*9+2*17+3), tableCost(tbl))
	assert.Equal(t, int64(1), tableCost(domain.MustTable()))
}
