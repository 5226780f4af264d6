package services

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"tabtweak/internal/config"
	"tabtweak/internal/dataprocessing"
	apperrors "tabtweak/internal/errors"
	"tabtweak/internal/files"
	"tabtweak/internal/infrastructure"
	"tabtweak/pkg/contracts/domain"
	"tabtweak/pkg/contracts/events"
)

// EventPublisher receives dataset events. The WebSocket hub implements it.
type EventPublisher interface {
	BroadcastUpdate(eventType, subject, status string, data interface{})
}

// DatasetInfo describes a registered dataset and its input file
type DatasetInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Source      string           `json:"source"`
	Available   bool             `json:"available"`
	File        *files.FileInfo  `json:"file,omitempty"`
	Tweak       domain.TweakSpec `json:"tweak"`
}

// PivotRequest groups a tweaked table, optionally after filtering rows
type PivotRequest struct {
	Keys    []domain.GroupKey    `json:"keys" validate:"required,min=1,dive"`
	Aggs    []domain.Aggregation `json:"aggs" validate:"required,min=1,dive"`
	Filters []string             `json:"filters,omitempty"`
}

// ResampleRequest bins a tweaked table by a timestamp column
type ResampleRequest struct {
	TimeColumn string               `json:"time_column" validate:"required"`
	Freq       domain.Frequency     `json:"freq" validate:"required,oneof=day week month year"`
	Aggs       []domain.Aggregation `json:"aggs" validate:"required,min=1,dive"`
}

// DataService resolves datasets, reads and tweaks their tables and answers
// analytical queries over the tweaked result. Tweaked tables are cached.
type DataService struct {
	paths       *config.Paths
	datasets    map[string]domain.DatasetSpec
	maxInput    int64
	parallelism int
	cacheTTL    time.Duration

	cache      *ristretto.Cache[string, *domain.Table]
	discovery  *files.Discovery
	analyzer   *dataprocessing.TableAnalyzer
	summarizer *dataprocessing.Summarizer

	publisher EventPublisher
	metrics   *infrastructure.TweakMetrics
	logger    *slog.Logger
}

// NewDataService builds the dataset registry from the presets and the
// optional datasets file, and sizes the table cache from cfg.
func NewDataService(cfg *config.Config, paths *config.Paths, logger *slog.Logger) (*DataService, error) {
	logger = infrastructure.WithComponent(logger, "data_service")

	datasets := dataprocessing.Presets()
	if cfg.Data.DatasetsFile != "" {
		specs, err := dataprocessing.LoadDatasetSpecs(cfg.Data.DatasetsFile)
		if err != nil {
			return nil, err
		}
		for _, spec := range specs {
			datasets[spec.Name] = spec
		}
	}

	maxCost := int64(cfg.Data.CacheSize.Bytes())
	if maxCost <= 0 {
		maxCost = int64(config.DefaultCacheSize.Bytes())
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *domain.Table]{
		NumCounters: 1e4,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, apperrors.NewConfigError("failed to create table cache", err)
	}

	logger.Info("data service initialized",
		slog.Int("datasets", len(datasets)),
		slog.String("input_dir", paths.InputDir),
		slog.String("cache_size", cfg.Data.CacheSize.HumanReadable()))

	return &DataService{
		paths:       paths,
		datasets:    datasets,
		maxInput:    int64(cfg.Data.MaxInputSize.Bytes()),
		parallelism: cfg.Data.Parallelism,
		cacheTTL:    cfg.Data.CacheTTL,
		cache:       cache,
		discovery:   files.NewDiscovery(paths.BaseDir),
		analyzer:    dataprocessing.NewTableAnalyzer(logger),
		summarizer:  dataprocessing.NewSummarizer(logger, dataprocessing.DefaultSummarizerConfig()),
		logger:      logger,
	}, nil
}

// SetMetrics enables pipeline and cache metrics
func (ds *DataService) SetMetrics(metrics *infrastructure.TweakMetrics) {
	ds.metrics = metrics
}

// SetPublisher sets where dataset events are sent
func (ds *DataService) SetPublisher(p EventPublisher) {
	ds.publisher = p
}

// Close releases the cache
func (ds *DataService) Close() {
	ds.cache.Close()
}

// Datasets returns every registered dataset, sorted by name
func (ds *DataService) Datasets(ctx context.Context) []DatasetInfo {
	names := make([]string, 0, len(ds.datasets))
	for name := range ds.datasets {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]DatasetInfo, 0, len(names))
	for _, name := range names {
		spec := ds.datasets[name]
		info := DatasetInfo{
			Name:        spec.Name,
			Description: spec.Description,
			Source:      spec.Source,
			Tweak:       spec.Tweak,
		}
		if fi, err := files.Stat(ds.paths.GetInputPath(spec.Source)); err == nil {
			info.Available = true
			info.File = &fi
		}
		infos = append(infos, info)
	}
	ds.logger.DebugContext(ctx, "datasets listed", slog.Int("count", len(infos)))
	return infos
}

// InputFiles lists the readable files in the input directory
func (ds *DataService) InputFiles(ctx context.Context) ([]files.FileInfo, error) {
	found, err := ds.discovery.FindDataFiles(ds.paths.InputDir)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list input files", err)
	}
	return found, nil
}

// Dataset looks up a dataset definition by name
func (ds *DataService) Dataset(name string) (domain.DatasetSpec, error) {
	spec, ok := ds.datasets[name]
	if !ok {
		return domain.DatasetSpec{}, dataprocessing.UnknownDatasetError(name)
	}
	return spec, nil
}

// LoadRaw reads the untweaked table of spec. A non-empty input names a file
// in the input directory that replaces the dataset source.
func (ds *DataService) LoadRaw(ctx context.Context, spec domain.DatasetSpec, input string) (*domain.Table, error) {
	source := spec.Source
	if input != "" {
		source = input
	}
	path := ds.paths.GetInputPath(source)

	opts := []dataprocessing.ReaderOption{dataprocessing.WithLogger(ds.logger)}
	if ds.maxInput > 0 {
		opts = append(opts, dataprocessing.WithMaxBytes(ds.maxInput))
	}
	return dataprocessing.ReadFile(ctx, path, spec.Read, opts...)
}

// Tweak runs the tweak pipeline of spec over raw and records pipeline metrics
func (ds *DataService) Tweak(ctx context.Context, spec domain.DatasetSpec, raw *domain.Table) (*domain.Table, error) {
	tweak := spec.Tweak
	if tweak.Parallelism == 0 {
		tweak.Parallelism = ds.parallelism
	}

	start := time.Now()
	out, err := dataprocessing.NewPipeline(tweak, ds.logger).Run(ctx, raw)
	if ds.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("dataset", spec.Name), infrastructure.StatusAttr(err))
		ds.metrics.PipelineRuns.Add(ctx, 1, attrs)
		ds.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		if err == nil {
			ds.metrics.PipelineRows.Add(ctx, int64(out.Rows()), metric.WithAttributes(attribute.String("dataset", spec.Name)))
		}
	}
	return out, err
}

// Tweaked returns the tweaked table of the named dataset, reading and
// tweaking it on a cache miss. The bool reports a cache hit.
func (ds *DataService) Tweaked(ctx context.Context, name string) (*domain.Table, bool, error) {
	spec, err := ds.Dataset(name)
	if err != nil {
		return nil, false, err
	}

	if t, ok := ds.cache.Get(name); ok {
		ds.recordCache(ctx, name, true)
		return t, true, nil
	}
	ds.recordCache(ctx, name, false)

	raw, err := ds.LoadRaw(ctx, spec, "")
	if err != nil {
		return nil, false, err
	}
	out, err := ds.Tweak(ctx, spec, raw)
	if err != nil {
		return nil, false, err
	}

	ds.cache.SetWithTTL(name, out, tableCost(out), ds.cacheTTL)
	ds.cache.Wait()

	ds.logger.InfoContext(ctx, "dataset tweaked",
		slog.String("dataset", name),
		slog.Int("rows", out.Rows()),
		slog.Int("columns", out.Width()))
	ds.publish(name, out, false)
	return out, false, nil
}

// Invalidate drops the cached table of the named dataset
func (ds *DataService) Invalidate(name string) {
	ds.cache.Del(name)
}

// Describe summarizes the numeric columns of the tweaked dataset
func (ds *DataService) Describe(ctx context.Context, name string) (domain.TableDescription, error) {
	t, _, err := ds.Tweaked(ctx, name)
	if err != nil {
		return domain.TableDescription{}, err
	}
	desc := ds.summarizer.Describe(ctx, t)
	desc.Dataset = name
	return desc, nil
}

// Corr correlates two columns of the tweaked dataset
func (ds *DataService) Corr(ctx context.Context, name, x, y string) (domain.Correlation, error) {
	t, _, err := ds.Tweaked(ctx, name)
	if err != nil {
		return domain.Correlation{}, err
	}
	return ds.analyzer.Corr(t, x, y)
}

// Pivot filters the tweaked dataset and groups it
func (ds *DataService) Pivot(ctx context.Context, name string, req PivotRequest) (*domain.Table, error) {
	t, _, err := ds.Tweaked(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(req.Filters) > 0 {
		preds := make([]domain.Predicate, 0, len(req.Filters))
		for _, expr := range req.Filters {
			pred, err := dataprocessing.ParsePredicate(expr)
			if err != nil {
				return nil, err
			}
			preds = append(preds, pred)
		}
		if t, err = ds.analyzer.Filter(ctx, t, preds...); err != nil {
			return nil, err
		}
	}
	return ds.analyzer.GroupBy(ctx, t, req.Keys, req.Aggs)
}

// Resample bins the tweaked dataset by period
func (ds *DataService) Resample(ctx context.Context, name string, req ResampleRequest) (*domain.Table, error) {
	t, _, err := ds.Tweaked(ctx, name)
	if err != nil {
		return nil, err
	}
	return ds.analyzer.Resample(ctx, t, req.TimeColumn, req.Freq, req.Aggs)
}

func (ds *DataService) recordCache(ctx context.Context, name string, hit bool) {
	if ds.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("dataset", name))
	if hit {
		ds.metrics.CacheHits.Add(ctx, 1, attrs)
	} else {
		ds.metrics.CacheMisses.Add(ctx, 1, attrs)
	}
}

func (ds *DataService) publish(name string, t *domain.Table, cached bool) {
	if ds.publisher == nil {
		return
	}
	ds.publisher.BroadcastUpdate(string(events.TypeDatasetTweaked), name, "completed", events.DatasetTweakedData{
		Dataset: name,
		Rows:    t.Rows(),
		Columns: t.Names(),
		Cached:  cached,
	})
}

// tableCost approximates the memory held by t in bytes
func tableCost(t *domain.Table) int64 {
	var cost int64
	for _, col := range t.Columns() {
		per := int64(9) // value plus validity flag
		switch col.Kind {
		case domain.KindText:
			per = 17
			for _, s := range col.Texts() {
				cost += int64(len(s))
			}
		case domain.KindTimestamp:
			per = 25
		}
		cost += per * int64(col.Len())
	}
	if cost == 0 {
		cost = 1
	}
	return cost
}
