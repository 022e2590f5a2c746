package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/forest-guardian/sundarbans-extraction/internal/cache"
	"github.com/forest-guardian/sundarbans-extraction/internal/extraction"
	"github.com/forest-guardian/sundarbans-extraction/internal/notification"
	"github.com/forest-guardian/sundarbans-extraction/internal/output"
	"github.com/forest-guardian/sundarbans-extraction/internal/properties"
	"github.com/forest-guardian/sundarbans-extraction/internal/region"
)

type Options struct {
	Range       extraction.DateRange
	WindowDays  int
	ExcludeTail bool
	Concurrency int
	Workers     int

	// Region is reduced over; nil falls back to DefaultRegion.
	Region        orb.Geometry
	DefaultRegion orb.Geometry

	OutputDir string
	Layout    output.Layout
	Charts    bool

	// CacheDir enables the reduction cache when set.
	CacheDir    string
	CacheMaxAge time.Duration

	// Progress receives one progress bar per dataset. Nil disables them.
	Progress io.Writer
}

// OptionsFromConfig turns the run settings into runner options. reg is the
// already resolved region, nil for the default.
func OptionsFromConfig(cfg *properties.Config, reg orb.Geometry) (Options, error) {
	rng, err := extraction.ParseDateRange(cfg.Run.StartDate, cfg.Run.EndDate)
	if err != nil {
		return Options{}, err
	}
	layout, err := output.ParseLayout(cfg.Run.Layout)
	if err != nil {
		return Options{}, err
	}

	opts := Options{
		Range:         rng,
		WindowDays:    cfg.Run.WindowDays,
		ExcludeTail:   cfg.Run.ExcludeTail,
		Concurrency:   cfg.Run.Concurrency,
		Workers:       cfg.Run.Workers,
		Region:        reg,
		DefaultRegion: region.Default(),
		OutputDir:     cfg.Path(cfg.Run.OutputDir),
		Layout:        layout,
		Charts:        cfg.Run.Charts,
	}
	if cfg.Cache.Enabled {
		opts.CacheDir = cfg.Path(cfg.Cache.Dir)
		opts.CacheMaxAge = cfg.Cache.MaxAge
	}
	return opts, nil
}

// Result describes one dataset of a run. Err holds the fail-soft error that
// left the table empty, if any.
type Result struct {
	Name        string
	Dataset     properties.Dataset
	Path        string
	Rows        int
	Unavailable int
	Err         error
}

type Runner struct {
	svc      extraction.Service
	opts     Options
	notifier *notification.Discord
	log      zerolog.Logger
	runID    string
}

func NewRunner(svc extraction.Service, opts Options, notifier *notification.Discord, log zerolog.Logger) *Runner {
	if opts.DefaultRegion == nil {
		opts.DefaultRegion = region.Default()
	}
	if opts.WindowDays == 0 {
		opts.WindowDays = extraction.DefaultWindowDays
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	runID := uuid.NewString()
	log = log.With().Str("run_id", runID).Logger()

	if opts.CacheDir != "" {
		store := cache.NewFileCache[map[string]*float64](opts.CacheDir, opts.CacheMaxAge)
		svc = extraction.NewCachedService(svc, store, log)
	}

	return &Runner{
		svc:      svc,
		opts:     opts,
		notifier: notifier,
		log:      log,
		runID:    runID,
	}
}

func (r *Runner) RunID() string {
	return r.runID
}

// Extract runs one dataset end to end and writes its table. Extraction and
// processing failures leave an empty table and are reported in Result.Err;
// only output and cancellation errors are returned.
func (r *Runner) Extract(ctx context.Context, name string, ds properties.Dataset) (Result, error) {
	log := r.log.With().Str("dataset", name).Logger()
	res := Result{
		Name:    name,
		Dataset: ds,
		Path:    filepath.Join(r.opts.OutputDir, ds.Output),
	}

	reg := r.opts.Region
	if reg == nil {
		reg = r.opts.DefaultRegion
	}

	start := time.Now()
	h, err := extraction.Open(ctx, r.svc, extraction.Query{
		Dataset: ds.Collection,
		Range:   r.opts.Range,
		Region:  reg,
		Band:    ds.Band,
		Bands:   ds.Bands,
		Scale:   ds.Scale,
	})
	if err != nil {
		log.Warn().Err(err).Msg("An error occurred while extracting data")
		res.Err = err
	}

	bar := r.progressBar(name)
	aggOpts := []extraction.Option{
		extraction.WithLogger(log),
		extraction.WithConcurrency(r.opts.Concurrency),
		extraction.WithExcludeTail(r.opts.ExcludeTail),
	}
	if bar != nil {
		aggOpts = append(aggOpts, extraction.WithProgress(func(extraction.Window) { bar.Add(1) }))
	}
	agg, err := extraction.NewAggregator(r.opts.DefaultRegion, aggOpts...)
	if err != nil {
		return res, err
	}

	rows, err := agg.Aggregate(ctx, h, r.opts.Range, r.opts.WindowDays, r.opts.Region, ds.Scale, ds.Band)
	if bar != nil {
		bar.Finish()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if err != nil && res.Err == nil {
		res.Err = err
	}

	if err := output.WriteFile(res.Path, rows, r.opts.Layout); err != nil {
		return res, err
	}
	res.Rows = len(rows)
	res.Unavailable = countUnavailable(rows)

	if r.opts.Charts && len(rows) > 0 {
		if err := r.writeCharts(res.Path, ds, rows); err != nil {
			return res, err
		}
	}

	log.Info().
		Str("path", res.Path).
		Int("rows", res.Rows).
		Int("unavailable", res.Unavailable).
		Dur("elapsed", time.Since(start)).
		Msg("Data saved")
	return res, nil
}

// Run extracts the given datasets on a worker pool and sends a notification
// with the outcome. Results are ordered by dataset name.
func (r *Runner) Run(ctx context.Context, datasets map[string]properties.Dataset) ([]Result, error) {
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	sort.Strings(names)

	r.log.Info().Strs("datasets", names).Str("range", r.opts.Range.String()).Msg("Starting extraction")

	var (
		mu      sync.Mutex
		results = make([]Result, len(names))
		errs    []error
	)

	wp := workerpool.New(r.opts.Workers)
	for i, name := range names {
		wp.Submit(func() {
			res, err := r.Extract(ctx, name, datasets[name])
			results[i] = res
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
		})
	}
	wp.StopWait()

	err := errors.Join(errs...)
	// A cancelled run still reports its failure.
	r.notify(context.WithoutCancel(ctx), results, err)
	return results, err
}

func (r *Runner) notify(ctx context.Context, results []Result, runErr error) {
	if !r.notifier.Enabled() {
		return
	}

	var sendErr error
	var failed []string
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", res.Name, res.Err))
		}
	}

	switch {
	case runErr != nil:
		sendErr = r.notifier.SendError(ctx, fmt.Sprintf("run %s: %v", r.runID, runErr))
	case len(failed) > 0:
		sendErr = r.notifier.SendWarn(ctx, fmt.Sprintf("run %s wrote empty tables for %d of %d datasets.\n%s", r.runID, len(failed), len(results), strings.Join(failed, "\n")))
	default:
		sendErr = r.notifier.SendSuccess(ctx, fmt.Sprintf("run %s wrote %d datasets.\n%s", r.runID, len(results), summary(results)))
	}
	if sendErr != nil {
		r.log.Warn().Err(sendErr).Msg("failed to send notification")
	}
}

func (r *Runner) progressBar(name string) *progressbar.ProgressBar {
	if r.opts.Progress == nil {
		return nil
	}
	total := len(r.opts.Range.Windows(r.opts.WindowDays, r.opts.ExcludeTail))
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.opts.Progress),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(r.opts.Progress) }),
	)
}

func (r *Runner) writeCharts(csvPath string, ds properties.Dataset, rows []extraction.Row) error {
	stem := strings.TrimSuffix(csvPath, filepath.Ext(csvPath))
	for _, column := range output.Columns(rows) {
		title := ds.Title
		if title == "" {
			title = ds.Collection
		}
		title = fmt.Sprintf("%s (%s)", title, column)

		if !hasValues(rows, column) {
			r.log.Warn().Str("column", column).Msg("chart skipped, no available values")
			continue
		}
		if err := output.WriteChart(stem+"_"+column+".png", title, rows, column); err != nil {
			return err
		}
	}
	return nil
}

func hasValues(rows []extraction.Row, column string) bool {
	for _, row := range rows {
		if row.Values[column].IsAvailable() {
			return true
		}
	}
	return false
}

func countUnavailable(rows []extraction.Row) int {
	n := 0
	for _, row := range rows {
		for _, v := range row.Values {
			if !v.IsAvailable() {
				n++
			}
		}
	}
	return n
}

func summary(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, res := range results {
		lines = append(lines, fmt.Sprintf("%s: %d rows, %d NA -> %s", res.Name, res.Rows, res.Unavailable, res.Path))
	}
	return strings.Join(lines, "\n")
}
