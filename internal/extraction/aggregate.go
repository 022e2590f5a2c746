package extraction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forest-guardian/sundarbans-extraction/internal/region"
)

// Aggregator reduces a collection into one row per time window.
type Aggregator struct {
	defaultRegion orb.Geometry
	excludeTail   bool
	concurrency   int
	log           zerolog.Logger
	onWindow      func(Window)
}

type Option func(*Aggregator)

func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// WithConcurrency lets up to n window reductions run at once. Rows keep
// window order whatever the completion order.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithExcludeTail drops the window that starts exactly on the range end.
func WithExcludeTail(exclude bool) Option {
	return func(a *Aggregator) { a.excludeTail = exclude }
}

// WithProgress registers a callback invoked after each window is reduced.
// It may be called from several goroutines when concurrency is above one.
func WithProgress(fn func(Window)) Option {
	return func(a *Aggregator) { a.onWindow = fn }
}

// NewAggregator returns an aggregator that falls back to defaultRegion when a
// run is given no region.
func NewAggregator(defaultRegion orb.Geometry, opts ...Option) (*Aggregator, error) {
	if err := region.Validate(defaultRegion); err != nil {
		return nil, fmt.Errorf("invalid default region: %w", err)
	}

	a := &Aggregator{
		defaultRegion: defaultRegion,
		concurrency:   1,
		log:           zerolog.Nop(),
		onWindow:      func(Window) {},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Aggregate reduces the handle's collection window by window over reg (or the
// default region when reg is nil) at the given scale.
//
// The run is fail-soft: a nil handle, an invalid window length or a failed
// remote reduction return an empty, non-nil slice together with an error
// wrapping ErrProcessingFailed. A band missing from a window is not an error;
// its value is the unavailable sentinel.
func (a *Aggregator) Aggregate(ctx context.Context, h *Handle, rng DateRange, windowDays int, reg orb.Geometry, scale float64, band string) ([]Row, error) {
	rows, err := a.aggregate(ctx, h, rng, windowDays, reg, scale, band)
	if err != nil {
		a.log.Error().Err(err).Msg("An error occurred during data processing")
		return []Row{}, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}
	return rows, nil
}

func (a *Aggregator) aggregate(ctx context.Context, h *Handle, rng DateRange, windowDays int, reg orb.Geometry, scale float64, band string) ([]Row, error) {
	if h == nil {
		return nil, fmt.Errorf("no data available to process")
	}
	if windowDays <= 0 {
		return nil, fmt.Errorf("window length must be positive, got %d days", windowDays)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("scale must be positive, got %v", scale)
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = a.defaultRegion
	}
	if err := region.Validate(reg); err != nil {
		return nil, err
	}

	windows := rng.Windows(windowDays, a.excludeTail)
	if len(windows) == 0 {
		return []Row{}, nil
	}

	lat, lon, err := region.Centroid(reg)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]*float64, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, w := range windows {
		g.Go(func() error {
			res, err := h.reduce(gctx, w, reg, scale)
			if err != nil {
				return fmt.Errorf("reducing window %s: %w", w, err)
			}
			results[i] = res
			a.onWindow(w)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	keys := requestedKeys(band, h.query.Bands, results)
	columns := columnNames(keys)
	rows := make([]Row, 0, len(windows))
	for i, w := range windows {
		values := make(map[string]Value, len(keys))
		for j, key := range keys {
			v, ok := results[i][key]
			if !ok || v == nil {
				a.log.Warn().
					Str("band", key).
					Str("date", w.Start.Format(time.DateOnly)).
					Msgf("Data for %s not available on %s", key, w.Start.Format(time.DateOnly))
				values[columns[j]] = Unavailable()
				continue
			}
			values[columns[j]] = Available(*v)
		}
		rows = append(rows, NewRow(w, lat, lon, columns, values))
	}

	return rows, nil
}

// requestedKeys is the single requested band, or the expected bands followed
// by any other band seen across the windows in order of first appearance
// (alphabetical within a window).
func requestedKeys(band string, expected []string, results []map[string]*float64) []string {
	if band != "" {
		return []string{band}
	}

	seen := make(map[string]bool)
	var keys []string
	for _, k := range expected {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, res := range results {
		windowKeys := make([]string, 0, len(res))
		for k := range res {
			if !seen[k] {
				windowKeys = append(windowKeys, k)
			}
		}
		sort.Strings(windowKeys)
		for _, k := range windowKeys {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// columnNames lower-cases band names. Bands whose names differ only in case
// keep their original spelling so neither overwrites the other.
func columnNames(keys []string) []string {
	folded := make(map[string]int, len(keys))
	for _, k := range keys {
		folded[strings.ToLower(k)]++
	}

	columns := make([]string, len(keys))
	for i, k := range keys {
		if folded[strings.ToLower(k)] > 1 {
			columns[i] = k
			continue
		}
		columns[i] = strings.ToLower(k)
	}
	return columns
}
