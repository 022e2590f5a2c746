package extraction

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/forest-guardian/sundarbans-extraction/internal/cache"
)

type fakeService struct {
	mu          sync.Mutex
	describeErr error
	reduceErr   error
	calls       []ReduceRequest
	// values returns the reduction of a window; nil means an empty result.
	values func(w Window) map[string]*float64
	delay  func(w Window) time.Duration
}

func (f *fakeService) Describe(ctx context.Context, dataset string) error {
	return f.describeErr
}

func (f *fakeService) Reduce(ctx context.Context, req ReduceRequest) (map[string]*float64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.delay != nil {
		time.Sleep(f.delay(req.Window))
	}
	if f.reduceErr != nil {
		return nil, f.reduceErr
	}
	if f.values == nil {
		return map[string]*float64{}, nil
	}
	return f.values(req.Window), nil
}

func (f *fakeService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func ptr(v float64) *float64 { return &v }

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func mustRange(t *testing.T, start, end string) DateRange {
	t.Helper()
	rng, err := ParseDateRange(start, end)
	if err != nil {
		t.Fatalf("ParseDateRange: %v", err)
	}
	return rng
}

func openHandle(t *testing.T, svc Service, rng DateRange, band string, bands ...string) *Handle {
	t.Helper()
	h, err := Open(context.Background(), svc, Query{
		Dataset: "MODIS/006/MOD13A2",
		Range:   rng,
		Region:  orb.Point{89, 22},
		Band:    band,
		Bands:   bands,
		Scale:   1000,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return h
}

func newAggregator(t *testing.T, opts ...Option) *Aggregator {
	t.Helper()
	a, err := NewAggregator(orb.Point{89, 22}, opts...)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return a
}

func TestWindows(t *testing.T) {
	tests := []struct {
		name        string
		start, end  string
		days        int
		excludeTail bool
		want        []string
	}{
		{"inclusive tail", "2000-01-01", "2000-02-02", 16, false, []string{"2000-01-01", "2000-01-17", "2000-02-02"}},
		{"exclusive tail", "2000-01-01", "2000-02-02", 16, true, []string{"2000-01-01", "2000-01-17"}},
		{"partial last window", "2000-01-01", "2000-01-20", 16, false, []string{"2000-01-01", "2000-01-17"}},
		{"single day range", "2000-01-01", "2000-01-01", 16, false, []string{"2000-01-01"}},
		{"single day range exclusive", "2000-01-01", "2000-01-01", 16, true, nil},
		{"zero days", "2000-01-01", "2000-02-02", 0, false, nil},
		{"negative days", "2000-01-01", "2000-02-02", -3, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := DateRange{Start: date(tt.start), End: date(tt.end)}
			got := rng.Windows(tt.days, tt.excludeTail)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d windows, want %d", len(got), len(tt.want))
			}
			for i, w := range got {
				if s := w.Start.Format(time.DateOnly); s != tt.want[i] {
					t.Errorf("window %d starts %s, want %s", i, s, tt.want[i])
				}
				if !w.End.Equal(w.Start.AddDate(0, 0, tt.days)) {
					t.Errorf("window %d ends %s, want start+%d days", i, w.End.Format(time.DateOnly), tt.days)
				}
			}
		})
	}
}

func TestParseDateRange(t *testing.T) {
	if _, err := ParseDateRange("2000-02-18", "2020-07-09"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseDateRange("2000-13-01", "2020-07-09"); err == nil {
		t.Error("expected error for invalid month")
	}
	if _, err := ParseDateRange("2020-07-09", "2000-02-18"); err == nil {
		t.Error("expected error for reversed range")
	}
}

func TestOpenFailures(t *testing.T) {
	rng := DateRange{Start: date("2000-01-01"), End: date("2000-02-02")}

	tests := []struct {
		name  string
		svc   Service
		query Query
	}{
		{"nil service", nil, Query{Dataset: "X", Range: rng, Region: orb.Point{89, 22}, Scale: 1000}},
		{"unknown dataset", &fakeService{describeErr: errors.New("asset not found")}, Query{Dataset: "NOPE", Range: rng, Region: orb.Point{89, 22}, Scale: 1000}},
		{"empty dataset", &fakeService{}, Query{Range: rng, Region: orb.Point{89, 22}, Scale: 1000}},
		{"reversed range", &fakeService{}, Query{Dataset: "X", Range: DateRange{Start: rng.End, End: rng.Start}, Region: orb.Point{89, 22}, Scale: 1000}},
		{"bad region", &fakeService{}, Query{Dataset: "X", Range: rng, Region: orb.Point{200, 22}, Scale: 1000}},
		{"zero scale", &fakeService{}, Query{Dataset: "X", Range: rng, Region: orb.Point{89, 22}}},
		{"negative scale", &fakeService{}, Query{Dataset: "X", Range: rng, Region: orb.Point{89, 22}, Scale: -1}},
		{"empty band name", &fakeService{}, Query{Dataset: "X", Range: rng, Region: orb.Point{89, 22}, Scale: 1000, Bands: []string{"salinity", ""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Open(context.Background(), tt.svc, tt.query)
			if h != nil {
				t.Error("expected nil handle")
			}
			if !errors.Is(err, ErrExtractionFailed) {
				t.Errorf("got %v, want ErrExtractionFailed", err)
			}
		})
	}
}

func TestAggregateSingleBand(t *testing.T) {
	svc := &fakeService{values: func(w Window) map[string]*float64 {
		return map[string]*float64{"NDVI": ptr(float64(w.Start.YearDay()))}
	}}
	rng := mustRange(t, "2000-01-01", "2000-02-02")
	h := openHandle(t, svc, rng, "NDVI")

	rows, err := newAggregator(t).Aggregate(context.Background(), h, rng, 16, orb.Point{89, 22}, 1000, "NDVI")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	wantMonths := []int{1, 1, 2}
	wantValues := []string{"1", "17", "33"}
	for i, r := range rows {
		if r.Year != 2000 || r.Month != wantMonths[i] {
			t.Errorf("row %d: got %d-%d, want 2000-%d", i, r.Year, r.Month, wantMonths[i])
		}
		if r.Latitude != 22 || r.Longitude != 89 {
			t.Errorf("row %d: got (%v, %v), want (22, 89)", i, r.Latitude, r.Longitude)
		}
		if keys := r.Keys(); len(keys) != 1 || keys[0] != "ndvi" {
			t.Errorf("row %d: got keys %v, want [ndvi]", i, keys)
		}
		if got := r.Values["ndvi"].String(); got != wantValues[i] {
			t.Errorf("row %d: got ndvi %s, want %s", i, got, wantValues[i])
		}
	}

	for _, req := range svc.calls {
		if req.Scale != 1000 || req.MaxPixels != MaxPixels || req.Band != "NDVI" {
			t.Errorf("unexpected request %+v", req)
		}
	}
}

func TestAggregateMissingBand(t *testing.T) {
	svc := &fakeService{values: func(w Window) map[string]*float64 {
		if w.Start.Equal(date("2000-01-17")) {
			return map[string]*float64{}
		}
		return map[string]*float64{"NDVI": ptr(0.5)}
	}}
	rng := mustRange(t, "2000-01-01", "2000-02-02")
	h := openHandle(t, svc, rng, "NDVI")

	var buf bytes.Buffer
	a := newAggregator(t, WithLogger(zerolog.New(&buf)))
	rows, err := a.Aggregate(context.Background(), h, rng, 16, nil, 1000, "NDVI")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[1].Values["ndvi"].IsAvailable() || rows[1].Values["ndvi"].String() != NA {
		t.Errorf("row 1 should be unavailable, got %s", rows[1].Values["ndvi"])
	}
	if !rows[0].Values["ndvi"].IsAvailable() || !rows[2].Values["ndvi"].IsAvailable() {
		t.Error("rows 0 and 2 should be available")
	}
	if !strings.Contains(buf.String(), "Data for NDVI not available on 2000-01-17") {
		t.Errorf("missing warning in log output: %s", buf.String())
	}
}

func TestAggregateNilValueIsUnavailable(t *testing.T) {
	svc := &fakeService{values: func(w Window) map[string]*float64 {
		return map[string]*float64{"NDVI": nil}
	}}
	rng := mustRange(t, "2000-01-01", "2000-01-01")
	h := openHandle(t, svc, rng, "NDVI")

	rows, err := newAggregator(t).Aggregate(context.Background(), h, rng, 16, nil, 1000, "NDVI")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 1 || rows[0].Values["ndvi"].IsAvailable() {
		t.Fatalf("expected one unavailable row, got %+v", rows)
	}
}

func TestAggregateAllBands(t *testing.T) {
	svc := &fakeService{values: func(w Window) map[string]*float64 {
		if w.Start.Equal(date("2000-01-01")) {
			return map[string]*float64{"water_temp": ptr(28.5), "salinity": ptr(31)}
		}
		return map[string]*float64{"salinity": ptr(30), "velocity_u": ptr(0.2)}
	}}
	rng := mustRange(t, "2000-01-01", "2000-01-17")
	h := openHandle(t, svc, rng, "")

	rows, err := newAggregator(t).Aggregate(context.Background(), h, rng, 16, nil, 8905.6, "")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	want := []string{"salinity", "water_temp", "velocity_u"}
	for i, r := range rows {
		keys := r.Keys()
		if strings.Join(keys, ",") != strings.Join(want, ",") {
			t.Errorf("row %d: got keys %v, want %v", i, keys, want)
		}
	}
	if rows[0].Values["velocity_u"].IsAvailable() {
		t.Error("velocity_u should be unavailable in the first window")
	}
	if rows[1].Values["water_temp"].IsAvailable() {
		t.Error("water_temp should be unavailable in the second window")
	}
}

func TestAggregateAllBandsEmpty(t *testing.T) {
	svc := &fakeService{}
	rng := mustRange(t, "2000-01-01", "2000-02-02")
	h := openHandle(t, svc, rng, "", "water_temp_0", "salinity_0")

	var buf bytes.Buffer
	rows, err := newAggregator(t, WithLogger(zerolog.New(&buf))).Aggregate(context.Background(), h, rng, 16, nil, 8905.6, "")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	for i, r := range rows {
		if got := strings.Join(r.Keys(), ","); got != "water_temp_0,salinity_0" {
			t.Errorf("row %d: got keys %s", i, got)
		}
		for _, k := range []string{"water_temp_0", "salinity_0"} {
			v, ok := r.Values[k]
			if !ok || v.IsAvailable() {
				t.Errorf("row %d: %s should be present and unavailable, got %v", i, k, v)
			}
		}
	}
	if n := strings.Count(buf.String(), "not available"); n != 6 {
		t.Errorf("got %d warnings, want 6", n)
	}
}

func TestAggregateExpectedBandsComeFirst(t *testing.T) {
	svc := &fakeService{values: func(w Window) map[string]*float64 {
		return map[string]*float64{"velocity_u": ptr(0.2), "salinity": ptr(30)}
	}}
	rng := mustRange(t, "2000-01-01", "2000-01-17")
	h := openHandle(t, svc, rng, "", "water_temp", "salinity")

	rows, err := newAggregator(t).Aggregate(context.Background(), h, rng, 16, nil, 8905.6, "")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got := strings.Join(rows[0].Keys(), ","); got != "water_temp,salinity,velocity_u" {
		t.Errorf("got keys %s", got)
	}
	if rows[0].Values["water_temp"].IsAvailable() {
		t.Error("water_temp should be unavailable")
	}
}

func TestAggregateCaseCollidingBands(t *testing.T) {
	svc := &fakeService{values: func(w Window) map[string]*float64 {
		return map[string]*float64{"B1": ptr(1), "b1": ptr(2), "NDVI": ptr(0.5)}
	}}
	rng := mustRange(t, "2000-01-01", "2000-01-01")
	h := openHandle(t, svc, rng, "")

	rows, err := newAggregator(t).Aggregate(context.Background(), h, rng, 16, nil, 1000, "")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}

	r := rows[0]
	if got := strings.Join(r.Keys(), ","); got != "B1,ndvi,b1" {
		t.Errorf("got keys %s", got)
	}
	want := map[string]string{"B1": "1", "b1": "2", "ndvi": "0.5"}
	for k, v := range want {
		if got := r.Values[k].String(); got != v {
			t.Errorf("%s: got %s, want %s", k, got, v)
		}
	}
}

func TestAggregateFailSoft(t *testing.T) {
	rng := mustRange(t, "2000-01-01", "2000-02-02")

	tests := []struct {
		name   string
		handle func(t *testing.T) *Handle
		days   int
		region orb.Geometry
		scale  float64
	}{
		{"nil handle", func(t *testing.T) *Handle { return nil }, 16, nil, 1000},
		{"zero window", func(t *testing.T) *Handle { return openHandle(t, &fakeService{}, rng, "NDVI") }, 0, nil, 1000},
		{"zero scale", func(t *testing.T) *Handle { return openHandle(t, &fakeService{}, rng, "NDVI") }, 16, nil, 0},
		{"invalid region", func(t *testing.T) *Handle { return openHandle(t, &fakeService{}, rng, "NDVI") }, 16, orb.Point{0, 95}, 1000},
		{"remote failure", func(t *testing.T) *Handle {
			return openHandle(t, &fakeService{reduceErr: errors.New("computation timed out")}, rng, "NDVI")
		}, 16, nil, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := newAggregator(t).Aggregate(context.Background(), tt.handle(t), rng, tt.days, tt.region, tt.scale, "NDVI")
			if !errors.Is(err, ErrProcessingFailed) {
				t.Errorf("got %v, want ErrProcessingFailed", err)
			}
			if rows == nil || len(rows) != 0 {
				t.Errorf("got %v, want empty non-nil slice", rows)
			}
		})
	}
}

func TestAggregateDefaultRegion(t *testing.T) {
	svc := &fakeService{values: func(w Window) map[string]*float64 {
		return map[string]*float64{"NDVI": ptr(0.4)}
	}}
	rng := mustRange(t, "2000-01-01", "2000-01-01")
	h := openHandle(t, svc, rng, "NDVI")

	a, err := NewAggregator(orb.Point{89.0, 22.0})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	rows, err := a.Aggregate(context.Background(), h, rng, 16, nil, 1000, "NDVI")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if rows[0].Latitude != 22.0 || rows[0].Longitude != 89.0 {
		t.Errorf("got (%v, %v), want (22, 89)", rows[0].Latitude, rows[0].Longitude)
	}
	if p, ok := svc.calls[0].Region.(orb.Point); !ok || p != (orb.Point{89, 22}) {
		t.Errorf("reduced over %v, want default point", svc.calls[0].Region)
	}
}

func TestAggregatePolygonCentroid(t *testing.T) {
	svc := &fakeService{values: func(w Window) map[string]*float64 {
		return map[string]*float64{"NDVI": ptr(0.4)}
	}}
	rng := mustRange(t, "2000-01-01", "2000-01-01")
	h := openHandle(t, svc, rng, "NDVI")

	square := orb.Polygon{{{88, 21}, {90, 21}, {90, 23}, {88, 23}, {88, 21}}}
	rows, err := newAggregator(t).Aggregate(context.Background(), h, rng, 16, square, 1000, "NDVI")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if rows[0].Latitude != 22 || rows[0].Longitude != 89 {
		t.Errorf("got (%v, %v), want (22, 89)", rows[0].Latitude, rows[0].Longitude)
	}
}

func TestAggregateConcurrentKeepsOrder(t *testing.T) {
	svc := &fakeService{
		values: func(w Window) map[string]*float64 {
			return map[string]*float64{"NDVI": ptr(float64(w.Start.YearDay()))}
		},
		// Earlier windows finish last.
		delay: func(w Window) time.Duration {
			return time.Duration(400-w.Start.YearDay()) * 50 * time.Microsecond
		},
	}
	rng := mustRange(t, "2000-01-01", "2000-12-31")
	h := openHandle(t, svc, rng, "NDVI")

	var mu sync.Mutex
	progress := 0
	a := newAggregator(t, WithConcurrency(8), WithProgress(func(Window) {
		mu.Lock()
		progress++
		mu.Unlock()
	}))
	rows, err := a.Aggregate(context.Background(), h, rng, 16, nil, 1000, "NDVI")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	want := len(rng.Windows(16, false))
	if len(rows) != want {
		t.Fatalf("got %d rows, want %d", len(rows), want)
	}
	if progress != want {
		t.Errorf("progress called %d times, want %d", progress, want)
	}
	for i := 1; i < len(rows); i++ {
		if !rows[i].Window.Start.After(rows[i-1].Window.Start) {
			t.Fatalf("rows out of order at %d", i)
		}
		v, _ := rows[i].Values["ndvi"].Float()
		if int(v) != rows[i].Window.Start.YearDay() {
			t.Errorf("row %d holds value of another window", i)
		}
	}
}

func TestAggregateExcludeTail(t *testing.T) {
	svc := &fakeService{}
	rng := mustRange(t, "2000-01-01", "2000-02-02")
	h := openHandle(t, svc, rng, "NDVI")

	rows, err := newAggregator(t, WithExcludeTail(true)).Aggregate(context.Background(), h, rng, 16, nil, 1000, "NDVI")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows, want 2", len(rows))
	}
}

func TestCachedServiceReplaysReductions(t *testing.T) {
	svc := &fakeService{values: func(w Window) map[string]*float64 {
		return map[string]*float64{"NDVI": ptr(0.7), "EVI": nil}
	}}
	store := cache.NewFileCache[map[string]*float64](t.TempDir(), 0)
	cached := NewCachedService(svc, store, zerolog.Nop())

	rng := mustRange(t, "2000-01-01", "2000-02-02")
	h := openHandle(t, cached, rng, "")
	a := newAggregator(t)

	first, err := a.Aggregate(context.Background(), h, rng, 16, nil, 1000, "")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	second, err := a.Aggregate(context.Background(), h, rng, 16, nil, 1000, "")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	if n := svc.callCount(); n != 3 {
		t.Errorf("remote called %d times, want 3", n)
	}
	for i := range first {
		if first[i].Values["ndvi"] != second[i].Values["ndvi"] || first[i].Values["evi"] != second[i].Values["evi"] {
			t.Errorf("row %d differs between runs", i)
		}
	}
	if second[0].Values["evi"].IsAvailable() {
		t.Error("cached nil value should stay unavailable")
	}

	// A different scale is a different reduction.
	if _, err := a.Aggregate(context.Background(), h, rng, 16, nil, 500, ""); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if n := svc.callCount(); n != 6 {
		t.Errorf("remote called %d times, want 6", n)
	}
}

func TestCachedServiceSkipsFailures(t *testing.T) {
	svc := &fakeService{reduceErr: errors.New("boom")}
	store := cache.NewFileCache[map[string]*float64](t.TempDir(), 0)
	cached := NewCachedService(svc, store, zerolog.Nop())

	req := ReduceRequest{Dataset: "X", Window: Window{Start: date("2000-01-01"), End: date("2000-01-17")}, Region: orb.Point{89, 22}, Scale: 1000}
	for i := 0; i < 2; i++ {
		if _, err := cached.Reduce(context.Background(), req); err == nil {
			t.Fatal("expected error")
		}
	}
	if n := svc.callCount(); n != 2 {
		t.Errorf("remote called %d times, want 2", n)
	}
}
