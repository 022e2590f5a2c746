package extraction

import (
	"fmt"
	"time"
)

// DefaultWindowDays is the compositing period of the MODIS 16-day products,
// used for every variable.
const DefaultWindowDays = 16

type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two ISO YYYY-MM-DD dates.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	rng := DateRange{Start: s, End: e}
	return rng, rng.Validate()
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range must have both bounds")
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("start date %s is after end date %s", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	}
	return nil
}

func (r DateRange) String() string {
	return r.Start.Format(time.DateOnly) + "/" + r.End.Format(time.DateOnly)
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return "[" + w.Start.Format(time.DateOnly) + ", " + w.End.Format(time.DateOnly) + ")"
}

// Windows slices the range into consecutive windows of `days` days starting
// at r.Start. A window starting exactly on r.End is emitted unless
// excludeTail is set, so 2000-01-01..2000-02-02 with 16 days yields three
// windows by default and two with excludeTail.
func (r DateRange) Windows(days int, excludeTail bool) []Window {
	if days <= 0 || r.Start.After(r.End) {
		return nil
	}

	var windows []Window
	for start := r.Start; start.Before(r.End) || (!excludeTail && start.Equal(r.End)); start = start.AddDate(0, 0, days) {
		windows = append(windows, Window{Start: start, End: start.AddDate(0, 0, days)})
	}
	return windows
}
