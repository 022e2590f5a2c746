package extraction

import (
	"strconv"
)

// NA is how an unavailable value is written out.
const NA = "NA"

// Value is a reduced scalar or the unavailable sentinel.
type Value struct {
	v  float64
	ok bool
}

func Available(v float64) Value {
	return Value{v: v, ok: true}
}

func Unavailable() Value {
	return Value{}
}

func (v Value) Float() (float64, bool) {
	return v.v, v.ok
}

func (v Value) IsAvailable() bool {
	return v.ok
}

func (v Value) String() string {
	if !v.ok {
		return NA
	}
	return strconv.FormatFloat(v.v, 'g', -1, 64)
}

// Row is the aggregate of one window. Values are keyed by lower-cased band
// name.
type Row struct {
	Window    Window
	Year      int
	Month     int
	Latitude  float64
	Longitude float64
	Values    map[string]Value

	keys []string
}

// Keys returns the value keys in column order.
func (r Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// NewRow builds the row of a window. keys fixes the column order of values;
// keys without a value are stored as unavailable.
func NewRow(w Window, lat, lon float64, keys []string, values map[string]Value) Row {
	row := Row{
		Window:    w,
		Year:      w.Start.Year(),
		Month:     int(w.Start.Month()),
		Latitude:  lat,
		Longitude: lon,
		Values:    make(map[string]Value, len(keys)),
		keys:      append([]string(nil), keys...),
	}
	for _, k := range keys {
		row.Values[k] = values[k]
	}
	return row
}
