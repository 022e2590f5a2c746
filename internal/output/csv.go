package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/forest-guardian/sundarbans-extraction/internal/extraction"
)

type Layout string

const (
	// LayoutWide writes one line per window with a column per band.
	LayoutWide Layout = "wide"
	// LayoutLong writes one line per window and band.
	LayoutLong Layout = "long"
)

func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutWide, "":
		return LayoutWide, nil
	case LayoutLong:
		return LayoutLong, nil
	default:
		return "", fmt.Errorf("unknown layout %q, expected wide or long", s)
	}
}

type longRecord struct {
	Year        int     `csv:"year"`
	Month       int     `csv:"month"`
	WindowStart string  `csv:"window_start"`
	WindowEnd   string  `csv:"window_end"`
	Band        string  `csv:"band"`
	Value       string  `csv:"value"`
	Latitude    float64 `csv:"latitude"`
	Longitude   float64 `csv:"longitude"`
}

// Columns returns the value columns of rows in order of first appearance.
func Columns(rows []extraction.Row) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, r := range rows {
		for _, k := range r.Keys() {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	return columns
}

// WriteCSV writes rows in the given layout. An empty slice writes nothing,
// not even a header.
func WriteCSV(w io.Writer, rows []extraction.Row, layout Layout) error {
	if len(rows) == 0 {
		return nil
	}

	switch layout {
	case LayoutWide, "":
		return writeWide(w, rows)
	case LayoutLong:
		return writeLong(w, rows)
	default:
		return fmt.Errorf("unknown layout %q", layout)
	}
}

// WriteFile writes rows to path, creating parent directories as needed.
func WriteFile(path string, rows []extraction.Row, layout Layout) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := WriteCSV(file, rows, layout); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

func writeWide(w io.Writer, rows []extraction.Row) error {
	columns := Columns(rows)

	writer := gocsv.DefaultCSVWriter(w)
	header := append([]string{"year", "month"}, columns...)
	header = append(header, "latitude", "longitude")
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		record := make([]string, 0, len(header))
		record = append(record, strconv.Itoa(r.Year), strconv.Itoa(r.Month))
		for _, c := range columns {
			record = append(record, r.Values[c].String())
		}
		record = append(record, formatFloat(r.Latitude), formatFloat(r.Longitude))
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeLong(w io.Writer, rows []extraction.Row) error {
	var records []longRecord
	for _, r := range rows {
		for _, k := range r.Keys() {
			records = append(records, longRecord{
				Year:        r.Year,
				Month:       r.Month,
				WindowStart: r.Window.Start.Format(time.DateOnly),
				WindowEnd:   r.Window.End.Format(time.DateOnly),
				Band:        k,
				Value:       r.Values[k].String(),
				Latitude:    r.Latitude,
				Longitude:   r.Longitude,
			})
		}
	}

	writer := gocsv.DefaultCSVWriter(w)
	if err := gocsv.MarshalCSV(&records, writer); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
