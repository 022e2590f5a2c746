package output

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/fogleman/gg"

	"github.com/forest-guardian/sundarbans-extraction/internal/extraction"
)

const (
	chartWidth  = 1200
	chartHeight = 500
	chartMargin = 60.0
)

// WriteChart draws the column of rows as a line chart and saves it as PNG.
// Unavailable values break the line.
func WriteChart(path, title string, rows []extraction.Row, column string) error {
	if len(rows) == 0 {
		return fmt.Errorf("no rows to chart")
	}

	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		if v, ok := r.Values[column].Float(); ok {
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}
	}
	if math.IsInf(minV, 1) {
		return fmt.Errorf("column %s has no available values", column)
	}
	if minV == maxV {
		minV, maxV = minV-1, maxV+1
	}

	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	plotW := float64(chartWidth) - 2*chartMargin
	plotH := float64(chartHeight) - 2*chartMargin
	x := func(i int) float64 {
		if len(rows) == 1 {
			return chartMargin + plotW/2
		}
		return chartMargin + plotW*float64(i)/float64(len(rows)-1)
	}
	y := func(v float64) float64 {
		return chartMargin + plotH*(1-(v-minV)/(maxV-minV))
	}

	// Axes
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawLine(chartMargin, chartMargin, chartMargin, chartMargin+plotH)
	dc.DrawLine(chartMargin, chartMargin+plotH, chartMargin+plotW, chartMargin+plotH)
	dc.Stroke()

	dc.DrawStringAnchored(title, float64(chartWidth)/2, chartMargin/2, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.4g", maxV), chartMargin-5, chartMargin, 1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.4g", minV), chartMargin-5, chartMargin+plotH, 1, 0.5)
	dc.DrawStringAnchored(rows[0].Window.Start.Format(time.DateOnly), chartMargin, chartMargin+plotH+15, 0, 0.5)
	dc.DrawStringAnchored(rows[len(rows)-1].Window.Start.Format(time.DateOnly), chartMargin+plotW, chartMargin+plotH+15, 1, 0.5)

	// Series
	dc.SetRGB(0.13, 0.55, 0.13)
	dc.SetLineWidth(1.5)
	drawing := false
	for i, r := range rows {
		v, ok := r.Values[column].Float()
		if !ok {
			if drawing {
				dc.Stroke()
			}
			drawing = false
			continue
		}
		if !drawing {
			dc.MoveTo(x(i), y(v))
			drawing = true
			continue
		}
		dc.LineTo(x(i), y(v))
	}
	if drawing {
		dc.Stroke()
	}

	for i, r := range rows {
		if v, ok := r.Values[column].Float(); ok {
			dc.DrawCircle(x(i), y(v), 2)
		}
	}
	dc.Fill()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create chart directory: %w", err)
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save chart: %w", err)
	}
	return nil
}
