package extraction

import (
	"context"

	"github.com/paulmach/orb"
)

// MaxPixels caps the number of pixels the remote reducer may visit per call.
const MaxPixels = 1e13

// Service is the subset of a remote geospatial engine the extraction needs.
type Service interface {
	// Describe checks that the dataset exists and is readable with the
	// current credentials.
	Describe(ctx context.Context, dataset string) error

	// Reduce composites the images of the dataset that fall inside both the
	// collection filter and the window with a temporal mean, optionally
	// selects Band, and reduces the composite with a spatial mean over
	// Region. Bands without valid pixels are absent or nil in the result.
	Reduce(ctx context.Context, req ReduceRequest) (map[string]*float64, error)
}

type ReduceRequest struct {
	Dataset string
	Band    string

	// Collection-level filters, applied once when the handle is opened.
	Collection       DateRange
	CollectionRegion orb.Geometry

	Window    Window
	Region    orb.Geometry
	Scale     float64
	MaxPixels float64
}
