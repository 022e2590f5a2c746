package extraction

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/forest-guardian/sundarbans-extraction/internal/region"
	"github.com/forest-guardian/sundarbans-extraction/internal/validation"
)

type Query struct {
	Dataset string `validate:"required"`
	Range   DateRange
	Region  orb.Geometry
	// Band is optional; an empty band keeps every band of the dataset.
	Band string
	// Bands are always reported by an all-band run, as unavailable when a
	// window returns none of them.
	Bands []string `validate:"dive,required"`
	// Scale is the ground resolution in metres.
	Scale float64 `validate:"gt=0"`
}

func (q Query) Validate() error {
	if err := validation.Struct(q); err != nil {
		return err
	}
	if err := q.Range.Validate(); err != nil {
		return err
	}
	return region.Validate(q.Region)
}

// Handle references a filtered, optionally band-selected remote collection.
// Opening a handle does not fetch pixels.
type Handle struct {
	svc   Service
	query Query
}

// Open validates the query locally, asks the service to describe the dataset
// and returns a handle. Every failure wraps ErrExtractionFailed.
func Open(ctx context.Context, svc Service, q Query) (*Handle, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: no remote service configured", ErrExtractionFailed)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	if err := svc.Describe(ctx, q.Dataset); err != nil {
		return nil, fmt.Errorf("%w: dataset %s: %w", ErrExtractionFailed, q.Dataset, err)
	}
	return &Handle{svc: svc, query: q}, nil
}

func (h *Handle) Query() Query {
	return h.query
}

func (h *Handle) reduce(ctx context.Context, w Window, reg orb.Geometry, scale float64) (map[string]*float64, error) {
	return h.svc.Reduce(ctx, ReduceRequest{
		Dataset:          h.query.Dataset,
		Band:             h.query.Band,
		Collection:       h.query.Range,
		CollectionRegion: h.query.Region,
		Window:           w,
		Region:           reg,
		Scale:            scale,
		MaxPixels:        MaxPixels,
	})
}
