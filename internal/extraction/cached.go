package extraction

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/forest-guardian/sundarbans-extraction/internal/cache"
	"github.com/forest-guardian/sundarbans-extraction/internal/region"
)

// cachedService answers repeated window reductions from a local store.
// Describe always reaches the remote service.
type cachedService struct {
	svc   Service
	store cache.Store[map[string]*float64]
	log   zerolog.Logger
}

// NewCachedService wraps svc so that successful reductions are stored and
// replayed. Failed reductions are never cached.
func NewCachedService(svc Service, store cache.Store[map[string]*float64], log zerolog.Logger) Service {
	return &cachedService{svc: svc, store: store, log: log}
}

func (c *cachedService) Describe(ctx context.Context, dataset string) error {
	return c.svc.Describe(ctx, dataset)
}

func (c *cachedService) Reduce(ctx context.Context, req ReduceRequest) (map[string]*float64, error) {
	key := c.store.GenerateKey(
		req.Dataset,
		req.Band,
		req.Collection.String(),
		geometryKey(req.CollectionRegion),
		req.Window.Start.Format(time.DateOnly),
		req.Window.End.Format(time.DateOnly),
		geometryKey(req.Region),
		req.Scale,
		req.MaxPixels,
	)

	if res, ok := c.store.Get(key); ok {
		c.log.Debug().Str("dataset", req.Dataset).Stringer("window", req.Window).Msg("cache hit")
		return res, nil
	}

	res, err := c.svc.Reduce(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(key, res); err != nil {
		c.log.Warn().Err(err).Str("dataset", req.Dataset).Msg("failed to cache reduction")
	}
	return res, nil
}

func geometryKey(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return region.Key(g)
}
