package region

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Sundarbans is the bounding rectangle of the mangrove delta in lon/lat.
var Sundarbans = orb.Bound{Min: orb.Point{88.0, 21.5}, Max: orb.Point{90.0, 22.5}}

var ErrInvalidRegion = errors.New("invalid region")

// Default returns the centroid of the Sundarbans rectangle, the point every
// extraction falls back to when no region is configured.
func Default() orb.Geometry {
	return Sundarbans.Center()
}

// Validate accepts points, rectangles and (multi)polygons expressed in WGS84
// longitude/latitude.
func Validate(g orb.Geometry) error {
	if g == nil {
		return fmt.Errorf("%w: geometry is nil", ErrInvalidRegion)
	}

	switch geom := g.(type) {
	case orb.Point:
		return validatePoint(geom)
	case orb.Bound:
		if err := validatePoint(geom.Min); err != nil {
			return err
		}
		if err := validatePoint(geom.Max); err != nil {
			return err
		}
		if geom.Min[0] >= geom.Max[0] || geom.Min[1] >= geom.Max[1] {
			return fmt.Errorf("%w: rectangle %v has no area", ErrInvalidRegion, geom)
		}
		return nil
	case orb.Polygon:
		return validatePolygon(geom)
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return fmt.Errorf("%w: empty multipolygon", ErrInvalidRegion)
		}
		for _, p := range geom {
			if err := validatePolygon(p); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported geometry type %s", ErrInvalidRegion, g.GeoJSONType())
	}
}

func validatePoint(p orb.Point) error {
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: coordinate %v out of range", ErrInvalidRegion, p)
	}
	return nil
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty polygon", ErrInvalidRegion)
	}
	for _, ring := range p {
		if len(ring) < 4 || !ring.Closed() {
			return fmt.Errorf("%w: polygon rings must be closed with at least 4 positions", ErrInvalidRegion)
		}
		for _, pt := range ring {
			if err := validatePoint(pt); err != nil {
				return err
			}
		}
	}
	return nil
}

// Centroid returns the latitude and longitude of the region's planar centroid.
func Centroid(g orb.Geometry) (float64, float64, error) {
	switch geom := g.(type) {
	case nil:
		return 0, 0, fmt.Errorf("%w: geometry is nil", ErrInvalidRegion)
	case orb.Point:
		return geom.Lat(), geom.Lon(), nil
	case orb.Bound:
		c := geom.Center()
		return c.Lat(), c.Lon(), nil
	}

	centroid, area := planar.CentroidArea(g)
	if area <= 0 {
		return 0, 0, errors.New("error getting centroid")
	}
	return centroid.Lat(), centroid.Lon(), nil
}

// Parse reads a region from a flag or config value. It accepts "lon,lat",
// "minLon,minLat,maxLon,maxLat" or a GeoJSON geometry or feature.
func Parse(s string) (orb.Geometry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidRegion)
	}

	var g orb.Geometry
	if strings.HasPrefix(s, "{") {
		parsed, err := parseGeoJSON([]byte(s))
		if err != nil {
			return nil, err
		}
		g = parsed
	} else {
		parts := strings.Split(s, ",")
		coords := make([]float64, 0, len(parts))
		for _, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidRegion, part)
			}
			coords = append(coords, v)
		}

		switch len(coords) {
		case 2:
			g = orb.Point{coords[0], coords[1]}
		case 4:
			g = orb.Bound{Min: orb.Point{coords[0], coords[1]}, Max: orb.Point{coords[2], coords[3]}}
		default:
			return nil, fmt.Errorf("%w: expected 2 or 4 coordinates, got %d", ErrInvalidRegion, len(coords))
		}
	}

	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

func parseGeoJSON(data []byte) (orb.Geometry, error) {
	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		return f.Geometry, nil
	}
	geom, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegion, err)
	}
	return geom.Geometry(), nil
}

// Key renders the region as WKT, used to build stable cache keys.
func Key(g orb.Geometry) string {
	if b, ok := g.(orb.Bound); ok {
		return wkt.MarshalString(b.ToPolygon())
	}
	return wkt.MarshalString(g)
}
