// Package vector reads extraction regions out of OGR vector files
// (GeoJSON, Shapefile, GeoPackage, ...).
package vector

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/forest-guardian/sundarbans-extraction/internal/region"
)

const wgs84LonLat = "+proj=longlat +datum=WGS84 +no_defs"

// LoadRegion returns the geometry of the first feature of the first layer
// whose `property` field equals `value`. An empty property selects the first
// feature. Geometries are reprojected to WGS84 longitude/latitude.
func LoadRegion(path, property, value string) (orb.Geometry, error) {
	godal.RegisterAll()

	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	layers := ds.Layers()
	if len(layers) == 0 {
		return nil, fmt.Errorf("no layers found in %s", path)
	}

	layer := layers[0]
	for {
		feat := layer.NextFeature()
		if feat == nil {
			break
		}

		if property != "" {
			field, ok := feat.Fields()[property]
			if !ok || field.String() != value {
				feat.Close()
				continue
			}
		}

		owned, err := copyGeometry(feat.Geometry())
		feat.Close()
		if err != nil {
			return nil, err
		}

		g, err := toOrb(owned)
		if err != nil {
			return nil, err
		}
		if err := region.Validate(g); err != nil {
			return nil, err
		}
		return g, nil
	}

	return nil, fmt.Errorf("geometry not found in %s for %s=%s", path, property, value)
}

// copyGeometry detaches the geometry from its feature so the feature can be
// closed before the geometry is reprojected.
func copyGeometry(geom *godal.Geometry) (*godal.Geometry, error) {
	if geom == nil {
		return nil, fmt.Errorf("feature has no geometry")
	}
	wkb, err := geom.WKB()
	if err != nil {
		return nil, fmt.Errorf("failed to export geometry to WKB: %w", err)
	}
	return godal.NewGeometryFromWKB(wkb, geom.SpatialRef())
}

func toOrb(geom *godal.Geometry) (orb.Geometry, error) {
	defer geom.Close()

	if src := geom.SpatialRef(); src != nil {
		dst, err := godal.NewSpatialRefFromProj4(wgs84LonLat)
		if err != nil {
			return nil, fmt.Errorf("failed to build WGS84 spatial reference: %w", err)
		}
		defer dst.Close()
		if !src.IsSame(dst) {
			if err := geom.Reproject(dst); err != nil {
				return nil, fmt.Errorf("failed to reproject geometry: %w", err)
			}
		}
	}

	raw, err := geom.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export geometry to GeoJSON: %w", err)
	}
	parsed, err := geojson.UnmarshalGeometry([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}
	return parsed.Geometry(), nil
}
