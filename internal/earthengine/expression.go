package earthengine

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Node is one value of a serialized Earth Engine expression graph.
type Node map[string]any

// Expression is the body of a value:compute request. The graph is sent
// inline under a single value.
type Expression struct {
	Result string          `json:"result"`
	Values map[string]Node `json:"values"`
}

func NewExpression(root Node) Expression {
	return Expression{Result: "0", Values: map[string]Node{"0": root}}
}

func Constant(v any) Node {
	return Node{"constantValue": v}
}

func Invoke(function string, args map[string]Node) Node {
	if args == nil {
		args = map[string]Node{}
	}
	return Node{"functionInvocationValue": map[string]any{
		"functionName": function,
		"arguments":    args,
	}}
}

func Date(t time.Time) Node {
	return Invoke("Date", map[string]Node{"value": Constant(t.Format(time.DateOnly))})
}

func DateRange(start, end time.Time) Node {
	return Invoke("DateRange", map[string]Node{"start": Date(start), "end": Date(end)})
}

// Geometry encodes a WGS84 region through the GeometryConstructors family.
func Geometry(g orb.Geometry) (Node, error) {
	switch geom := g.(type) {
	case orb.Point:
		return Invoke("GeometryConstructors.Point", map[string]Node{
			"coordinates": Constant([]float64{geom.Lon(), geom.Lat()}),
		}), nil
	case orb.Bound:
		return Invoke("GeometryConstructors.Rectangle", map[string]Node{
			"coordinates": Constant([]float64{geom.Min.Lon(), geom.Min.Lat(), geom.Max.Lon(), geom.Max.Lat()}),
			"geodesic":    Constant(false),
		}), nil
	case orb.Polygon:
		return Invoke("GeometryConstructors.Polygon", map[string]Node{
			"coordinates": Constant(polygonCoords(geom)),
		}), nil
	case orb.MultiPolygon:
		coords := make([][][][]float64, 0, len(geom))
		for _, p := range geom {
			coords = append(coords, polygonCoords(p))
		}
		return Invoke("GeometryConstructors.MultiPolygon", map[string]Node{
			"coordinates": Constant(coords),
		}), nil
	case nil:
		return nil, fmt.Errorf("geometry is nil")
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

func polygonCoords(p orb.Polygon) [][][]float64 {
	rings := make([][][]float64, 0, len(p))
	for _, ring := range p {
		pts := make([][]float64, 0, len(ring))
		for _, pt := range ring {
			pts = append(pts, []float64{pt.Lon(), pt.Lat()})
		}
		rings = append(rings, pts)
	}
	return rings
}

func LoadCollection(id string) Node {
	return Invoke("ImageCollection.load", map[string]Node{"id": Constant(id)})
}

// FilterDate keeps images whose system:time_start lies in [start, end).
func FilterDate(collection Node, start, end time.Time) Node {
	return Invoke("Collection.filter", map[string]Node{
		"collection": collection,
		"filter": Invoke("Filter.dateRangeContains", map[string]Node{
			"leftValue":  DateRange(start, end),
			"rightField": Constant("system:time_start"),
		}),
	})
}

// FilterBounds keeps images whose footprint intersects geometry.
func FilterBounds(collection, geometry Node) Node {
	return Invoke("Collection.filter", map[string]Node{
		"collection": collection,
		"filter": Invoke("Filter.intersects", map[string]Node{
			"leftField":  Constant(".all"),
			"rightValue": geometry,
		}),
	})
}

// Mean composites a collection into one image with a per-pixel mean.
func Mean(collection Node) Node {
	return Invoke("reduce.mean", map[string]Node{"collection": collection})
}

func Select(image Node, bands ...string) Node {
	return Invoke("Image.select", map[string]Node{
		"input":         image,
		"bandSelectors": Constant(bands),
	})
}

// ReduceRegionMean reduces every band of image to its arithmetic mean over
// geometry.
func ReduceRegionMean(image, geometry Node, scale, maxPixels float64) Node {
	return Invoke("Image.reduceRegion", map[string]Node{
		"image":     image,
		"reducer":   Invoke("Reducer.mean", nil),
		"geometry":  geometry,
		"scale":     Constant(scale),
		"maxPixels": Constant(maxPixels),
	})
}
