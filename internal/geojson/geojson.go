// Package geojson renders vectorio records as GeoJSON features.
package geojson

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geom"

	"github.com/tingold/vectorio"
)

// Geometry converts a go-geom geometry to its orb counterpart. Z values are
// dropped. Nil and unsupported geometries yield nil.
func Geometry(g geom.T) orb.Geometry {
	switch v := g.(type) {
	case *geom.Point:
		if v.Empty() {
			return nil
		}
		return orb.Point{v.X(), v.Y()}
	case *geom.MultiPoint:
		return orb.MultiPoint(points(v.FlatCoords(), v.Stride()))
	case *geom.LineString:
		return orb.LineString(points(v.FlatCoords(), v.Stride()))
	case *geom.MultiLineString:
		mls := make(orb.MultiLineString, v.NumLineStrings())
		for i := range mls {
			ls := v.LineString(i)
			mls[i] = points(ls.FlatCoords(), ls.Stride())
		}
		return mls
	case *geom.Polygon:
		return polygon(v)
	case *geom.MultiPolygon:
		mp := make(orb.MultiPolygon, v.NumPolygons())
		for i := range mp {
			mp[i] = polygon(v.Polygon(i))
		}
		return mp
	}
	return nil
}

func points(flat []float64, stride int) []orb.Point {
	if stride == 0 {
		return nil
	}
	pts := make([]orb.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		pts = append(pts, orb.Point{flat[i], flat[i+1]})
	}
	return pts
}

func polygon(p *geom.Polygon) orb.Polygon {
	poly := make(orb.Polygon, p.NumLinearRings())
	for i := range poly {
		r := p.LinearRing(i)
		poly[i] = orb.Ring(points(r.FlatCoords(), r.Stride()))
	}
	return poly
}

// Feature converts rec to a GeoJSON feature. Properties are keyed by field
// name; absent values are left out.
func Feature(rec vectorio.Record, fields []vectorio.FieldDefn) *geojson.Feature {
	f := geojson.NewFeature(Geometry(rec.Geometry))
	f.ID = rec.FID
	for i, v := range rec.Values {
		if i >= len(fields) || v.IsAbsent() {
			continue
		}
		f.Properties[fields[i].Name] = v.Interface()
	}
	return f
}

// FeatureCollection reads every feature of layer into a collection.
func FeatureCollection(layer vectorio.Layer) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	fields := layer.Fields()
	it := layer.Features()
	for it.Next() {
		fc.Append(Feature(it.Record(), fields))
	}
	return fc, it.Err()
}

// Records converts recs to a collection.
func Records(recs []vectorio.Record, fields []vectorio.FieldDefn) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, rec := range recs {
		fc.Append(Feature(rec, fields))
	}
	return fc
}
