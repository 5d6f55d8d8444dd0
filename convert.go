package vectorio

import (
	"github.com/twpayne/go-geom"
)

// fromExternal converts an absolute go-geom geometry into the local frame.
// Only line strings and polygons are accepted; ok is false for everything
// else, including empty geometries.
func fromExternal(g geom.T, off *CoordinateOffset, baseElevation float32) (Geometry, bool) {
	if g == nil || g.Empty() {
		return nil, false
	}
	conv := converter{off: off, base: baseElevation, stride: g.Stride(), hasZ: g.Layout().ZIndex() >= 0}
	switch g := g.(type) {
	case *geom.LineString:
		return LineString(conv.points(g.FlatCoords())), true
	case *geom.Polygon:
		var poly Polygon
		for i := 0; i < g.NumLinearRings(); i++ {
			ring := Ring(conv.points(openRing(g.LinearRing(i).FlatCoords(), conv.stride)))
			if i == 0 {
				poly.Exterior = ring
			} else {
				poly.Interiors = append(poly.Interiors, ring)
			}
		}
		return poly.Normalize(), true
	}
	return nil, false
}

type converter struct {
	off    *CoordinateOffset
	base   float32
	stride int
	hasZ   bool
}

func (c converter) points(flat []float64) []Point3 {
	pts := make([]Point3, 0, len(flat)/c.stride)
	for i := 0; i+c.stride <= len(flat); i += c.stride {
		x, y, z := flat[i], flat[i+1], 0.0
		if c.hasZ {
			z = flat[i+2]
		}
		c.off.GetOrInit(x, y, z)
		p := c.off.ToLocal(x, y, z)
		p[2] += c.base
		pts = append(pts, p)
	}
	return pts
}

// openRing drops the closing vertex of a ring when it repeats the first one.
func openRing(flat []float64, stride int) []float64 {
	n := len(flat)
	if n < 2*stride {
		return flat
	}
	for i := 0; i < stride; i++ {
		if flat[i] != flat[n-stride+i] {
			return flat
		}
	}
	return flat[:n-stride]
}

// externalType is the layer geometry type used for a run of kind k.
func externalType(k GeometryKind) GeometryType {
	switch k {
	case LineStringKind:
		return GeometryLineString
	case PolygonKind:
		return GeometryPolygon
	case MeshKind:
		return GeometryMultiPolygon
	}
	return GeometryUnknown
}

// runKind is the kind of run whose output matches a layer of type t.
func runKind(t GeometryType) GeometryKind {
	switch t {
	case GeometryLineString:
		return LineStringKind
	case GeometryPolygon:
		return PolygonKind
	case GeometryMultiPolygon:
		return MeshKind
	}
	return NoGeometry
}

// emptyExternal returns the empty geometry written for a row without one.
func emptyExternal(k GeometryKind) geom.T {
	switch k {
	case LineStringKind:
		return geom.NewLineString(geom.XYZ)
	case PolygonKind:
		return geom.NewPolygon(geom.XYZ)
	case MeshKind:
		return geom.NewMultiPolygon(geom.XYZ)
	}
	return nil
}

// toExternal converts local geometry into absolute XYZ coordinates. Rings
// are closed and wound CCW exterior / CW holes, or the reverse when
// cwExterior is set.
func toExternal(g Geometry, off *CoordinateOffset, cwExterior bool) geom.T {
	switch g := g.(type) {
	case LineString:
		return geom.NewLineString(geom.XYZ).MustSetCoords(absCoords(g, off))
	case Polygon:
		return geom.NewPolygon(geom.XYZ).MustSetCoords(polygonCoords(g, off, cwExterior))
	case TriangleMesh:
		return meshToExternal(g.Triangles(), off, cwExterior)
	}
	return nil
}

// meshToExternal writes triangles as a multipolygon of single ring polygons.
func meshToExternal(tris []Triangle, off *CoordinateOffset, cwExterior bool) *geom.MultiPolygon {
	coords := make([][][]geom.Coord, len(tris))
	for i, t := range tris {
		coords[i] = polygonCoords(Polygon{Exterior: Ring(t[:])}, off, cwExterior)
	}
	return geom.NewMultiPolygon(geom.XYZ).MustSetCoords(coords)
}

func polygonCoords(p Polygon, off *CoordinateOffset, cwExterior bool) [][]geom.Coord {
	rings := make([][]geom.Coord, 0, 1+len(p.Interiors))
	rings = append(rings, closedCoords(NormalizeRing(p.Exterior, !cwExterior), off))
	for _, r := range p.Interiors {
		rings = append(rings, closedCoords(NormalizeRing(r, cwExterior), off))
	}
	return rings
}

func absCoords(pts []Point3, off *CoordinateOffset) []geom.Coord {
	coords := make([]geom.Coord, len(pts))
	for i, p := range pts {
		a := off.ToAbsolute(p)
		coords[i] = geom.Coord{a[0], a[1], a[2]}
	}
	return coords
}

func closedCoords(r Ring, off *CoordinateOffset) []geom.Coord {
	coords := absCoords(r, off)
	if len(coords) > 0 {
		coords = append(coords, coords[0])
	}
	return coords
}
