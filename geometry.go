package vectorio

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Point3 is a coordinate in the local (offset) frame.
type Point3 [3]float32

// LineString is an ordered run of points.
type LineString []Point3

// Ring is a closed boundary stored without repeating its first point.
type Ring []Point3

// Polygon is an exterior ring with optional holes. After normalisation the
// exterior is counter-clockwise and every hole is clockwise.
type Polygon struct {
	Exterior  Ring
	Interiors []Ring
}

// Triangle is a single mesh face.
type Triangle [3]Point3

// MeshPart is a group of mesh faces. Labels, when present, hold one label per
// triangle.
type MeshPart struct {
	ID        string
	Triangles []Triangle
	Labels    []int64
}

// TriangleMesh is a triangulated surface split into parts.
type TriangleMesh struct {
	Parts []MeshPart
}

// GeometryKind identifies the variant held by a Geometry.
type GeometryKind uint8

const (
	NoGeometry GeometryKind = iota
	LineStringKind
	PolygonKind
	MeshKind
)

func (k GeometryKind) String() string {
	switch k {
	case LineStringKind:
		return "LineString"
	case PolygonKind:
		return "Polygon"
	case MeshKind:
		return "TriangleMesh"
	}
	return "None"
}

// Geometry is one of LineString, Polygon or TriangleMesh. A nil Geometry
// stands for an absent geometry.
type Geometry interface {
	Kind() GeometryKind
	geometry()
}

func (LineString) Kind() GeometryKind   { return LineStringKind }
func (Polygon) Kind() GeometryKind      { return PolygonKind }
func (TriangleMesh) Kind() GeometryKind { return MeshKind }

func (LineString) geometry()   {}
func (Polygon) geometry()      {}
func (TriangleMesh) geometry() {}

// KindOf returns the kind of g, NoGeometry for nil.
func KindOf(g Geometry) GeometryKind {
	if g == nil {
		return NoGeometry
	}
	return g.Kind()
}

func (r Ring) orb() orb.Ring {
	ring := make(orb.Ring, len(r))
	for i, p := range r {
		ring[i] = orb.Point{float64(p[0]), float64(p[1])}
	}
	return ring
}

// SignedArea returns the shoelace area of r: positive for counter-clockwise
// rings, negative for clockwise rings, zero for degenerate ones.
func SignedArea(r Ring) float64 {
	if len(r) < 3 {
		return 0
	}
	ring := r.orb()
	ring = append(ring, ring[0])
	_, area := planar.CentroidArea(ring)
	return area
}

// IsCCW reports whether r winds counter-clockwise.
func IsCCW(r Ring) bool {
	return len(r) >= 3 && r.orb().Orientation() == orb.CCW
}

// NormalizeRing returns r wound counter-clockwise when wantCCW is set and
// clockwise otherwise. Degenerate rings (fewer than three points or no area)
// are returned unchanged. The input is never modified.
func NormalizeRing(r Ring, wantCCW bool) Ring {
	if len(r) < 3 {
		return r
	}
	o := r.orb().Orientation()
	if o == 0 || (o == orb.CCW) == wantCCW {
		return r
	}
	rev := make(Ring, len(r))
	for i, p := range r {
		rev[len(r)-1-i] = p
	}
	return rev
}

// Normalize winds the exterior counter-clockwise and every hole clockwise.
func (p Polygon) Normalize() Polygon {
	out := Polygon{Exterior: NormalizeRing(p.Exterior, true)}
	if len(p.Interiors) > 0 {
		out.Interiors = make([]Ring, len(p.Interiors))
		for i, r := range p.Interiors {
			out.Interiors[i] = NormalizeRing(r, false)
		}
	}
	return out
}

// Area returns the area enclosed by the exterior ring.
func (p Polygon) Area() float64 {
	return math.Abs(SignedArea(p.Exterior))
}

// IsValid reports whether every ring has at least three points and a
// non-zero area.
func (p Polygon) IsValid() bool {
	if !validRing(p.Exterior) {
		return false
	}
	for _, r := range p.Interiors {
		if !validRing(r) {
			return false
		}
	}
	return true
}

func validRing(r Ring) bool {
	return len(r) >= 3 && SignedArea(r) != 0
}

// IsValid reports whether the line has at least two distinct points.
func (l LineString) IsValid() bool {
	for i := 1; i < len(l); i++ {
		if l[i] != l[0] {
			return true
		}
	}
	return false
}

// Exploded reports whether the mesh is written as one feature per part.
func (m TriangleMesh) Exploded() bool {
	if len(m.Parts) > 1 {
		return true
	}
	for _, p := range m.Parts {
		if p.ID != "" || len(p.Labels) > 0 {
			return true
		}
	}
	return false
}

// Triangles returns every face of the mesh in part order.
func (m TriangleMesh) Triangles() []Triangle {
	var n int
	for _, p := range m.Parts {
		n += len(p.Triangles)
	}
	tris := make([]Triangle, 0, n)
	for _, p := range m.Parts {
		tris = append(tris, p.Triangles...)
	}
	return tris
}
