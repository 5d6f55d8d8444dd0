package flatgeobuf

import (
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/twpayne/go-geom"

	"github.com/tingold/vectorio"
)

// fgbGeometryType converts a layer geometry type to its FlatGeobuf GeometryType.
func fgbGeometryType(t vectorio.GeometryType) flattypes.GeometryType {
	switch t {
	case vectorio.GeometryPoint:
		return flattypes.GeometryTypePoint
	case vectorio.GeometryLineString:
		return flattypes.GeometryTypeLineString
	case vectorio.GeometryPolygon:
		return flattypes.GeometryTypePolygon
	case vectorio.GeometryMultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case vectorio.GeometryMultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case vectorio.GeometryMultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// layerGeometryType is the inverse of fgbGeometryType. Types vectorio has no
// name for map to GeometryUnknown.
func layerGeometryType(t flattypes.GeometryType) vectorio.GeometryType {
	switch t {
	case flattypes.GeometryTypePoint:
		return vectorio.GeometryPoint
	case flattypes.GeometryTypeLineString:
		return vectorio.GeometryLineString
	case flattypes.GeometryTypePolygon:
		return vectorio.GeometryPolygon
	case flattypes.GeometryTypeMultiPoint:
		return vectorio.GeometryMultiPoint
	case flattypes.GeometryTypeMultiLineString:
		return vectorio.GeometryMultiLineString
	case flattypes.GeometryTypeMultiPolygon:
		return vectorio.GeometryMultiPolygon
	default:
		return vectorio.GeometryUnknown
	}
}

// geometryToFGB converts a go-geom geometry to a FlatGeobuf writer.Geometry.
// A nil geometry is written as an empty geometry of type fallback.
func geometryToFGB(g geom.T, fallback flattypes.GeometryType, builder *flatbuffers.Builder) (*writer.Geometry, error) {
	fg := writer.NewGeometry(builder)
	if g == nil {
		fg.SetType(fallback)
		return fg, nil
	}

	switch v := g.(type) {
	case *geom.Point:
		fg.SetType(flattypes.GeometryTypePoint)
		setCoords(fg, v.FlatCoords(), v.Layout())

	case *geom.MultiPoint:
		fg.SetType(flattypes.GeometryTypeMultiPoint)
		setCoords(fg, v.FlatCoords(), v.Layout())

	case *geom.LineString:
		fg.SetType(flattypes.GeometryTypeLineString)
		setCoords(fg, v.FlatCoords(), v.Layout())

	case *geom.MultiLineString:
		fg.SetType(flattypes.GeometryTypeMultiLineString)
		setCoords(fg, v.FlatCoords(), v.Layout())
		fg.SetEnds(pointEnds(v.Ends(), v.Stride()))

	case *geom.Polygon:
		fg.SetType(flattypes.GeometryTypePolygon)
		setCoords(fg, v.FlatCoords(), v.Layout())
		if !v.Empty() {
			fg.SetEnds(pointEnds(v.Ends(), v.Stride()))
		}

	case *geom.MultiPolygon:
		fg.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, v.NumPolygons())
		for i := 0; i < v.NumPolygons(); i++ {
			poly := v.Polygon(i)
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			setCoords(pg, poly.FlatCoords(), poly.Layout())
			if !poly.Empty() {
				pg.SetEnds(pointEnds(poly.Ends(), poly.Stride()))
			}
			parts = append(parts, *pg)
		}
		fg.SetParts(parts)

	default:
		return nil, ErrUnsupportedType
	}

	return fg, nil
}

// setCoords splits go-geom flat coordinates into the xy and z arrays.
func setCoords(fg *writer.Geometry, flat []float64, layout geom.Layout) {
	stride := layout.Stride()
	if stride == 0 || len(flat) == 0 {
		return
	}
	n := len(flat) / stride
	xy := make([]float64, 0, n*2)
	zi := layout.ZIndex()
	var z []float64
	if zi >= 0 {
		z = make([]float64, 0, n)
	}
	for i := 0; i+stride <= len(flat); i += stride {
		xy = append(xy, flat[i], flat[i+1])
		if zi >= 0 {
			z = append(z, flat[i+zi])
		}
	}
	fg.SetXY(xy)
	if z != nil {
		fg.SetZ(z)
	}
}

// pointEnds converts go-geom ends, counted in flat coordinates, to
// FlatGeobuf ends, counted in points.
func pointEnds(ends []int, stride int) []uint32 {
	out := make([]uint32, len(ends))
	for i, e := range ends {
		out[i] = uint32(e / stride)
	}
	return out
}

// geometryFromFGB converts a FlatGeobuf geometry to go-geom. Features of files
// with a fixed geometry type may omit their own type, in which case
// headerType is used. Unsupported types yield nil.
func geometryFromFGB(fg *flattypes.Geometry, headerType flattypes.GeometryType) geom.T {
	if fg == nil {
		return nil
	}

	typ := fg.Type()
	if typ == flattypes.GeometryTypeUnknown {
		typ = headerType
	}
	hasZ := fg.ZLength() > 0

	switch typ {
	case flattypes.GeometryTypePoint:
		layout, flat := readCoords(fg, hasZ)
		return geom.NewPointFlatMaybeEmpty(layout, flat)

	case flattypes.GeometryTypeMultiPoint:
		layout, flat := readCoords(fg, hasZ)
		return geom.NewMultiPointFlat(layout, flat)

	case flattypes.GeometryTypeLineString:
		layout, flat := readCoords(fg, hasZ)
		return geom.NewLineStringFlat(layout, flat)

	case flattypes.GeometryTypeMultiLineString:
		layout, flat := readCoords(fg, hasZ)
		return geom.NewMultiLineStringFlat(layout, flat, readEnds(fg, layout.Stride(), 0))

	case flattypes.GeometryTypePolygon:
		layout, flat := readCoords(fg, hasZ)
		return geom.NewPolygonFlat(layout, flat, readEnds(fg, layout.Stride(), 0))

	case flattypes.GeometryTypeMultiPolygon:
		return multiPolygonFromParts(fg)

	default:
		return nil
	}
}

// readCoords interleaves the xy and z arrays. Missing z values read as 0 when
// hasZ is set.
func readCoords(fg *flattypes.Geometry, hasZ bool) (geom.Layout, []float64) {
	layout := geom.XY
	if hasZ {
		layout = geom.XYZ
	}
	n := fg.XyLength() / 2
	zLen := fg.ZLength()
	flat := make([]float64, 0, n*layout.Stride())
	for i := 0; i < n; i++ {
		flat = append(flat, fg.Xy(2*i), fg.Xy(2*i+1))
		if hasZ {
			z := 0.0
			if i < zLen {
				z = fg.Z(i)
			}
			flat = append(flat, z)
		}
	}
	return layout, flat
}

// readEnds returns go-geom ends shifted by base flat coordinates. A geometry
// without ends has a single part spanning every point.
func readEnds(fg *flattypes.Geometry, stride, base int) []int {
	endsLen := fg.EndsLength()
	if endsLen == 0 {
		n := fg.XyLength() / 2
		if n == 0 {
			return nil
		}
		return []int{base + n*stride}
	}
	ends := make([]int, endsLen)
	for i := 0; i < endsLen; i++ {
		ends[i] = base + int(fg.Ends(i))*stride
	}
	return ends
}

func multiPolygonFromParts(fg *flattypes.Geometry) *geom.MultiPolygon {
	partsLen := fg.PartsLength()
	if partsLen == 0 {
		// Fallback: treat as single polygon
		layout, flat := readCoords(fg, fg.ZLength() > 0)
		if len(flat) == 0 {
			return geom.NewMultiPolygon(layout)
		}
		return geom.NewMultiPolygonFlat(layout, flat, [][]int{readEnds(fg, layout.Stride(), 0)})
	}

	parts := make([]flattypes.Geometry, 0, partsLen)
	hasZ := false
	for i := 0; i < partsLen; i++ {
		var part flattypes.Geometry
		if fg.Parts(&part, i) {
			parts = append(parts, part)
			hasZ = hasZ || part.ZLength() > 0
		}
	}

	layout := geom.XY
	if hasZ {
		layout = geom.XYZ
	}
	var (
		flat  []float64
		endss [][]int
	)
	for i := range parts {
		_, coords := readCoords(&parts[i], hasZ)
		endss = append(endss, readEnds(&parts[i], layout.Stride(), len(flat)))
		flat = append(flat, coords...)
	}
	return geom.NewMultiPolygonFlat(layout, flat, endss)
}

// bounds returns the 2D bounding box of g. ok is false for nil and empty
// geometries.
func bounds(g geom.T) (b [4]float64, ok bool) {
	if g == nil || g.Empty() {
		return b, false
	}
	gb := g.Bounds()
	return [4]float64{gb.Min(0), gb.Min(1), gb.Max(0), gb.Max(1)}, true
}

// envelope accumulates bounding boxes.
type envelope struct {
	b   [4]float64
	set bool
}

func (e *envelope) extend(b [4]float64) {
	if !e.set {
		e.b, e.set = b, true
		return
	}
	e.b[0] = min(e.b[0], b[0])
	e.b[1] = min(e.b[1], b[1])
	e.b[2] = max(e.b[2], b[2])
	e.b[3] = max(e.b[3], b[3])
}
