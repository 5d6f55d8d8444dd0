package shapefile

import (
	"fmt"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-geom"

	"github.com/tingold/vectorio"
)

// shapeType returns the shape type that stores geometries of type t.
func shapeType(t vectorio.GeometryType) shp.ShapeType {
	switch t {
	case vectorio.GeometryPoint:
		return shp.POINTZ
	case vectorio.GeometryMultiPoint:
		return shp.MULTIPOINTZ
	case vectorio.GeometryLineString, vectorio.GeometryMultiLineString:
		return shp.POLYLINEZ
	case vectorio.GeometryPolygon, vectorio.GeometryMultiPolygon:
		return shp.POLYGONZ
	}
	return shp.NULL
}

// geometryType returns the layer type reported for a shape type. Polygon
// files report Polygon even though records may hold several outer rings.
func geometryType(st shp.ShapeType) vectorio.GeometryType {
	switch st {
	case shp.POINT, shp.POINTZ, shp.POINTM:
		return vectorio.GeometryPoint
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return vectorio.GeometryMultiPoint
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return vectorio.GeometryLineString
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return vectorio.GeometryPolygon
	}
	return vectorio.GeometryUnknown
}

// toShape encodes g as a shape of type st. Nil geometries become shapes
// without parts, which read back as nil.
func toShape(g geom.T, st shp.ShapeType) (shp.Shape, error) {
	switch st {
	case shp.NULL:
		if g != nil {
			return nil, fmt.Errorf("%w: geometry in a layer without geometry type", vectorio.ErrUnsupportedGeometry)
		}
		return &shp.Null{}, nil

	case shp.POINTZ:
		p, ok := g.(*geom.Point)
		if !ok || p.Empty() {
			return nil, fmt.Errorf("%w: %T in a point layer", vectorio.ErrUnsupportedGeometry, g)
		}
		c := p.Coords()
		return &shp.PointZ{X: c.X(), Y: c.Y(), Z: z(c, p.Layout())}, nil

	case shp.MULTIPOINTZ:
		var coords []geom.Coord
		var layout geom.Layout
		switch v := g.(type) {
		case nil:
		case *geom.MultiPoint:
			coords, layout = v.Coords(), v.Layout()
		case *geom.Point:
			coords, layout = []geom.Coord{v.Coords()}, v.Layout()
		default:
			return nil, fmt.Errorf("%w: %T in a multipoint layer", vectorio.ErrUnsupportedGeometry, g)
		}
		pts, zs := split(coords, layout)
		return &shp.MultiPointZ{
			Box:       shp.BBoxFromPoints(pts),
			NumPoints: int32(len(pts)),
			Points:    pts,
			ZRange:    zRange(zs),
			ZArray:    zs,
			MArray:    make([]float64, len(pts)),
		}, nil

	case shp.POLYLINEZ:
		var parts [][]geom.Coord
		var layout geom.Layout
		switch v := g.(type) {
		case nil:
		case *geom.LineString:
			parts, layout = [][]geom.Coord{v.Coords()}, v.Layout()
		case *geom.MultiLineString:
			parts, layout = v.Coords(), v.Layout()
		default:
			return nil, fmt.Errorf("%w: %T in a linestring layer", vectorio.ErrUnsupportedGeometry, g)
		}
		pl := multiPart(parts, layout)
		return pl, nil

	case shp.POLYGONZ:
		var rings [][]geom.Coord
		var layout geom.Layout
		switch v := g.(type) {
		case nil:
		case *geom.Polygon:
			rings, layout = v.Coords(), v.Layout()
		case *geom.MultiPolygon:
			layout = v.Layout()
			for _, p := range v.Coords() {
				rings = append(rings, p...)
			}
		default:
			return nil, fmt.Errorf("%w: %T in a polygon layer", vectorio.ErrUnsupportedGeometry, g)
		}
		pg := shp.PolygonZ(*multiPart(rings, layout))
		return &pg, nil
	}
	return nil, fmt.Errorf("%w: shape type %d", vectorio.ErrUnsupportedGeometry, st)
}

func multiPart(parts [][]geom.Coord, layout geom.Layout) *shp.PolyLineZ {
	pl := &shp.PolyLineZ{Parts: make([]int32, 0, len(parts))}
	var coords []geom.Coord
	for _, part := range parts {
		pl.Parts = append(pl.Parts, int32(len(coords)))
		coords = append(coords, part...)
	}
	pl.Points, pl.ZArray = split(coords, layout)
	pl.NumParts = int32(len(pl.Parts))
	pl.NumPoints = int32(len(pl.Points))
	pl.Box = shp.BBoxFromPoints(pl.Points)
	pl.ZRange = zRange(pl.ZArray)
	pl.MArray = make([]float64, len(pl.Points))
	return pl
}

func z(c geom.Coord, layout geom.Layout) float64 {
	if i := layout.ZIndex(); i >= 0 && i < len(c) {
		return c[i]
	}
	return 0
}

func split(coords []geom.Coord, layout geom.Layout) ([]shp.Point, []float64) {
	pts := make([]shp.Point, len(coords))
	zs := make([]float64, len(coords))
	for i, c := range coords {
		pts[i] = shp.Point{X: c.X(), Y: c.Y()}
		zs[i] = z(c, layout)
	}
	return pts, zs
}

func zRange(zs []float64) [2]float64 {
	var r [2]float64
	for i, v := range zs {
		if i == 0 || v < r[0] {
			r[0] = v
		}
		if i == 0 || v > r[1] {
			r[1] = v
		}
	}
	return r
}

// fromShape decodes s. Shapes without points yield nil.
func fromShape(s shp.Shape) (geom.T, error) {
	switch v := s.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Point:
		return geom.NewPoint(geom.XY).SetCoords(geom.Coord{v.X, v.Y})
	case *shp.PointZ:
		return geom.NewPoint(geom.XYZ).SetCoords(geom.Coord{v.X, v.Y, v.Z})
	case *shp.PointM:
		return geom.NewPoint(geom.XY).SetCoords(geom.Coord{v.X, v.Y})
	case *shp.MultiPoint:
		return multiPoint(join(v.Points, nil))
	case *shp.MultiPointZ:
		return multiPoint(join(v.Points, v.ZArray))
	case *shp.PolyLine:
		return lines(join(v.Points, nil), v.Parts)
	case *shp.PolyLineZ:
		return lines(join(v.Points, v.ZArray), v.Parts)
	case *shp.PolyLineM:
		return lines(join(v.Points, nil), v.Parts)
	case *shp.Polygon:
		return polygons(join(v.Points, nil), v.Parts)
	case *shp.PolygonZ:
		return polygons(join(v.Points, v.ZArray), v.Parts)
	case *shp.PolygonM:
		return polygons(join(v.Points, nil), v.Parts)
	}
	return nil, fmt.Errorf("%w: %T", vectorio.ErrUnsupportedGeometry, s)
}

// join pairs points with their elevation. Coordinates are XYZ only when zs
// is given.
func join(pts []shp.Point, zs []float64) []geom.Coord {
	coords := make([]geom.Coord, len(pts))
	for i, p := range pts {
		if zs == nil {
			coords[i] = geom.Coord{p.X, p.Y}
			continue
		}
		c := geom.Coord{p.X, p.Y, 0}
		if i < len(zs) {
			c[2] = zs[i]
		}
		coords[i] = c
	}
	return coords
}

func layoutOf(coords []geom.Coord) geom.Layout {
	if len(coords) > 0 && len(coords[0]) == 3 {
		return geom.XYZ
	}
	return geom.XY
}

func multiPoint(coords []geom.Coord) (geom.T, error) {
	if len(coords) == 0 {
		return nil, nil
	}
	return geom.NewMultiPoint(layoutOf(coords)).SetCoords(coords)
}

// partition cuts coords at the part start offsets.
func partition(coords []geom.Coord, parts []int32) ([][]geom.Coord, error) {
	out := make([][]geom.Coord, 0, len(parts))
	for i, start := range parts {
		end := int32(len(coords))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > int32(len(coords)) {
			return nil, fmt.Errorf("%w: bad part offsets %v", vectorio.ErrInvalidGeometry, parts)
		}
		out = append(out, coords[start:end])
	}
	return out, nil
}

func lines(coords []geom.Coord, parts []int32) (geom.T, error) {
	if len(coords) == 0 || len(parts) == 0 {
		return nil, nil
	}
	ls, err := partition(coords, parts)
	if err != nil {
		return nil, err
	}
	if len(ls) == 1 {
		return geom.NewLineString(layoutOf(coords)).SetCoords(ls[0])
	}
	return geom.NewMultiLineString(layoutOf(coords)).SetCoords(ls)
}

// polygons groups rings into polygons. Clockwise rings start a new polygon;
// counter-clockwise rings are holes of the polygon before them.
func polygons(coords []geom.Coord, parts []int32) (geom.T, error) {
	if len(coords) == 0 || len(parts) == 0 {
		return nil, nil
	}
	rings, err := partition(coords, parts)
	if err != nil {
		return nil, err
	}
	var polys [][][]geom.Coord
	for _, r := range rings {
		if len(polys) == 0 || orientation(r) != orb.CCW {
			polys = append(polys, [][]geom.Coord{r})
			continue
		}
		last := len(polys) - 1
		polys[last] = append(polys[last], r)
	}
	if len(polys) == 1 {
		return geom.NewPolygon(layoutOf(coords)).SetCoords(polys[0])
	}
	return geom.NewMultiPolygon(layoutOf(coords)).SetCoords(polys)
}

func orientation(ring []geom.Coord) orb.Orientation {
	r := make(orb.Ring, len(ring))
	for i, c := range ring {
		r[i] = orb.Point{c.X(), c.Y()}
	}
	return r.Orientation()
}
