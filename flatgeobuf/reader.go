package flatgeobuf

import (
	"bytes"
	"fmt"
	"os"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/index"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"github.com/tingold/vectorio"
)

// nodeItemSize is the encoded size of one packed R-tree node.
const nodeItemSize = 40

// Reader provides read access to a FlatGeobuf file held in memory.
type Reader struct {
	data           []byte
	header         *flattypes.Header
	columns        []column
	indexOffset    int
	featuresOffset int
}

// NewReader creates a reader from a file path.
func NewReader(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewReaderFromData(data)
}

// NewReaderFromData creates a reader from byte data.
func NewReaderFromData(data []byte) (*Reader, error) {
	magic := len(writer.MagicBytes)
	// Only the major version is checked; minor versions are compatible.
	if len(data) < magic+flatbuffers.SizeUOffsetT || !bytes.Equal(data[:4], writer.MagicBytes[:4]) {
		return nil, fmt.Errorf("%w: not a flatgeobuf file", ErrInvalidData)
	}

	headerSize := int(flatbuffers.GetUOffsetT(data[magic:]))
	offset := magic + flatbuffers.SizeUOffsetT + headerSize
	if offset > len(data) {
		return nil, fmt.Errorf("%w: truncated header", ErrInvalidData)
	}

	r := &Reader{
		data:   data,
		header: flattypes.GetSizePrefixedRootAsHeader(data, flatbuffers.UOffsetT(magic)),
	}
	r.columns = readColumns(r.header)

	r.indexOffset = offset
	if r.hasIndex() {
		offset += indexSize(r.header.FeaturesCount(), r.header.IndexNodeSize())
		if offset > len(data) {
			return nil, fmt.Errorf("%w: truncated index", ErrInvalidData)
		}
	}
	r.featuresOffset = offset

	return r, nil
}

func (r *Reader) hasIndex() bool {
	return r.header.IndexNodeSize() > 0 && r.header.FeaturesCount() > 0
}

// indexSize returns the size in bytes of a packed R-tree over count items.
// The tree always has a root above the leaves, even for a single item.
func indexSize(count uint64, nodeSize uint16) int {
	n := count
	numNodes := n
	for {
		n = (n + uint64(nodeSize) - 1) / uint64(nodeSize)
		numNodes += n
		if n == 1 {
			break
		}
	}
	return int(numNodes) * nodeItemSize
}

// Header returns metadata about the FlatGeobuf file.
func (r *Reader) Header() *Header {
	h := r.header

	header := &Header{
		Name:          string(h.Name()),
		Title:         string(h.Title()),
		Description:   string(h.Description()),
		HasZ:          h.HasZ(),
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      r.hasIndex(),
	}

	// Geometry type
	header.GeometryType = flattypes.EnumNamesGeometryType[h.GeometryType()]

	// Envelope
	if h.EnvelopeLength() >= 4 {
		header.Envelope = [4]float64{
			h.Envelope(0),
			h.Envelope(1),
			h.Envelope(2),
			h.Envelope(3),
		}
	}

	// CRS
	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		header.CRS = &CRS{
			Org:         string(crs.Org()),
			Code:        int(crs.Code()),
			Name:        string(crs.Name()),
			Description: string(crs.Description()),
			WKT:         string(crs.Wkt()),
		}
		// The writer has no WKT setter, so WKT without a code travels in
		// the description.
		if header.CRS.WKT == "" && header.CRS.Code == 0 {
			header.CRS.WKT = header.CRS.Description
		}
	}

	// Columns
	colLen := h.ColumnsLength()
	if colLen > 0 {
		header.Columns = make([]ColumnInfo, 0, colLen)
		for i := 0; i < colLen; i++ {
			var col flattypes.Column
			if h.Columns(&col, i) {
				header.Columns = append(header.Columns, ColumnInfo{
					Name:        string(col.Name()),
					Type:        flattypes.EnumNamesColumnType[col.Type()],
					Title:       string(col.Title()),
					Description: string(col.Description()),
					Nullable:    col.Nullable(),
					Metadata:    string(col.Metadata()),
				})
			}
		}
	}

	return header
}

// GeometryType returns the declared geometry type of the layer.
func (r *Reader) GeometryType() vectorio.GeometryType {
	return layerGeometryType(r.header.GeometryType())
}

// Fields returns the field catalog derived from the header columns.
func (r *Reader) Fields() []vectorio.FieldDefn {
	fields := make([]vectorio.FieldDefn, len(r.columns))
	for i, c := range r.columns {
		fields[i] = c.field
	}
	return fields
}

// SRS returns the reference system as AUTHORITY:CODE or WKT.
func (r *Reader) SRS() string {
	return r.Header().CRS.String()
}

// Features iterates the features in file order.
func (r *Reader) Features() vectorio.FeatureIterator {
	return &featureIterator{r: r, offset: r.featuresOffset}
}

// ReadAll reads every feature in file order.
func (r *Reader) ReadAll() ([]vectorio.Record, error) {
	var recs []vectorio.Record
	if n := r.header.FeaturesCount(); n > 0 {
		recs = make([]vectorio.Record, 0, n)
	}
	it := r.Features()
	for it.Next() {
		recs = append(recs, it.Record())
	}
	return recs, it.Err()
}

// Search performs a spatial query using the built-in index.
// Returns features whose bounding boxes intersect the query bounds, in file
// order. FIDs are the features' positions in the file.
func (r *Reader) Search(b orb.Bound) ([]vectorio.Record, error) {
	if !r.hasIndex() {
		return nil, ErrNoIndex
	}

	tree := index.NewPackedRTreeFromData(r.data[r.indexOffset:r.featuresOffset],
		r.header.FeaturesCount(), r.header.IndexNodeSize(), false)
	hits := tree.Search(b.Min[0], b.Min[1], b.Max[0], b.Max[1])

	recs := make([]vectorio.Record, 0, len(hits))
	for _, hit := range hits {
		offset := r.featuresOffset + int(hit.Offset)
		if offset+flatbuffers.SizeUOffsetT > len(r.data) {
			return nil, fmt.Errorf("%w: feature offset %d out of range", ErrInvalidData, hit.Offset)
		}
		f := flattypes.GetSizePrefixedRootAsFeature(r.data, flatbuffers.UOffsetT(offset))
		rec, err := r.decode(f, int64(hit.Index))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// decode converts a FlatGeobuf feature to a record.
func (r *Reader) decode(f *flattypes.Feature, fid int64) (vectorio.Record, error) {
	rec := vectorio.Record{FID: fid}

	var geomObj flattypes.Geometry
	// Features written without geometry carry an empty one.
	if fg := f.Geometry(&geomObj); fg != nil {
		if g := geometryFromFGB(fg, r.header.GeometryType()); g != nil && !g.Empty() {
			rec.Geometry = g
		}
	}

	values, err := decodeProperties(f.PropertiesBytes(), r.columns)
	if err != nil {
		return vectorio.Record{}, fmt.Errorf("feature %d: %w", fid, err)
	}
	rec.Values = values
	return rec, nil
}

// Close releases the file contents.
func (r *Reader) Close() error {
	r.data = nil
	return nil
}

// featureIterator walks the size prefixed features after the header and
// index.
type featureIterator struct {
	r      *Reader
	offset int
	fid    int64
	rec    vectorio.Record
	err    error
}

func (it *featureIterator) Next() bool {
	if it.err != nil {
		return false
	}
	data := it.r.data
	if it.offset+flatbuffers.SizeUOffsetT > len(data) {
		return false
	}
	size := int(flatbuffers.GetUOffsetT(data[it.offset:]))
	end := it.offset + flatbuffers.SizeUOffsetT + size
	if end > len(data) {
		it.err = fmt.Errorf("%w: truncated feature %d", ErrInvalidData, it.fid)
		return false
	}

	f := flattypes.GetSizePrefixedRootAsFeature(data, flatbuffers.UOffsetT(it.offset))
	it.offset = end
	it.rec, it.err = it.r.decode(f, it.fid)
	it.fid++
	return it.err == nil
}

func (it *featureIterator) Record() vectorio.Record { return it.rec }
func (it *featureIterator) Err() error              { return it.err }
