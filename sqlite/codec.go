package sqlite

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/tingold/vectorio"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// encodeGeometry returns the little endian WKB of g. Missing and empty
// geometries are stored as NULL.
func encodeGeometry(g geom.T) (interface{}, error) {
	if g == nil || g.Empty() {
		return nil, nil
	}
	b, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vectorio.ErrInvalidGeometry, err)
	}
	return b, nil
}

func decodeGeometry(raw interface{}) (geom.T, error) {
	b, ok := raw.([]byte)
	if !ok || len(b) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vectorio.ErrInvalidGeometry, err)
	}
	return g, nil
}

// encodeValue converts v to the value bound for a column of field d.
func encodeValue(v vectorio.Value, d vectorio.FieldDefn) (interface{}, error) {
	k := vectorio.FieldKind(d)
	if v.IsAbsent() || k == vectorio.KindAbsent {
		return nil, nil
	}
	v, err := vectorio.Coerce(v, k)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", d.Name, err)
	}
	switch k {
	case vectorio.KindBool:
		if v.Bool() {
			return int64(1), nil
		}
		return int64(0), nil
	case vectorio.KindInt:
		return v.Int(), nil
	case vectorio.KindFloat:
		return float64(v.Float()), nil
	case vectorio.KindIntList:
		b, err := json.Marshal(v.IntList())
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v.Text(), nil
}

// decodeValue converts a scanned column of field d.
func decodeValue(raw interface{}, d vectorio.FieldDefn) (vectorio.Value, error) {
	k := vectorio.FieldKind(d)
	if raw == nil || k == vectorio.KindAbsent {
		return vectorio.Value{}, nil
	}
	switch x := raw.(type) {
	case int64:
		switch k {
		case vectorio.KindBool:
			return vectorio.BoolValue(x != 0), nil
		case vectorio.KindInt:
			return vectorio.IntValue(x), nil
		case vectorio.KindFloat:
			return vectorio.FloatValue(float32(x)), nil
		}
	case float64:
		if k == vectorio.KindFloat {
			return vectorio.FloatValue(float32(x)), nil
		}
	case []byte:
		raw = string(x)
	}

	s, ok := raw.(string)
	if !ok {
		return vectorio.Value{}, fmt.Errorf("field %s: %w: stored %T", d.Name, vectorio.ErrKindMismatch, raw)
	}
	if k == vectorio.KindIntList {
		var l []int64
		if err := json.UnmarshalFromString(s, &l); err != nil {
			return vectorio.Value{}, fmt.Errorf("field %s: %w", d.Name, err)
		}
		return vectorio.IntListValue(l), nil
	}
	v, err := vectorio.ParseValue(s, k)
	if err != nil {
		return vectorio.Value{}, fmt.Errorf("field %s: %w", d.Name, err)
	}
	return v, nil
}
