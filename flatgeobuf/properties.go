package flatgeobuf

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"

	"github.com/tingold/geopipe/geoerr"
	"github.com/tingold/geopipe/vector"
)

type column struct {
	name string
	typ  flattypes.ColumnType
}

// valueType is the column type a normalized attribute value is stored as.
// Nil values have no type and are not written.
func valueType(v any) (flattypes.ColumnType, bool) {
	switch v.(type) {
	case nil:
		return 0, false
	case bool:
		return flattypes.ColumnTypeBool, true
	case float64:
		return flattypes.ColumnTypeDouble, true
	case string:
		return flattypes.ColumnTypeString, true
	}
	return flattypes.ColumnTypeJson, true
}

// schema derives the columns from the attributes of rows, in name order.
// A key holding values of different types is stored as Json so every value
// survives a round trip.
func schema(rows []vector.Row) []column {
	types := make(map[string]flattypes.ColumnType)
	for _, r := range rows {
		for k, v := range r.Attributes {
			t, ok := valueType(v)
			if !ok {
				continue
			}
			if prev, seen := types[k]; seen && prev != t {
				t = flattypes.ColumnTypeJson
			}
			types[k] = t
		}
	}

	cols := make([]column, 0, len(types))
	for k, t := range types {
		cols = append(cols, column{name: k, typ: t})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].name < cols[j].name })
	return cols
}

// encodeProperties writes attrs as [uint16 column index][value] pairs in
// column order. Strings and Json are prefixed with their uint32 byte length.
func encodeProperties(attrs map[string]any, cols []column) ([]byte, error) {
	var buf []byte
	for i, c := range cols {
		v, ok := attrs[c.name]
		if !ok || v == nil {
			continue
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(i))

		switch c.typ {
		case flattypes.ColumnTypeBool:
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("%q: %T in Bool column: %w", c.name, v, ErrInvalidColumn)
			}
			if b {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case flattypes.ColumnTypeDouble:
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("%q: %T in Double column: %w", c.name, v, ErrInvalidColumn)
			}
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
		case flattypes.ColumnTypeString:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%q: %T in String column: %w", c.name, v, ErrInvalidColumn)
			}
			buf = appendSized(buf, []byte(s))
		case flattypes.ColumnTypeJson:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", c.name, err)
			}
			buf = appendSized(buf, raw)
		default:
			return nil, fmt.Errorf("%q: column type %d: %w", c.name, c.typ, ErrInvalidColumn)
		}
	}
	return buf, nil
}

func appendSized(buf, b []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// decodeProperties reads the property buffer of one feature against the
// header columns.
func decodeProperties(data []byte, h *flattypes.Header) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	props := make(map[string]any)
	for off := 0; off < len(data); {
		if off+2 > len(data) {
			return nil, fmt.Errorf("flatgeobuf: truncated column index: %w", geoerr.ErrDecode)
		}
		idx := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2

		var col flattypes.Column
		if idx >= h.ColumnsLength() || !h.Columns(&col, idx) {
			return nil, fmt.Errorf("flatgeobuf: column %d out of range: %w", idx, geoerr.ErrDecode)
		}

		v, n, err := readValue(data[off:], col.Type())
		if err != nil {
			return nil, fmt.Errorf("flatgeobuf: column %q: %w", col.Name(), err)
		}
		props[string(col.Name())] = v
		off += n
	}
	return props, nil
}

var fixedSize = map[flattypes.ColumnType]int{
	flattypes.ColumnTypeBool:   1,
	flattypes.ColumnTypeByte:   1,
	flattypes.ColumnTypeUByte:  1,
	flattypes.ColumnTypeShort:  2,
	flattypes.ColumnTypeUShort: 2,
	flattypes.ColumnTypeInt:    4,
	flattypes.ColumnTypeUInt:   4,
	flattypes.ColumnTypeFloat:  4,
	flattypes.ColumnTypeLong:   8,
	flattypes.ColumnTypeULong:  8,
	flattypes.ColumnTypeDouble: 8,
}

// readValue decodes one value and reports how many bytes it used. Integer
// columns come back as their Go width; vector.New widens them to float64.
func readValue(data []byte, t flattypes.ColumnType) (any, int, error) {
	if n, ok := fixedSize[t]; ok {
		if len(data) < n {
			return nil, 0, fmt.Errorf("truncated %s value: %w", flattypes.EnumNamesColumnType[t], geoerr.ErrDecode)
		}
		le := binary.LittleEndian
		switch t {
		case flattypes.ColumnTypeBool:
			return data[0] != 0, n, nil
		case flattypes.ColumnTypeByte:
			return int8(data[0]), n, nil
		case flattypes.ColumnTypeUByte:
			return data[0], n, nil
		case flattypes.ColumnTypeShort:
			return int16(le.Uint16(data)), n, nil
		case flattypes.ColumnTypeUShort:
			return le.Uint16(data), n, nil
		case flattypes.ColumnTypeInt:
			return int32(le.Uint32(data)), n, nil
		case flattypes.ColumnTypeUInt:
			return le.Uint32(data), n, nil
		case flattypes.ColumnTypeFloat:
			return math.Float32frombits(le.Uint32(data)), n, nil
		case flattypes.ColumnTypeLong:
			return int64(le.Uint64(data)), n, nil
		case flattypes.ColumnTypeULong:
			return le.Uint64(data), n, nil
		default:
			return math.Float64frombits(le.Uint64(data)), n, nil
		}
	}

	switch t {
	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime, flattypes.ColumnTypeJson, flattypes.ColumnTypeBinary:
	default:
		return nil, 0, fmt.Errorf("column type %d: %w", t, geoerr.ErrDecode)
	}

	if len(data) < 4 {
		return nil, 0, fmt.Errorf("truncated length prefix: %w", geoerr.ErrDecode)
	}
	size := int(binary.LittleEndian.Uint32(data))
	if size > len(data)-4 {
		return nil, 0, fmt.Errorf("value of %d bytes exceeds buffer: %w", size, geoerr.ErrDecode)
	}
	raw := data[4 : 4+size]
	n := 4 + size

	switch t {
	case flattypes.ColumnTypeJson:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, 0, fmt.Errorf("%v: %w", err, geoerr.ErrDecode)
		}
		return v, n, nil
	case flattypes.ColumnTypeBinary:
		return base64.StdEncoding.EncodeToString(raw), n, nil
	}
	return string(raw), n, nil
}
