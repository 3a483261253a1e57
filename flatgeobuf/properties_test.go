package flatgeobuf

import (
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"

	"github.com/tingold/geopipe/geoerr"
	"github.com/tingold/geopipe/vector"
)

func TestValueType(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected flattypes.ColumnType
		ok       bool
	}{
		{"nil", nil, 0, false},
		{"bool", true, flattypes.ColumnTypeBool, true},
		{"float64", 3.14159, flattypes.ColumnTypeDouble, true},
		{"string", "hello", flattypes.ColumnTypeString, true},
		{"map", map[string]any{"key": "value"}, flattypes.ColumnTypeJson, true},
		{"slice", []any{1.0, 2.0}, flattypes.ColumnTypeJson, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := valueType(tt.value)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("expected %v/%v, got %v/%v", tt.expected, tt.ok, got, ok)
			}
		})
	}
}

func TestSchema(t *testing.T) {
	rows := []vector.Row{
		{Geometry: orb.Point{}, Attributes: map[string]any{"b": 1.0, "a": "x", "n": nil}},
		{Geometry: orb.Point{}, Attributes: map[string]any{"b": 2.0, "c": true}},
		{Geometry: orb.Point{}, Attributes: map[string]any{"a": 5.0}},
	}

	expected := []column{
		{"a", flattypes.ColumnTypeJson},
		{"b", flattypes.ColumnTypeDouble},
		{"c", flattypes.ColumnTypeBool},
	}
	if got := schema(rows); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestEncodeProperties(t *testing.T) {
	cols := []column{
		{"active", flattypes.ColumnTypeBool},
		{"depth", flattypes.ColumnTypeDouble},
		{"meta", flattypes.ColumnTypeJson},
		{"name", flattypes.ColumnTypeString},
	}
	attrs := map[string]any{
		"active": true,
		"depth":  -12.5,
		"meta":   map[string]any{"k": []any{1.0, "two"}},
		"name":   "well-7",
	}

	data, err := encodeProperties(attrs, cols)
	if err != nil {
		t.Fatalf("encodeProperties failed: %v", err)
	}

	got := make(map[string]any)
	for off := 0; off < len(data); {
		idx := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		v, n, err := readValue(data[off:], cols[idx].typ)
		if err != nil {
			t.Fatalf("readValue failed: %v", err)
		}
		got[cols[idx].name] = v
		off += n
	}

	if !reflect.DeepEqual(got, attrs) {
		t.Errorf("expected %v, got %v", attrs, got)
	}
}

func TestEncodeProperties_SkipsMissingAndNil(t *testing.T) {
	cols := []column{{"a", flattypes.ColumnTypeDouble}, {"b", flattypes.ColumnTypeString}}
	data, err := encodeProperties(map[string]any{"b": nil}, cols)
	if err != nil {
		t.Fatalf("encodeProperties failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected no bytes, got %d", len(data))
	}
}

func TestEncodeProperties_TypeMismatch(t *testing.T) {
	cols := []column{{"a", flattypes.ColumnTypeDouble}}
	_, err := encodeProperties(map[string]any{"a": "text"}, cols)
	if !errors.Is(err, ErrInvalidColumn) {
		t.Errorf("expected ErrInvalidColumn, got %v", err)
	}
}

func TestReadValue_Fixed(t *testing.T) {
	le := binary.LittleEndian
	tests := []struct {
		name     string
		typ      flattypes.ColumnType
		data     []byte
		expected any
	}{
		{"byte", flattypes.ColumnTypeByte, []byte{0xfe}, int8(-2)},
		{"ubyte", flattypes.ColumnTypeUByte, []byte{0xfe}, uint8(254)},
		{"short", flattypes.ColumnTypeShort, le.AppendUint16(nil, 0xfffe), int16(-2)},
		{"int", flattypes.ColumnTypeInt, le.AppendUint32(nil, 7), int32(7)},
		{"ulong", flattypes.ColumnTypeULong, le.AppendUint64(nil, 1<<40), uint64(1 << 40)},
		{"float", flattypes.ColumnTypeFloat, le.AppendUint32(nil, math.Float32bits(1.5)), float32(1.5)},
		{"binary", flattypes.ColumnTypeBinary, append(le.AppendUint32(nil, 2), 0xff, 0x00), "/wA="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, n, err := readValue(tt.data, tt.typ)
			if err != nil {
				t.Fatalf("readValue failed: %v", err)
			}
			if n != len(tt.data) {
				t.Errorf("expected %d bytes read, got %d", len(tt.data), n)
			}
			if v != tt.expected {
				t.Errorf("expected %v (%T), got %v (%T)", tt.expected, tt.expected, v, v)
			}
		})
	}
}

func TestReadValue_Truncated(t *testing.T) {
	tests := []struct {
		name string
		typ  flattypes.ColumnType
		data []byte
	}{
		{"double", flattypes.ColumnTypeDouble, []byte{1, 2, 3}},
		{"string prefix", flattypes.ColumnTypeString, []byte{1, 0}},
		{"string body", flattypes.ColumnTypeString, []byte{9, 0, 0, 0, 'a'}},
		{"json", flattypes.ColumnTypeJson, []byte{2, 0, 0, 0, '{', 'x'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := readValue(tt.data, tt.typ)
			if !errors.Is(err, geoerr.ErrDecode) {
				t.Errorf("expected ErrDecode, got %v", err)
			}
		})
	}
}
