package raster

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/ipc"
	"github.com/apache/arrow/go/v13/arrow/memory"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/geoerr"
)

// schema metadata keys of the Arrow raster container
const (
	metaCRS       = "geopipe:crs"
	metaTransform = "geopipe:transform"
	metaWidth     = "geopipe:width"
	metaHeight    = "geopipe:height"
	metaNoData    = "geopipe:nodata"
)

var arrowTypes = map[DType]arrow.DataType{
	Uint8:   arrow.PrimitiveTypes.Uint8,
	Int16:   arrow.PrimitiveTypes.Int16,
	Uint16:  arrow.PrimitiveTypes.Uint16,
	Int32:   arrow.PrimitiveTypes.Int32,
	Uint32:  arrow.PrimitiveTypes.Uint32,
	Float32: arrow.PrimitiveTypes.Float32,
	Float64: arrow.PrimitiveTypes.Float64,
}

func dtypeFromArrow(t arrow.DataType) (DType, bool) {
	for d, at := range arrowTypes {
		if arrow.TypeEqual(at, t) {
			return d, true
		}
	}
	return Invalid, false
}

// EncodeArrow writes s as an Arrow IPC stream: one column per band named
// band_<n>, one row per pixel in row-major order, georeferencing in the
// schema metadata.
func EncodeArrow(s *Store) ([]byte, error) {
	mem := memory.NewGoAllocator()
	dt := arrowTypes[s.meta.DType]

	keys := []string{metaCRS, metaTransform, metaWidth, metaHeight}
	values := []string{
		s.meta.CRS.String(),
		formatCoefficients(s.meta.Transform.Coefficients()),
		strconv.Itoa(s.meta.Width),
		strconv.Itoa(s.meta.Height),
	}
	if nd, ok := s.NoData(); ok {
		keys = append(keys, metaNoData)
		values = append(values, strconv.FormatFloat(nd, 'g', -1, 64))
	}
	md := arrow.NewMetadata(keys, values)

	fields := make([]arrow.Field, len(s.bands))
	for i := range s.bands {
		fields[i] = arrow.Field{Name: fmt.Sprintf("band_%d", i+1), Type: dt}
	}
	schema := arrow.NewSchema(fields, &md)

	columns := make([]arrow.Array, len(s.bands))
	for i, band := range s.bands {
		b := array.NewBuilder(mem, dt)
		appendBand(b, band)
		columns[i] = b.NewArray()
		b.Release()
	}
	record := array.NewRecord(schema, columns, int64(s.meta.Width*s.meta.Height))
	for _, col := range columns {
		col.Release()
	}
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := writer.Write(record); err != nil {
		return nil, fmt.Errorf("raster: write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("raster: close arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}

func appendBand(b array.Builder, band []float64) {
	b.Reserve(len(band))
	switch bb := b.(type) {
	case *array.Uint8Builder:
		for _, v := range band {
			bb.Append(uint8(v))
		}
	case *array.Int16Builder:
		for _, v := range band {
			bb.Append(int16(v))
		}
	case *array.Uint16Builder:
		for _, v := range band {
			bb.Append(uint16(v))
		}
	case *array.Int32Builder:
		for _, v := range band {
			bb.Append(int32(v))
		}
	case *array.Uint32Builder:
		for _, v := range band {
			bb.Append(uint32(v))
		}
	case *array.Float32Builder:
		for _, v := range band {
			bb.Append(float32(v))
		}
	case *array.Float64Builder:
		bb.AppendValues(band, nil)
	}
}

func decodeArrow(data []byte) (*Store, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("raster: arrow stream: %v: %w", err, geoerr.ErrDecode)
	}
	defer reader.Release()

	schema := reader.Schema()
	md := schema.Metadata()
	lookup := func(key string) (string, bool) {
		i := md.FindKey(key)
		if i < 0 {
			return "", false
		}
		return md.Values()[i], true
	}

	var meta Meta

	s, ok := lookup(metaCRS)
	if !ok {
		return nil, fmt.Errorf("raster: arrow stream has no %s: %w", metaCRS, geoerr.ErrDecode)
	}
	if meta.CRS, err = crs.Parse(s); err != nil {
		return nil, err
	}

	s, ok = lookup(metaTransform)
	if !ok {
		return nil, fmt.Errorf("raster: arrow stream has no %s: %w", metaTransform, geoerr.ErrDecode)
	}
	coeffs, err := parseCoefficients(s)
	if err != nil {
		return nil, err
	}
	meta.Transform = crs.AffineFromCoefficients(coeffs)

	if meta.Width, err = intMeta(lookup, metaWidth); err != nil {
		return nil, err
	}
	if meta.Height, err = intMeta(lookup, metaHeight); err != nil {
		return nil, err
	}
	if s, ok := lookup(metaNoData); ok {
		nd, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("raster: %s %q: %w", metaNoData, s, geoerr.ErrDecode)
		}
		meta.NoData = &nd
	}

	if len(schema.Fields()) == 0 {
		return nil, fmt.Errorf("raster: arrow stream has no bands: %w", geoerr.ErrDecode)
	}
	for i, f := range schema.Fields() {
		dt, ok := dtypeFromArrow(f.Type)
		if !ok {
			return nil, fmt.Errorf("raster: band %d type %s: %w", i+1, f.Type, geoerr.ErrUnsupportedDType)
		}
		if i == 0 {
			meta.DType = dt
		} else if dt != meta.DType {
			return nil, fmt.Errorf("raster: band %d is %s, band 1 is %s: %w", i+1, dt, meta.DType, geoerr.ErrUnsupportedDType)
		}
	}

	bands := make([][]float64, len(schema.Fields()))
	for reader.Next() {
		rec := reader.Record()
		for i, col := range rec.Columns() {
			bands[i], err = appendColumn(bands[i], col, meta.NoData)
			if err != nil {
				return nil, err
			}
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("raster: arrow stream: %v: %w", err, geoerr.ErrDecode)
	}

	store, err := New(meta, bands)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, geoerr.ErrDecode)
	}
	return store, nil
}

func appendColumn(dst []float64, col arrow.Array, nodata *float64) ([]float64, error) {
	n := col.Len()
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			if nodata == nil {
				return nil, fmt.Errorf("raster: null sample without nodata: %w", geoerr.ErrDecode)
			}
			dst = append(dst, *nodata)
			continue
		}
		switch c := col.(type) {
		case *array.Uint8:
			dst = append(dst, float64(c.Value(i)))
		case *array.Int16:
			dst = append(dst, float64(c.Value(i)))
		case *array.Uint16:
			dst = append(dst, float64(c.Value(i)))
		case *array.Int32:
			dst = append(dst, float64(c.Value(i)))
		case *array.Uint32:
			dst = append(dst, float64(c.Value(i)))
		case *array.Float32:
			dst = append(dst, float64(c.Value(i)))
		case *array.Float64:
			dst = append(dst, c.Value(i))
		default:
			return nil, fmt.Errorf("raster: column type %s: %w", col.DataType(), geoerr.ErrUnsupportedDType)
		}
	}
	return dst, nil
}

func intMeta(lookup func(string) (string, bool), key string) (int, error) {
	s, ok := lookup(key)
	if !ok {
		return 0, fmt.Errorf("raster: arrow stream has no %s: %w", key, geoerr.ErrDecode)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("raster: %s %q: %w", key, s, geoerr.ErrDecode)
	}
	return v, nil
}

func formatCoefficients(c [6]float64) string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func parseCoefficients(s string) ([6]float64, error) {
	var c [6]float64
	parts := strings.Split(s, ",")
	if len(parts) != len(c) {
		return c, fmt.Errorf("raster: transform %q: %w", s, geoerr.ErrDecode)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return c, fmt.Errorf("raster: transform %q: %w", s, geoerr.ErrDecode)
		}
		c[i] = v
	}
	return c, nil
}
