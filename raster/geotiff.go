package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tingold/geopipe/crs"
	"github.com/tingold/geopipe/geoerr"
)

// TIFF tags
const (
	tagImageWidth           = 256
	tagImageLength          = 257
	tagBitsPerSample        = 258
	tagCompression          = 259
	tagPhotometric          = 262
	tagStripOffsets         = 273
	tagSamplesPerPixel      = 277
	tagRowsPerStrip         = 278
	tagStripByteCounts      = 279
	tagPlanarConfig         = 284
	tagPredictor            = 317
	tagTileWidth            = 322
	tagTileLength           = 323
	tagTileOffsets          = 324
	tagTileByteCounts       = 325
	tagExtraSamples         = 338
	tagSampleFormat         = 339
	tagModelPixelScale      = 33550
	tagModelTiepoint        = 33922
	tagModelTransformation  = 34264
	tagGeoKeyDirectory      = 34735
	tagGDALNoData           = 42113
	keyGTModelType          = 1024
	keyGTRasterType         = 1025
	keyGeographicType       = 2048
	keyProjectedCSType      = 3072
	rasterPixelIsArea       = 1
	rasterPixelIsPoint      = 2
	modelTypeProjected      = 1
	modelTypeGeographic     = 2
	compressionNone         = 1
	compressionDeflate      = 8
	compressionAdobeDeflate = 32946
	planarChunky            = 1
	planarSeparate          = 2
	sampleFormatUint        = 1
	sampleFormatInt         = 2
	sampleFormatFloat       = 3
	photometricBlackIsZero  = 1
	predictorNone           = 1
)

// TIFF field types
const (
	typeByte   = 1
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeSByte  = 6
	typeSShort = 8
	typeSLong  = 9
	typeFloat  = 11
	typeDouble = 12
)

func typeSize(t uint16) int {
	switch t {
	case typeByte, typeASCII, typeSByte:
		return 1
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat:
		return 4
	case typeDouble:
		return 8
	}
	return 0
}

type tiffField struct {
	typ   uint16
	count int
	raw   []byte
}

type tiffDecoder struct {
	data   []byte
	bo     binary.ByteOrder
	fields map[uint16]tiffField
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("raster: geotiff: %s: %w", fmt.Sprintf(format, args...), geoerr.ErrDecode)
}

func decodeGeoTIFF(data []byte) (*Store, error) {
	if len(data) < 8 {
		return nil, decodeErr("short header")
	}
	d := &tiffDecoder{data: data, fields: make(map[uint16]tiffField)}
	switch string(data[:2]) {
	case "II":
		d.bo = binary.LittleEndian
	case "MM":
		d.bo = binary.BigEndian
	default:
		return nil, decodeErr("bad byte order mark")
	}
	if v := d.bo.Uint16(data[2:4]); v != 42 {
		return nil, decodeErr("unsupported tiff version %d", v)
	}
	if err := d.readIFD(int(d.bo.Uint32(data[4:8]))); err != nil {
		return nil, err
	}

	width, err := d.scalar(tagImageWidth, 0)
	if err != nil {
		return nil, err
	}
	height, err := d.scalar(tagImageLength, 0)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, decodeErr("empty image %dx%d", width, height)
	}

	spp, err := d.scalar(tagSamplesPerPixel, 1)
	if err != nil {
		return nil, err
	}
	if spp < 1 {
		return nil, decodeErr("samples per pixel %d", spp)
	}
	dtype, err := d.dtype()
	if err != nil {
		return nil, err
	}

	predictor, err := d.scalar(tagPredictor, predictorNone)
	if err != nil {
		return nil, err
	}
	if predictor != predictorNone {
		return nil, decodeErr("predictor %d", predictor)
	}

	meta := Meta{Width: width, Height: height, DType: dtype}
	if meta.Transform, err = d.transform(); err != nil {
		return nil, err
	}
	if meta.CRS, err = d.crs(); err != nil {
		return nil, err
	}
	if f, ok := d.fields[tagGDALNoData]; ok {
		s := strings.TrimSpace(strings.TrimRight(string(f.raw), "\x00"))
		nd, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, decodeErr("nodata %q", s)
		}
		meta.NoData = &nd
	}

	bands, err := d.samples(width, height, spp, dtype)
	if err != nil {
		return nil, err
	}

	store, err := New(meta, bands)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, geoerr.ErrDecode)
	}
	return store, nil
}

func (d *tiffDecoder) readIFD(off int) error {
	if off < 8 || off+2 > len(d.data) {
		return decodeErr("ifd offset %d out of range", off)
	}
	n := int(d.bo.Uint16(d.data[off:]))
	pos := off + 2
	if pos+n*12 > len(d.data) {
		return decodeErr("truncated ifd")
	}
	for i := 0; i < n; i++ {
		e := d.data[pos : pos+12]
		pos += 12

		tag := d.bo.Uint16(e[0:])
		typ := d.bo.Uint16(e[2:])
		count := int(d.bo.Uint32(e[4:]))
		size := typeSize(typ) * count
		if typeSize(typ) == 0 {
			continue
		}
		var raw []byte
		if size <= 4 {
			raw = e[8 : 8+size]
		} else {
			vo := int(d.bo.Uint32(e[8:]))
			if vo < 0 || vo+size > len(d.data) {
				return decodeErr("tag %d value out of range", tag)
			}
			raw = d.data[vo : vo+size]
		}
		d.fields[tag] = tiffField{typ: typ, count: count, raw: raw}
	}
	return nil
}

func (d *tiffDecoder) ints(tag uint16) ([]int, bool) {
	f, ok := d.fields[tag]
	if !ok {
		return nil, false
	}
	out := make([]int, f.count)
	for i := range out {
		switch f.typ {
		case typeByte:
			out[i] = int(f.raw[i])
		case typeSByte:
			out[i] = int(int8(f.raw[i]))
		case typeShort:
			out[i] = int(d.bo.Uint16(f.raw[i*2:]))
		case typeSShort:
			out[i] = int(int16(d.bo.Uint16(f.raw[i*2:])))
		case typeLong:
			out[i] = int(d.bo.Uint32(f.raw[i*4:]))
		case typeSLong:
			out[i] = int(int32(d.bo.Uint32(f.raw[i*4:])))
		default:
			return nil, false
		}
	}
	return out, true
}

func (d *tiffDecoder) floats(tag uint16) ([]float64, bool) {
	f, ok := d.fields[tag]
	if !ok {
		return nil, false
	}
	out := make([]float64, f.count)
	for i := range out {
		switch f.typ {
		case typeDouble:
			out[i] = math.Float64frombits(d.bo.Uint64(f.raw[i*8:]))
		case typeFloat:
			out[i] = float64(math.Float32frombits(d.bo.Uint32(f.raw[i*4:])))
		default:
			return nil, false
		}
	}
	return out, true
}

// scalar reads a single integer tag, returning def when the tag is absent.
func (d *tiffDecoder) scalar(tag uint16, def int) (int, error) {
	v, ok := d.ints(tag)
	if !ok {
		if _, present := d.fields[tag]; present {
			return 0, decodeErr("tag %d has a non-integer type", tag)
		}
		return def, nil
	}
	if len(v) == 0 {
		return 0, decodeErr("tag %d is empty", tag)
	}
	return v[0], nil
}

func (d *tiffDecoder) dtype() (DType, error) {
	bits, ok := d.ints(tagBitsPerSample)
	if !ok || len(bits) == 0 {
		bits = []int{1}
	}
	formats, ok := d.ints(tagSampleFormat)
	if !ok || len(formats) == 0 {
		formats = []int{sampleFormatUint}
	}
	for _, b := range bits[1:] {
		if b != bits[0] {
			return Invalid, fmt.Errorf("raster: geotiff: mixed bits per sample %v: %w", bits, geoerr.ErrUnsupportedDType)
		}
	}
	for _, f := range formats[1:] {
		if f != formats[0] {
			return Invalid, fmt.Errorf("raster: geotiff: mixed sample formats %v: %w", formats, geoerr.ErrUnsupportedDType)
		}
	}

	switch [2]int{formats[0], bits[0]} {
	case [2]int{sampleFormatUint, 8}:
		return Uint8, nil
	case [2]int{sampleFormatUint, 16}:
		return Uint16, nil
	case [2]int{sampleFormatInt, 16}:
		return Int16, nil
	case [2]int{sampleFormatUint, 32}:
		return Uint32, nil
	case [2]int{sampleFormatInt, 32}:
		return Int32, nil
	case [2]int{sampleFormatFloat, 32}:
		return Float32, nil
	case [2]int{sampleFormatFloat, 64}:
		return Float64, nil
	}
	return Invalid, fmt.Errorf("raster: geotiff: sample format %d with %d bits: %w", formats[0], bits[0], geoerr.ErrUnsupportedDType)
}

func (d *tiffDecoder) geoKeys() map[int]int {
	keys := make(map[int]int)
	dir, ok := d.ints(tagGeoKeyDirectory)
	if !ok || len(dir) < 4 {
		return keys
	}
	n := dir[3]
	for i := 0; i < n; i++ {
		base := 4 + i*4
		if base+3 >= len(dir) {
			break
		}
		// only keys stored inline in the directory
		if dir[base+1] != 0 {
			continue
		}
		keys[dir[base]] = dir[base+3]
	}
	return keys
}

func (d *tiffDecoder) transform() (crs.Affine, error) {
	var a crs.Affine
	if m, ok := d.floats(tagModelTransformation); ok {
		if len(m) < 16 {
			return a, decodeErr("model transformation has %d values", len(m))
		}
		a = crs.Affine{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}
	} else {
		scale, sok := d.floats(tagModelPixelScale)
		tie, tok := d.floats(tagModelTiepoint)
		if !sok || !tok || len(scale) < 2 || len(tie) < 6 {
			return a, decodeErr("no georeferencing")
		}
		a = crs.Affine{
			A: scale[0],
			C: tie[3] - tie[0]*scale[0],
			E: -scale[1],
			F: tie[4] + tie[1]*scale[1],
		}
	}
	if d.geoKeys()[keyGTRasterType] == rasterPixelIsPoint {
		a.C -= 0.5*a.A + 0.5*a.B
		a.F -= 0.5*a.D + 0.5*a.E
	}
	if err := a.Validate(); err != nil {
		return a, fmt.Errorf("raster: geotiff: %v: %w", err, geoerr.ErrDecode)
	}
	return a, nil
}

func (d *tiffDecoder) crs() (crs.ID, error) {
	keys := d.geoKeys()
	code, ok := keys[keyProjectedCSType]
	if !ok {
		code, ok = keys[keyGeographicType]
	}
	if !ok {
		return crs.ID{}, fmt.Errorf("raster: geotiff: no epsg geokey: %w", geoerr.ErrInvalidCRS)
	}
	return crs.FromEPSG(code)
}

// chunk is one strip or tile: its position in the image and, for planar
// files, the band it belongs to.
type chunk struct {
	x, y, w, h int
	band       int // -1 for chunky chunks
}

func (d *tiffDecoder) samples(width, height, spp int, dtype DType) ([][]float64, error) {
	planar, err := d.scalar(tagPlanarConfig, planarChunky)
	if err != nil {
		return nil, err
	}
	if planar != planarChunky && planar != planarSeparate {
		return nil, decodeErr("planar configuration %d", planar)
	}
	compression, err := d.scalar(tagCompression, compressionNone)
	if err != nil {
		return nil, err
	}

	var chunks []chunk
	var offsets, counts []int
	planes := 1
	if planar == planarSeparate {
		planes = spp
	}

	if _, tiled := d.fields[tagTileWidth]; tiled {
		tw, err := d.scalar(tagTileWidth, 0)
		if err != nil {
			return nil, err
		}
		th, err := d.scalar(tagTileLength, 0)
		if err != nil {
			return nil, err
		}
		if tw <= 0 || th <= 0 {
			return nil, decodeErr("tile size %dx%d", tw, th)
		}
		offsets, _ = d.ints(tagTileOffsets)
		counts, _ = d.ints(tagTileByteCounts)
		across := (width + tw - 1) / tw
		down := (height + th - 1) / th
		for p := 0; p < planes; p++ {
			for ty := 0; ty < down; ty++ {
				for tx := 0; tx < across; tx++ {
					chunks = append(chunks, chunk{x: tx * tw, y: ty * th, w: tw, h: th, band: planeBand(planar, p)})
				}
			}
		}
	} else {
		rps, err := d.scalar(tagRowsPerStrip, height)
		if err != nil {
			return nil, err
		}
		if rps <= 0 || rps > height {
			rps = height
		}
		offsets, _ = d.ints(tagStripOffsets)
		counts, _ = d.ints(tagStripByteCounts)
		for p := 0; p < planes; p++ {
			for y := 0; y < height; y += rps {
				h := rps
				if y+h > height {
					h = height - y
				}
				chunks = append(chunks, chunk{y: y, w: width, h: h, band: planeBand(planar, p)})
			}
		}
	}
	if len(offsets) < len(chunks) || len(counts) < len(chunks) {
		return nil, decodeErr("expected %d data chunks, found %d offsets and %d byte counts", len(chunks), len(offsets), len(counts))
	}

	bands := make([][]float64, spp)
	for i := range bands {
		bands[i] = make([]float64, width*height)
	}

	size := dtype.Size()
	for i, c := range chunks {
		raw, err := d.chunkData(offsets[i], counts[i], compression)
		if err != nil {
			return nil, err
		}
		perPixel := spp
		if c.band >= 0 {
			perPixel = 1
		}
		rows := c.h
		if rows*c.w*perPixel*size > len(raw) {
			return nil, decodeErr("chunk %d holds %d bytes, need %d", i, len(raw), rows*c.w*perPixel*size)
		}
		for r := 0; r < rows; r++ {
			y := c.y + r
			if y >= height {
				break
			}
			for col := 0; col < c.w; col++ {
				x := c.x + col
				if x >= width {
					break
				}
				base := (r*c.w + col) * perPixel
				if c.band >= 0 {
					bands[c.band][y*width+x] = d.sample(raw, base, dtype)
					continue
				}
				for s := 0; s < spp; s++ {
					bands[s][y*width+x] = d.sample(raw, base+s, dtype)
				}
			}
		}
	}
	return bands, nil
}

func planeBand(planar, plane int) int {
	if planar == planarSeparate {
		return plane
	}
	return -1
}

func (d *tiffDecoder) chunkData(off, n, compression int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(d.data) {
		return nil, decodeErr("chunk at %d+%d out of range", off, n)
	}
	raw := d.data[off : off+n]
	switch compression {
	case compressionNone:
		return raw, nil
	case compressionDeflate, compressionAdobeDeflate:
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, decodeErr("deflate: %v", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, decodeErr("deflate: %v", err)
		}
		return out, nil
	}
	return nil, decodeErr("compression %d", compression)
}

func (d *tiffDecoder) sample(raw []byte, i int, dtype DType) float64 {
	switch dtype {
	case Uint8:
		return float64(raw[i])
	case Int16:
		return float64(int16(d.bo.Uint16(raw[i*2:])))
	case Uint16:
		return float64(d.bo.Uint16(raw[i*2:]))
	case Int32:
		return float64(int32(d.bo.Uint32(raw[i*4:])))
	case Uint32:
		return float64(d.bo.Uint32(raw[i*4:]))
	case Float32:
		return float64(math.Float32frombits(d.bo.Uint32(raw[i*4:])))
	case Float64:
		return math.Float64frombits(d.bo.Uint64(raw[i*8:]))
	}
	return 0
}

// EncodeGeoTIFF writes s as a little-endian, uncompressed, single strip
// GeoTIFF with pixel-interleaved samples.
func EncodeGeoTIFF(s *Store) ([]byte, error) {
	bo := binary.LittleEndian
	spp := len(s.bands)
	size := s.meta.DType.Size()
	if size == 0 {
		return nil, fmt.Errorf("raster: %v: %w", s.meta.DType, geoerr.ErrUnsupportedDType)
	}
	if s.meta.CRS.Authority != "EPSG" {
		return nil, fmt.Errorf("raster: geotiff needs an EPSG crs, got %q: %w", s.meta.CRS, geoerr.ErrInvalidCRS)
	}

	format := sampleFormatUint
	switch s.meta.DType {
	case Int16, Int32:
		format = sampleFormatInt
	case Float32, Float64:
		format = sampleFormatFloat
	}

	w := &tiffWriter{bo: bo}
	w.longs(tagImageWidth, s.meta.Width)
	w.longs(tagImageLength, s.meta.Height)
	w.shorts(tagBitsPerSample, repeat(size*8, spp)...)
	w.shorts(tagCompression, compressionNone)
	w.shorts(tagPhotometric, photometricBlackIsZero)
	w.longs(tagStripOffsets, 0)
	w.shorts(tagSamplesPerPixel, spp)
	w.longs(tagRowsPerStrip, s.meta.Height)
	imageSize := s.meta.Width * s.meta.Height * spp * size
	w.longs(tagStripByteCounts, imageSize)
	w.shorts(tagPlanarConfig, planarChunky)
	if spp > 1 {
		w.shorts(tagExtraSamples, repeat(0, spp-1)...)
	}
	w.shorts(tagSampleFormat, repeat(format, spp)...)

	t := s.meta.Transform
	if t.B == 0 && t.D == 0 && t.A > 0 && t.E < 0 {
		w.doubles(tagModelPixelScale, t.A, -t.E, 0)
		w.doubles(tagModelTiepoint, 0, 0, 0, t.C, t.F, 0)
	} else {
		w.doubles(tagModelTransformation,
			t.A, t.B, 0, t.C,
			t.D, t.E, 0, t.F,
			0, 0, 0, 0,
			0, 0, 0, 1)
	}

	modelType, crsKey := modelTypeProjected, keyProjectedCSType
	if p, ok := crs.Lookup(s.meta.CRS); ok && p.Geographic() {
		modelType, crsKey = modelTypeGeographic, keyGeographicType
	}
	w.shorts(tagGeoKeyDirectory,
		1, 1, 0, 3,
		keyGTModelType, 0, 1, modelType,
		keyGTRasterType, 0, 1, rasterPixelIsArea,
		crsKey, 0, 1, s.meta.CRS.Code)

	if nd, ok := s.NoData(); ok {
		w.ascii(tagGDALNoData, strconv.FormatFloat(nd, 'g', -1, 64))
	}

	image := make([]byte, imageSize)
	pos := 0
	for i := 0; i < s.meta.Width*s.meta.Height; i++ {
		for _, band := range s.bands {
			putSample(bo, image[pos:], band[i], s.meta.DType)
			pos += size
		}
	}

	return w.bytes(tagStripOffsets, [][]byte{image}), nil
}

func putSample(bo binary.ByteOrder, b []byte, v float64, dtype DType) {
	switch dtype {
	case Uint8:
		b[0] = uint8(v)
	case Int16:
		bo.PutUint16(b, uint16(int16(v)))
	case Uint16:
		bo.PutUint16(b, uint16(v))
	case Int32:
		bo.PutUint32(b, uint32(int32(v)))
	case Uint32:
		bo.PutUint32(b, uint32(v))
	case Float32:
		bo.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		bo.PutUint64(b, math.Float64bits(v))
	}
}

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count int
	value []byte
}

type tiffWriter struct {
	bo      binary.ByteOrder
	entries []tiffEntry
}

func (w *tiffWriter) add(tag, typ uint16, count int, value []byte) {
	w.entries = append(w.entries, tiffEntry{tag: tag, typ: typ, count: count, value: value})
}

func (w *tiffWriter) shorts(tag uint16, vs ...int) {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		w.bo.PutUint16(b[i*2:], uint16(v))
	}
	w.add(tag, typeShort, len(vs), b)
}

func (w *tiffWriter) longs(tag uint16, vs ...int) {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		w.bo.PutUint32(b[i*4:], uint32(v))
	}
	w.add(tag, typeLong, len(vs), b)
}

func (w *tiffWriter) doubles(tag uint16, vs ...float64) {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		w.bo.PutUint64(b[i*8:], math.Float64bits(v))
	}
	w.add(tag, typeDouble, len(vs), b)
}

func (w *tiffWriter) ascii(tag uint16, s string) {
	b := append([]byte(s), 0)
	w.add(tag, typeASCII, len(b), b)
}

// bytes lays out header, IFD, out-of-line values and finally the data
// chunks, filling the offsetTag entry with the chunk offsets once the layout
// is known. offsetTag must already hold one LONG per chunk.
func (w *tiffWriter) bytes(offsetTag uint16, chunks [][]byte) []byte {
	sort.Slice(w.entries, func(i, j int) bool { return w.entries[i].tag < w.entries[j].tag })

	ifdSize := 2 + 12*len(w.entries) + 4
	extra := 8 + ifdSize
	offsets := make([]int, len(w.entries))
	for i, e := range w.entries {
		if len(e.value) > 4 {
			offsets[i] = extra
			extra += len(e.value) + len(e.value)%2
		}
	}

	dataOffsets := make([]int, len(chunks))
	total := extra
	for i, c := range chunks {
		dataOffsets[i] = total
		total += len(c)
	}

	out := make([]byte, total)
	copy(out, "II")
	w.bo.PutUint16(out[2:], 42)
	w.bo.PutUint32(out[4:], 8)

	pos := 8
	w.bo.PutUint16(out[pos:], uint16(len(w.entries)))
	pos += 2
	for i, e := range w.entries {
		if e.tag == offsetTag {
			for j, off := range dataOffsets {
				w.bo.PutUint32(e.value[j*4:], uint32(off))
			}
		}
		w.bo.PutUint16(out[pos:], e.tag)
		w.bo.PutUint16(out[pos+2:], e.typ)
		w.bo.PutUint32(out[pos+4:], uint32(e.count))
		if len(e.value) > 4 {
			w.bo.PutUint32(out[pos+8:], uint32(offsets[i]))
			copy(out[offsets[i]:], e.value)
		} else {
			copy(out[pos+8:pos+12], e.value)
		}
		pos += 12
	}
	w.bo.PutUint32(out[pos:], 0)

	for i, c := range chunks {
		copy(out[dataOffsets[i]:], c)
	}
	return out
}
