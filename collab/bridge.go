package collab

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/tingold/geopipe/raster"
	"github.com/tingold/geopipe/vector"
)

// ErrMaskShape is returned when a mask does not match its reference raster.
var ErrMaskShape = errors.New("collab: mask does not match raster grid")

// Image is a channel-major (C, H, W) float32 tensor, the input shape of the
// inference collaborators.
type Image struct {
	Channels, Height, Width int
	Data                    []float32
}

// At returns the value of channel c at row y, column x.
func (im Image) At(c, y, x int) float32 {
	return im.Data[(c*im.Height+y)*im.Width+x]
}

// ImageFromRaster lays the bands of s out as an image tensor, one channel
// per band. Nodata samples become zero.
func ImageFromRaster(s *raster.Store) Image {
	im := Image{
		Channels: s.BandCount(),
		Height:   s.Height(),
		Width:    s.Width(),
	}
	im.Data = make([]float32, im.Channels*im.Height*im.Width)

	i := 0
	for c := 1; c <= im.Channels; c++ {
		for y := 0; y < im.Height; y++ {
			for x := 0; x < im.Width; x++ {
				if v := s.At(c, y, x); !s.IsNoData(v) {
					im.Data[i] = float32(v)
				}
				i++
			}
		}
	}
	return im
}

// DetectionsToStore georeferences detections made on an image of ref. Each
// row carries the detection polygon, or its box when the detector returned
// none, in the CRS of ref with counter-clockwise exterior rings. Attributes
// are label, confidence and pixel_bbox.
func DetectionsToStore(dets []Detection, ref *raster.Store) (*vector.Store, error) {
	tr := ref.Transform()
	world := func(p orb.Point) orb.Point {
		x, y := tr.Apply(p[0], p[1])
		return orb.Point{x, y}
	}

	rows := make([]vector.Row, 0, len(dets))
	for i, d := range dets {
		if math.IsNaN(d.Confidence) {
			return nil, fmt.Errorf("collab: detection %d: confidence is NaN", i)
		}

		pixel := d.Polygon
		if len(pixel) == 0 {
			b := d.Box
			pixel = orb.Polygon{{{b[0], b[1]}, {b[2], b[1]}, {b[2], b[3]}, {b[0], b[3]}, {b[0], b[1]}}}
		}

		poly := make(orb.Polygon, len(pixel))
		for j, ring := range pixel {
			r := make(orb.Ring, len(ring))
			for k, p := range ring {
				r[k] = world(p)
			}
			// exterior counter-clockwise, holes clockwise
			if (j == 0) != (r.Orientation() == orb.CCW) {
				r.Reverse()
			}
			poly[j] = r
		}

		rows = append(rows, vector.Row{
			Geometry: poly,
			Attributes: map[string]any{
				"label":      d.Label,
				"confidence": d.Confidence,
				"pixel_bbox": []any{d.Box[0], d.Box[1], d.Box[2], d.Box[3]},
			},
		})
	}
	return vector.New(ref.CRS(), rows)
}

// ClassMaskToRaster georeferences a segmentation mask on the grid of ref as
// a single int32 band.
func ClassMaskToRaster(m ClassMask, ref *raster.Store) (*raster.Store, error) {
	if err := sameGrid(m.Width, m.Height, len(m.Classes), ref); err != nil {
		return nil, err
	}
	band := make([]float64, len(m.Classes))
	for i, c := range m.Classes {
		band[i] = float64(c)
	}
	return raster.New(maskMeta(ref, raster.Int32), [][]float64{band})
}

// ChangeMaskToRaster georeferences a change mask on the grid of ref as a
// single uint8 band of zeros and ones.
func ChangeMaskToRaster(m ChangeMask, ref *raster.Store) (*raster.Store, error) {
	if err := sameGrid(m.Width, m.Height, len(m.Changed), ref); err != nil {
		return nil, err
	}
	band := make([]float64, len(m.Changed))
	for i, c := range m.Changed {
		if c {
			band[i] = 1
		}
	}
	return raster.New(maskMeta(ref, raster.Uint8), [][]float64{band})
}

// ChangedArea is the area covered by changed pixels, in squared CRS units.
func ChangedArea(m ChangeMask, ref *raster.Store) (float64, error) {
	if err := sameGrid(m.Width, m.Height, len(m.Changed), ref); err != nil {
		return 0, err
	}
	return float64(m.Count()) * math.Abs(ref.Transform().Determinant()), nil
}

func sameGrid(w, h, n int, ref *raster.Store) error {
	if w != ref.Width() || h != ref.Height() || n != w*h {
		return fmt.Errorf("%w: mask %dx%d (%d values), raster %dx%d",
			ErrMaskShape, w, h, n, ref.Width(), ref.Height())
	}
	return nil
}

func maskMeta(ref *raster.Store, dt raster.DType) raster.Meta {
	meta := ref.Meta()
	meta.DType = dt
	meta.NoData = nil
	return meta
}
