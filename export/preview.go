package export

import (
	"image"
	"image/png"
	"os"
	"path/filepath"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Colormap endpoints for previews; values are blended in CIE L*a*b*.
var (
	previewLow  = colorful.Color{R: 0.05, G: 0.03, B: 0.25}
	previewHigh = colorful.Color{R: 0.99, G: 0.91, B: 0.15}
)

// PreviewSlice renders the middle slice along the last axis of a
// [X, Y, Z] uint16 volume as an RGBA image, normalised to the slice range.
func PreviewSlice(vol Uint16Array) (*image.RGBA, error) {
	if len(vol.Shape) != 3 {
		return nil, errors.Errorf("preview needs a 3-D volume, got shape %v", vol.Shape)
	}
	nx, ny, nz := vol.Shape[0], vol.Shape[1], vol.Shape[2]
	z := nz / 2

	at := func(x, y int) uint16 { return vol.Data[(x*ny+y)*nz+z] }

	lo, hi := at(0, 0), at(0, 0)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			v := at(x, y)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, ny, nx))
	span := float64(hi) - float64(lo)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			t := 0.0
			if span > 0 {
				t = (float64(at(x, y)) - float64(lo)) / span
			}
			img.Set(y, x, previewLow.BlendLab(previewHigh, t).Clamped())
		}
	}
	return img, nil
}

// WritePreviews writes one PNG per output of r next to resultPath, named
// <base>_output<N>.png, and returns the written paths.
func WritePreviews(resultPath string, r *ResultRecord) ([]string, error) {
	base := resultPath[:len(resultPath)-len(filepath.Ext(resultPath))]
	var paths []string
	for i, out := range r.Outputs {
		img, err := PreviewSlice(out)
		if err != nil {
			return paths, errors.Wrapf(err, "output%d", i+1)
		}

		path := base + "_output" + string(rune('1'+i)) + ".png"
		file, err := os.Create(path)
		if err != nil {
			return paths, errors.Wrapf(err, "creating preview %s", path)
		}
		if err := png.Encode(file, img); err != nil {
			file.Close()
			return paths, errors.Wrapf(err, "encoding preview %s", path)
		}
		if err := file.Close(); err != nil {
			return paths, errors.Wrapf(err, "closing preview %s", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
