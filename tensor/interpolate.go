package tensor

import (
	"math"

	"github.com/pkg/errors"
)

// Trilinear resizes the spatial axes of a [N, C, X, Y, Z] tensor to size
// using trilinear interpolation with corner alignment: the first and last
// samples of every axis map exactly onto the first and last input samples.
func Trilinear(t *Tensor, size [3]int) (*Tensor, error) {
	if t.Rank() != 5 {
		return nil, errors.Errorf("trilinear interpolation needs a 5-D tensor, got shape %v", t.Shape)
	}
	for i, s := range size {
		if s <= 0 {
			return nil, errors.Errorf("invalid output size %d on spatial axis %d", s, i)
		}
	}

	n, c := t.Shape[AxisBatch], t.Shape[AxisChannel]
	out, err := Zeros([]int{n, c, size[0], size[1], size[2]})
	if err != nil {
		return nil, err
	}

	xs := axisWeights(t.Shape[AxisX], size[0])
	ys := axisWeights(t.Shape[AxisY], size[1])
	zs := axisWeights(t.Shape[AxisZ], size[2])

	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			at := func(x, y, z int) float64 { return t.At(b, ch, x, y, z) }
			for i, wx := range xs {
				for j, wy := range ys {
					for k, wz := range zs {
						c00 := at(wx.lo, wy.lo, wz.lo)*(1-wz.frac) + at(wx.lo, wy.lo, wz.hi)*wz.frac
						c01 := at(wx.lo, wy.hi, wz.lo)*(1-wz.frac) + at(wx.lo, wy.hi, wz.hi)*wz.frac
						c10 := at(wx.hi, wy.lo, wz.lo)*(1-wz.frac) + at(wx.hi, wy.lo, wz.hi)*wz.frac
						c11 := at(wx.hi, wy.hi, wz.lo)*(1-wz.frac) + at(wx.hi, wy.hi, wz.hi)*wz.frac
						c0 := c00*(1-wy.frac) + c01*wy.frac
						c1 := c10*(1-wy.frac) + c11*wy.frac
						v := c0*(1-wx.frac) + c1*wx.frac
						out.Set(v, b, ch, i, j, k)
					}
				}
			}
		}
	}
	return out, nil
}

type sampleWeight struct {
	lo, hi int
	frac   float64
}

func axisWeights(in, out int) []sampleWeight {
	weights := make([]sampleWeight, out)
	scale := 0.0
	if out > 1 {
		scale = float64(in-1) / float64(out-1)
	}
	for i := range weights {
		src := float64(i) * scale
		lo := int(math.Floor(src))
		if lo > in-1 {
			lo = in - 1
		}
		hi := lo + 1
		if hi > in-1 {
			hi = in - 1
		}
		weights[i] = sampleWeight{lo: lo, hi: hi, frac: src - float64(lo)}
	}
	return weights
}
