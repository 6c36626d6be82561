package tensor

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if !sameShape(t1.Shape, t2.Shape) {
		return errors.Errorf("tensor shapes are incompatible: %v vs %v", t1.Shape, t2.Shape)
	}
	return nil
}

func Add(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	out := ZerosLike(t1)
	floats.AddTo(out.Data, t1.Data, t2.Data)
	return out, nil
}

func Sub(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	out := ZerosLike(t1)
	floats.SubTo(out.Data, t1.Data, t2.Data)
	return out, nil
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	out := ZerosLike(t1)
	floats.MulTo(out.Data, t1.Data, t2.Data)
	return out, nil
}

// AddScalar returns t + c.
func AddScalar(t *Tensor, c float64) *Tensor {
	out := t.Clone()
	floats.AddConst(c, out.Data)
	return out
}

// Scale returns c * t.
func Scale(t *Tensor, c float64) *Tensor {
	out := t.Clone()
	floats.Scale(c, out.Data)
	return out
}

// AddInPlace accumulates src into dst.
func AddInPlace(dst, src *Tensor) error {
	if err := checkCompatibility(dst, src); err != nil {
		return err
	}
	floats.Add(dst.Data, src.Data)
	return nil
}

func Sum(t *Tensor) float64 {
	return floats.Sum(t.Data)
}

func Mean(t *Tensor) float64 {
	return stat.Mean(t.Data, nil)
}

// Fill sets every element of t to v.
func (t *Tensor) Fill(v float64) {
	for i := range t.Data {
		t.Data[i] = v
	}
}

// Crop copies the half-open window [lo[i], hi[i]) of every axis into a new
// tensor. Axes beyond len(lo) are kept whole.
func Crop(t *Tensor, lo, hi []int) (*Tensor, error) {
	if len(lo) != len(hi) || len(lo) > t.Rank() {
		return nil, errors.Errorf("crop bounds %v..%v do not fit rank %d", lo, hi, t.Rank())
	}

	start := make([]int, t.Rank())
	shape := append([]int(nil), t.Shape...)
	for i := range lo {
		if lo[i] < 0 || hi[i] > t.Shape[i] || lo[i] >= hi[i] {
			return nil, errors.Errorf("crop window [%d, %d) out of range for axis %d of size %d", lo[i], hi[i], i, t.Shape[i])
		}
		start[i] = lo[i]
		shape[i] = hi[i] - lo[i]
	}

	out, err := Zeros(shape)
	if err != nil {
		return nil, err
	}

	// Copy contiguous runs along the last axis.
	last := len(shape) - 1
	run := shape[last]
	idx := make([]int, len(shape))
	for dst := 0; dst < out.NumElems; dst += run {
		src := 0
		for i, v := range idx {
			src += (start[i] + v) * t.Strides[i]
		}
		copy(out.Data[dst:dst+run], t.Data[src:src+run])

		// Advance the multi-index, skipping the last axis.
		for i := last - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out, nil
}

// Stack concatenates same-shaped tensors along a new leading axis, or
// along the existing leading axis when each part already has one.
func Stack(parts []*Tensor) (*Tensor, error) {
	if len(parts) == 0 {
		return nil, errors.New("stack of zero tensors")
	}
	first := parts[0]
	for i, p := range parts[1:] {
		if !sameShape(first.Shape, p.Shape) {
			return nil, errors.Errorf("stack: tensor %d has shape %v, expected %v", i+1, p.Shape, first.Shape)
		}
	}

	shape := append([]int(nil), first.Shape...)
	shape[0] *= len(parts)
	data := make([]float64, 0, first.NumElems*len(parts))
	for _, p := range parts {
		data = append(data, p.Data...)
	}
	return NewTensor(shape, data)
}

// Unstack splits t along its leading axis, keeping that axis with size 1.
func Unstack(t *Tensor) []*Tensor {
	n := t.Shape[0]
	per := t.NumElems / n
	shape := append([]int(nil), t.Shape...)
	shape[0] = 1

	out := make([]*Tensor, n)
	for i := 0; i < n; i++ {
		data := make([]float64, per)
		copy(data, t.Data[i*per:(i+1)*per])
		out[i], _ = NewTensor(shape, data)
	}
	return out
}

// Ternarize maps values above threshold to 1, below -threshold to -1 and
// everything else to 0.
func Ternarize(t *Tensor, threshold float64) *Tensor {
	out := ZerosLike(t)
	for i, v := range t.Data {
		switch {
		case v > threshold:
			out.Data[i] = 1
		case v < -threshold:
			out.Data[i] = -1
		}
	}
	return out
}
