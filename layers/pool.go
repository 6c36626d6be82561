package layers

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/tensor"
)

// AvgPool3DLayer averages non-overlapping k×k×k blocks of every spatial
// axis. Trailing voxels that do not fill a block are dropped.
type AvgPool3DLayer struct {
	name   string
	kernel int

	inputShape []int
}

func NewAvgPool3D(name string, kernel int) (*AvgPool3DLayer, error) {
	if kernel <= 0 {
		return nil, errors.Errorf("%s: kernel must be positive, got %d", name, kernel)
	}
	return &AvgPool3DLayer{name: name, kernel: kernel}, nil
}

func (l *AvgPool3DLayer) Type() LayerType          { return AvgPool3D }
func (l *AvgPool3DLayer) Name() string             { return l.name }
func (l *AvgPool3DLayer) Parameters() []*Parameter { return nil }

// OutputShape returns the pooled shape for a [N, C, X, Y, Z] input.
func (l *AvgPool3DLayer) OutputShape(in []int) []int {
	return []int{in[0], in[1], in[2] / l.kernel, in[3] / l.kernel, in[4] / l.kernel}
}

func (l *AvgPool3DLayer) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if input.Rank() != 5 {
		return nil, errors.Errorf("%s expects a 5-D input, got %v", l.name, input.Shape)
	}
	shape := l.OutputShape(input.Shape)
	for _, d := range shape[2:] {
		if d == 0 {
			return nil, errors.Errorf("%s: input %v smaller than kernel %d", l.name, input.Shape, l.kernel)
		}
	}
	l.inputShape = append([]int(nil), input.Shape...)

	out, err := tensor.Zeros(shape)
	if err != nil {
		return nil, err
	}
	k := l.kernel
	norm := 1 / float64(k*k*k)
	l.eachWindow(shape, func(n, c, x, y, z int) {
		var sum float64
		for dx := 0; dx < k; dx++ {
			for dy := 0; dy < k; dy++ {
				for dz := 0; dz < k; dz++ {
					sum += input.At(n, c, x*k+dx, y*k+dy, z*k+dz)
				}
			}
		}
		out.Set(sum*norm, n, c, x, y, z)
	})
	return out, nil
}

func (l *AvgPool3DLayer) Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	if l.inputShape == nil {
		return nil, errors.Errorf("%s: backward called before forward", l.name)
	}
	gradInput, err := tensor.Zeros(l.inputShape)
	if err != nil {
		return nil, err
	}
	k := l.kernel
	norm := 1 / float64(k*k*k)
	l.eachWindow(gradOutput.Shape, func(n, c, x, y, z int) {
		g := gradOutput.At(n, c, x, y, z) * norm
		for dx := 0; dx < k; dx++ {
			for dy := 0; dy < k; dy++ {
				for dz := 0; dz < k; dz++ {
					gradInput.Set(g, n, c, x*k+dx, y*k+dy, z*k+dz)
				}
			}
		}
	})
	return gradInput, nil
}

func (l *AvgPool3DLayer) eachWindow(shape []int, fn func(n, c, x, y, z int)) {
	for n := 0; n < shape[0]; n++ {
		for c := 0; c < shape[1]; c++ {
			for x := 0; x < shape[2]; x++ {
				for y := 0; y < shape[3]; y++ {
					for z := 0; z < shape[4]; z++ {
						fn(n, c, x, y, z)
					}
				}
			}
		}
	}
}
