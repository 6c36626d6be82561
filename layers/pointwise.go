package layers

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/tensor"
)

// PointwiseLayer is a 1×1×1 convolution mapping inChannels to outChannels
// at every voxel: y[o] = sum_i W[o, i]*x[i] + b[o].
type PointwiseLayer struct {
	name        string
	inChannels  int
	outChannels int
	weight      *Parameter
	bias        *Parameter

	input *tensor.Tensor
}

// NewPointwise creates the layer with zero weights and biases.
func NewPointwise(name string, inChannels, outChannels int) (*PointwiseLayer, error) {
	w, err := tensor.Zeros([]int{outChannels, inChannels})
	if err != nil {
		return nil, errors.Wrapf(err, "creating weight for %s", name)
	}
	b, err := tensor.Zeros([]int{outChannels})
	if err != nil {
		return nil, errors.Wrapf(err, "creating bias for %s", name)
	}
	return &PointwiseLayer{
		name:        name,
		inChannels:  inChannels,
		outChannels: outChannels,
		weight:      NewParameter(name+".weight", w),
		bias:        NewParameter(name+".bias", b),
	}, nil
}

func (l *PointwiseLayer) Type() LayerType { return Pointwise }
func (l *PointwiseLayer) Name() string    { return l.name }

func (l *PointwiseLayer) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

func (l *PointwiseLayer) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if input.Rank() != 5 || input.Shape[tensor.AxisChannel] != l.inChannels {
		return nil, errors.Errorf("%s expects [N, %d, X, Y, Z], got %v", l.name, l.inChannels, input.Shape)
	}
	l.input = input

	n := input.Shape[tensor.AxisBatch]
	voxels := input.Strides[tensor.AxisChannel]
	out, err := tensor.Zeros([]int{n, l.outChannels, input.Shape[2], input.Shape[3], input.Shape[4]})
	if err != nil {
		return nil, err
	}

	for b := 0; b < n; b++ {
		for o := 0; o < l.outChannels; o++ {
			dst := out.Data[(b*l.outChannels+o)*voxels : (b*l.outChannels+o+1)*voxels]
			bias := l.bias.Value.Data[o]
			for v := range dst {
				dst[v] = bias
			}
			for i := 0; i < l.inChannels; i++ {
				w := l.weight.Value.Data[o*l.inChannels+i]
				if w == 0 {
					continue
				}
				src := input.Data[(b*l.inChannels+i)*voxels : (b*l.inChannels+i+1)*voxels]
				for v, x := range src {
					dst[v] += w * x
				}
			}
		}
	}
	return out, nil
}

func (l *PointwiseLayer) Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	if l.input == nil {
		return nil, errors.Errorf("%s: backward called before forward", l.name)
	}
	n := l.input.Shape[tensor.AxisBatch]
	voxels := l.input.Strides[tensor.AxisChannel]
	if gradOutput.NumElems != n*l.outChannels*voxels {
		return nil, errors.Errorf("%s: gradient shape %v does not match output", l.name, gradOutput.Shape)
	}

	gradInput := tensor.ZerosLike(l.input)
	for b := 0; b < n; b++ {
		for o := 0; o < l.outChannels; o++ {
			g := gradOutput.Data[(b*l.outChannels+o)*voxels : (b*l.outChannels+o+1)*voxels]
			var db float64
			for _, v := range g {
				db += v
			}
			l.bias.Grad.Data[o] += db

			for i := 0; i < l.inChannels; i++ {
				x := l.input.Data[(b*l.inChannels+i)*voxels : (b*l.inChannels+i+1)*voxels]
				gx := gradInput.Data[(b*l.inChannels+i)*voxels : (b*l.inChannels+i+1)*voxels]
				w := l.weight.Value.Data[o*l.inChannels+i]
				var dw float64
				for v := range g {
					dw += g[v] * x[v]
					gx[v] += w * g[v]
				}
				l.weight.Grad.Data[o*l.inChannels+i] += dw
			}
		}
	}
	return gradInput, nil
}
