package layers

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/tensor"
)

// ScaleShiftLayer applies y = w[c]*x + b[c] independently to every voxel of
// channel c of a [N, C, X, Y, Z] volume.
type ScaleShiftLayer struct {
	name     string
	channels int
	weight   *Parameter
	bias     *Parameter

	input *tensor.Tensor
}

// NewScaleShift creates the layer with unit weights and zero biases.
func NewScaleShift(name string, channels int) (*ScaleShiftLayer, error) {
	w, err := tensor.Full([]int{channels}, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "creating weight for %s", name)
	}
	b, err := tensor.Zeros([]int{channels})
	if err != nil {
		return nil, errors.Wrapf(err, "creating bias for %s", name)
	}
	return &ScaleShiftLayer{
		name:     name,
		channels: channels,
		weight:   NewParameter(name+".weight", w),
		bias:     NewParameter(name+".bias", b),
	}, nil
}

func (l *ScaleShiftLayer) Type() LayerType { return ScaleShift }
func (l *ScaleShiftLayer) Name() string    { return l.name }

func (l *ScaleShiftLayer) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

func (l *ScaleShiftLayer) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if input.Rank() != 5 || input.Shape[tensor.AxisChannel] != l.channels {
		return nil, errors.Errorf("%s expects [N, %d, X, Y, Z], got %v", l.name, l.channels, input.Shape)
	}
	l.input = input

	out := tensor.ZerosLike(input)
	block := input.Strides[tensor.AxisChannel]
	for start := 0; start < input.NumElems; start += block {
		c := (start / block) % l.channels
		w, b := l.weight.Value.Data[c], l.bias.Value.Data[c]
		for i := start; i < start+block; i++ {
			out.Data[i] = w*input.Data[i] + b
		}
	}
	return out, nil
}

func (l *ScaleShiftLayer) Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	if l.input == nil {
		return nil, errors.Errorf("%s: backward called before forward", l.name)
	}
	if !gradOutput.SameShape(l.input) {
		return nil, errors.Errorf("%s: gradient shape %v does not match input %v", l.name, gradOutput.Shape, l.input.Shape)
	}

	gradInput := tensor.ZerosLike(l.input)
	block := l.input.Strides[tensor.AxisChannel]
	for start := 0; start < l.input.NumElems; start += block {
		c := (start / block) % l.channels
		w := l.weight.Value.Data[c]
		var dw, db float64
		for i := start; i < start+block; i++ {
			g := gradOutput.Data[i]
			dw += g * l.input.Data[i]
			db += g
			gradInput.Data[i] = w * g
		}
		l.weight.Grad.Data[c] += dw
		l.bias.Grad.Data[c] += db
	}
	return gradInput, nil
}
