package layers

import (
	"fmt"

	"github.com/tsawler/go-volrecon/tensor"
)

// LayerType represents the type of a reference network layer
type LayerType int

const (
	ScaleShift LayerType = iota
	AvgPool3D
	Pointwise
)

func (lt LayerType) String() string {
	switch lt {
	case ScaleShift:
		return "ScaleShift"
	case AvgPool3D:
		return "AvgPool3D"
	case Pointwise:
		return "Pointwise"
	default:
		return "Unknown"
	}
}

// Parameter is a learnable tensor together with its accumulated gradient.
type Parameter struct {
	Name  string
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// NewParameter wraps value with a zeroed gradient of the same shape.
func NewParameter(name string, value *tensor.Tensor) *Parameter {
	return &Parameter{
		Name:  name,
		Value: value,
		Grad:  tensor.ZerosLike(value),
	}
}

// ZeroGrad clears the accumulated gradient.
func (p *Parameter) ZeroGrad() {
	p.Grad.Fill(0)
}

func (p *Parameter) String() string {
	return fmt.Sprintf("Parameter(%s, shape=%v)", p.Name, p.Value.Shape)
}

// Layer is a differentiable transformation with an explicit backward pass.
// Forward caches whatever Backward needs; Backward accumulates parameter
// gradients and returns the gradient with respect to the layer input.
type Layer interface {
	Type() LayerType
	Name() string
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*Parameter
}

// LayerSpec describes a layer for architecture summaries.
type LayerSpec struct {
	Type           LayerType `json:"type"`
	Name           string    `json:"name"`
	ParameterCount int64     `json:"parameter_count,omitempty"`
}

// Describe builds the summary spec of a layer.
func Describe(l Layer) LayerSpec {
	var count int64
	for _, p := range l.Parameters() {
		count += int64(p.Value.NumElems)
	}
	return LayerSpec{Type: l.Type(), Name: l.Name(), ParameterCount: count}
}
