package engine

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/checkpoints"
	"github.com/tsawler/go-volrecon/layers"
	"github.com/tsawler/go-volrecon/tensor"
)

// Outputs is the result of one forward pass: the reconstructed volume and
// two auxiliary feature maps at reduced resolution.
type Outputs struct {
	Primary *tensor.Tensor
	Aux1    *tensor.Tensor
	Aux2    *tensor.Tensor
}

// Gradients carries loss gradients for each model output. A nil auxiliary
// gradient means that head did not contribute to the loss.
type Gradients struct {
	Primary *tensor.Tensor
	Aux1    *tensor.Tensor
	Aux2    *tensor.Tensor
}

// Model is the network contract the training driver relies on.
// Backward must follow the Forward call whose outputs produced the gradients.
type Model interface {
	Type() checkpoints.ModelType
	Forward(input *tensor.Tensor) (*Outputs, error)
	Backward(grads *Gradients) error
	Parameters() []*layers.Parameter
	Train()
	Eval()
	IsTraining() bool
}

// ReconModelConfig configures the reference reconstruction model
type ReconModelConfig struct {
	Channels   int // input/output channels
	AuxClasses int // logits per voxel of each auxiliary head
	Aux1Scale  int // spatial reduction of the first auxiliary head
	Aux2Scale  int // spatial reduction of the second auxiliary head
}

// DefaultReconModelConfig returns the configuration matching the auxiliary
// targets built at 1/4 and 1/8 resolution with three classes.
func DefaultReconModelConfig() ReconModelConfig {
	return ReconModelConfig{
		Channels:   1,
		AuxClasses: 3,
		Aux1Scale:  4,
		Aux2Scale:  8,
	}
}

// ReconModel is a small CPU reference network: a per-channel scale/shift
// produces the reconstruction and two pooled 1×1×1 heads produce the
// auxiliary logits.
type ReconModel struct {
	recon    *layers.ScaleShiftLayer
	aux1Pool *layers.AvgPool3DLayer
	aux1Head *layers.PointwiseLayer
	aux2Pool *layers.AvgPool3DLayer
	aux2Head *layers.PointwiseLayer
	training bool
}

// NewReconModel builds the reference model
func NewReconModel(config ReconModelConfig) (*ReconModel, error) {
	if config.Channels <= 0 || config.AuxClasses <= 0 {
		return nil, errors.Errorf("invalid model configuration: %+v", config)
	}

	recon, err := layers.NewScaleShift("recon", config.Channels)
	if err != nil {
		return nil, err
	}
	aux1Pool, err := layers.NewAvgPool3D("aux1_pool", config.Aux1Scale)
	if err != nil {
		return nil, err
	}
	aux1Head, err := layers.NewPointwise("aux1", config.Channels, config.AuxClasses)
	if err != nil {
		return nil, err
	}
	aux2Pool, err := layers.NewAvgPool3D("aux2_pool", config.Aux2Scale)
	if err != nil {
		return nil, err
	}
	aux2Head, err := layers.NewPointwise("aux2", config.Channels, config.AuxClasses)
	if err != nil {
		return nil, err
	}

	return &ReconModel{
		recon:    recon,
		aux1Pool: aux1Pool,
		aux1Head: aux1Head,
		aux2Pool: aux2Pool,
		aux2Head: aux2Head,
		training: true,
	}, nil
}

func (m *ReconModel) Type() checkpoints.ModelType {
	return checkpoints.ModelReconNet
}

func (m *ReconModel) Layers() []layers.Layer {
	return []layers.Layer{m.recon, m.aux1Pool, m.aux1Head, m.aux2Pool, m.aux2Head}
}

func (m *ReconModel) Parameters() []*layers.Parameter {
	var params []*layers.Parameter
	for _, l := range m.Layers() {
		params = append(params, l.Parameters()...)
	}
	return params
}

func (m *ReconModel) Train()           { m.training = true }
func (m *ReconModel) Eval()            { m.training = false }
func (m *ReconModel) IsTraining() bool { return m.training }

func (m *ReconModel) Forward(input *tensor.Tensor) (*Outputs, error) {
	primary, err := m.recon.Forward(input)
	if err != nil {
		return nil, errors.Wrap(err, "reconstruction head")
	}

	pooled1, err := m.aux1Pool.Forward(input)
	if err != nil {
		return nil, errors.Wrap(err, "auxiliary head 1")
	}
	aux1, err := m.aux1Head.Forward(pooled1)
	if err != nil {
		return nil, errors.Wrap(err, "auxiliary head 1")
	}

	pooled2, err := m.aux2Pool.Forward(input)
	if err != nil {
		return nil, errors.Wrap(err, "auxiliary head 2")
	}
	aux2, err := m.aux2Head.Forward(pooled2)
	if err != nil {
		return nil, errors.Wrap(err, "auxiliary head 2")
	}

	return &Outputs{Primary: primary, Aux1: aux1, Aux2: aux2}, nil
}

// Backward accumulates parameter gradients. The heads share no parameters,
// so input gradients are not propagated further.
func (m *ReconModel) Backward(grads *Gradients) error {
	if grads == nil || grads.Primary == nil {
		return errors.New("backward needs a gradient for the primary output")
	}
	if _, err := m.recon.Backward(grads.Primary); err != nil {
		return errors.Wrap(err, "reconstruction head")
	}
	if grads.Aux1 != nil {
		if _, err := m.aux1Head.Backward(grads.Aux1); err != nil {
			return errors.Wrap(err, "auxiliary head 1")
		}
	}
	if grads.Aux2 != nil {
		if _, err := m.aux2Head.Backward(grads.Aux2); err != nil {
			return errors.Wrap(err, "auxiliary head 2")
		}
	}
	return nil
}
