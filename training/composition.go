package training

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/engine"
	"github.com/tsawler/go-volrecon/tensor"
)

// LossComposer turns the model outputs of one batch into the total training
// loss and the gradients to backpropagate. recon is the reconstruction loss
// the trainer reports.
type LossComposer interface {
	Compose(out *engine.Outputs, target *tensor.Tensor, weights LossWeights) (total, recon float64, grads *engine.Gradients, err error)
	Name() string
}

// PrimaryOnly trains on the reconstruction loss alone; the auxiliary
// outputs and the loss weights are ignored.
type PrimaryOnly struct {
	Recon Loss
}

func (p *PrimaryOnly) Name() string { return "primary" }

// Compose returns the reconstruction loss as the total
func (p *PrimaryOnly) Compose(out *engine.Outputs, target *tensor.Tensor, _ LossWeights) (float64, float64, *engine.Gradients, error) {
	recon, err := p.Recon.Forward(out.Primary, target)
	if err != nil {
		return 0, 0, nil, errors.Wrap(err, "reconstruction loss")
	}
	grad, err := p.Recon.Backward(out.Primary, target)
	if err != nil {
		return 0, 0, nil, errors.Wrap(err, "reconstruction gradient")
	}
	return recon, recon, &engine.Gradients{Primary: grad}, nil
}

// WeightedAuxiliary adds cross entropy terms on the auxiliary heads against
// ternary class maps of the target:
//
//	total = w0*recon + w1*CE(aux1, InterTarget(target, Aux1Scale)) + w2*CE(aux2, InterTarget(target, Aux2Scale))
type WeightedAuxiliary struct {
	Recon     Loss
	Inter     *CrossEntropyLoss
	Aux1Scale int
	Aux2Scale int
	Threshold float64
}

// NewWeightedAuxiliary builds the composer for heads at 1/4 and 1/8
// resolution.
func NewWeightedAuxiliary(recon Loss) *WeightedAuxiliary {
	return &WeightedAuxiliary{
		Recon:     recon,
		Inter:     NewCrossEntropyLoss(),
		Aux1Scale: 4,
		Aux2Scale: 8,
		Threshold: 0.1,
	}
}

func (w *WeightedAuxiliary) Name() string { return "weighted-auxiliary" }

// Compose returns the weighted total and gradients for all three outputs
func (w *WeightedAuxiliary) Compose(out *engine.Outputs, target *tensor.Tensor, weights LossWeights) (float64, float64, *engine.Gradients, error) {
	recon, err := w.Recon.Forward(out.Primary, target)
	if err != nil {
		return 0, 0, nil, errors.Wrap(err, "reconstruction loss")
	}
	grad, err := w.Recon.Backward(out.Primary, target)
	if err != nil {
		return 0, 0, nil, errors.Wrap(err, "reconstruction gradient")
	}

	total := weights[0] * recon
	grads := &engine.Gradients{Primary: tensor.Scale(grad, weights[0])}

	heads := []struct {
		logits *tensor.Tensor
		scale  int
		weight float64
		dst    **tensor.Tensor
	}{
		{out.Aux1, w.Aux1Scale, weights[1], &grads.Aux1},
		{out.Aux2, w.Aux2Scale, weights[2], &grads.Aux2},
	}
	for i, h := range heads {
		if h.logits == nil {
			return 0, 0, nil, errors.Errorf("model produced no auxiliary output %d", i+1)
		}
		classes, err := InterTarget(target, h.scale, w.Threshold)
		if err != nil {
			return 0, 0, nil, errors.Wrapf(err, "auxiliary target %d", i+1)
		}
		loss, err := w.Inter.Forward(h.logits, classes)
		if err != nil {
			return 0, 0, nil, errors.Wrapf(err, "auxiliary loss %d", i+1)
		}
		g, err := w.Inter.Backward(h.logits, classes)
		if err != nil {
			return 0, 0, nil, errors.Wrapf(err, "auxiliary gradient %d", i+1)
		}
		total += h.weight * loss
		*h.dst = tensor.Scale(g, h.weight)
	}
	return total, recon, grads, nil
}

// InterTarget builds the class map for an auxiliary head: the target is
// ternarized at threshold, resized with align-corners trilinear
// interpolation to 1/scale of each spatial extent, and mapped to class 1
// where positive, class 2 where negative and class 0 elsewhere. The result
// has shape [N, 1, X/scale, Y/scale, Z/scale].
func InterTarget(target *tensor.Tensor, scale int, threshold float64) (*tensor.Tensor, error) {
	if scale <= 0 {
		return nil, errors.Errorf("invalid scale %d", scale)
	}
	if target.Rank() != 5 || target.Shape[tensor.AxisChannel] != 1 {
		return nil, errors.Errorf("interTarget needs a single-channel 5-D target, got %v", target.Shape)
	}

	size := [3]int{
		target.Shape[tensor.AxisX] / scale,
		target.Shape[tensor.AxisY] / scale,
		target.Shape[tensor.AxisZ] / scale,
	}
	resized, err := tensor.Trilinear(tensor.Ternarize(target, threshold), size)
	if err != nil {
		return nil, err
	}

	classes := tensor.ZerosLike(resized)
	for i, v := range resized.Data {
		switch {
		case v > 0:
			classes.Data[i] = 1
		case v < 0:
			classes.Data[i] = 2
		}
	}
	return classes, nil
}
