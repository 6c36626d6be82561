package training

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-volrecon/tensor"
)

// Loss interface defines methods that all loss functions must implement.
// Forward returns the scalar loss and Backward its gradient with respect to
// predicted.
type Loss interface {
	Forward(predicted, target *tensor.Tensor) (float64, error)
	Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
}

// MSELoss implements Mean Squared Error loss function
type MSELoss struct {
	reduction string // "mean" or "sum"
}

// NewMSELoss creates a new Mean Squared Error loss function
func NewMSELoss(reduction string) *MSELoss {
	if reduction == "" {
		reduction = "mean"
	}
	return &MSELoss{reduction: reduction}
}

// Forward computes the MSE loss: L = (1/N) * sum((y_pred - y_true)^2)
func (mse *MSELoss) Forward(predicted, target *tensor.Tensor) (float64, error) {
	diff, err := tensor.Sub(predicted, target)
	if err != nil {
		return 0, errors.Wrap(err, "mse")
	}
	loss := floats.Dot(diff.Data, diff.Data)
	if mse.reduction == "mean" {
		loss /= float64(predicted.NumElems)
	}
	return loss, nil
}

// Backward computes the gradient of MSE loss: 2 * (predicted - target) / N
func (mse *MSELoss) Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	diff, err := tensor.Sub(predicted, target)
	if err != nil {
		return nil, errors.Wrap(err, "mse gradient")
	}
	scale := 2.0
	if mse.reduction == "mean" {
		scale /= float64(predicted.NumElems)
	}
	return tensor.Scale(diff, scale), nil
}

// L1Loss implements mean absolute error
type L1Loss struct {
	reduction string
}

// NewL1Loss creates a new L1 loss function
func NewL1Loss(reduction string) *L1Loss {
	if reduction == "" {
		reduction = "mean"
	}
	return &L1Loss{reduction: reduction}
}

// Forward computes sum(|y_pred - y_true|), divided by N for "mean"
func (l1 *L1Loss) Forward(predicted, target *tensor.Tensor) (float64, error) {
	if !predicted.SameShape(target) {
		return 0, errors.Errorf("l1: shape mismatch %v vs %v", predicted.Shape, target.Shape)
	}
	loss := floats.Distance(predicted.Data, target.Data, 1)
	if l1.reduction == "mean" {
		loss /= float64(predicted.NumElems)
	}
	return loss, nil
}

// Backward computes sign(predicted - target), divided by N for "mean".
// The subgradient at zero is 0.
func (l1 *L1Loss) Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	diff, err := tensor.Sub(predicted, target)
	if err != nil {
		return nil, errors.Wrap(err, "l1 gradient")
	}
	scale := 1.0
	if l1.reduction == "mean" {
		scale /= float64(predicted.NumElems)
	}
	for i, v := range diff.Data {
		switch {
		case v > 0:
			diff.Data[i] = scale
		case v < 0:
			diff.Data[i] = -scale
		default:
			diff.Data[i] = 0
		}
	}
	return diff, nil
}

// CrossEntropyLoss is the per-voxel softmax cross entropy between logits
// [N, K, X, Y, Z] and class indices [N, 1, X, Y, Z], averaged over voxels.
type CrossEntropyLoss struct{}

// NewCrossEntropyLoss creates a new cross entropy loss
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{}
}

// eachVoxel visits every voxel of logits with its class index, the logit
// offsets of its K classes and a K-sized scratch buffer.
func (ce *CrossEntropyLoss) eachVoxel(logits, classes *tensor.Tensor, fn func(class int, offsets []int, probs []float64)) error {
	if logits.Rank() != 5 || classes.Rank() != 5 {
		return errors.Errorf("cross entropy needs 5-D logits and classes, got %v and %v", logits.Shape, classes.Shape)
	}
	n, k := logits.Shape[tensor.AxisBatch], logits.Shape[tensor.AxisChannel]
	if classes.Shape[tensor.AxisBatch] != n || classes.Shape[tensor.AxisChannel] != 1 {
		return errors.Errorf("class tensor shape %v does not match logits %v", classes.Shape, logits.Shape)
	}
	for axis := tensor.AxisX; axis <= tensor.AxisZ; axis++ {
		if classes.Shape[axis] != logits.Shape[axis] {
			return errors.Errorf("class tensor shape %v does not match logits %v", classes.Shape, logits.Shape)
		}
	}

	spatial := logits.NumElems / (n * k)
	offsets := make([]int, k)
	probs := make([]float64, k)
	for b := 0; b < n; b++ {
		for v := 0; v < spatial; v++ {
			class := int(classes.Data[b*spatial+v])
			if class < 0 || class >= k {
				return errors.Errorf("class %d outside [0, %d)", class, k)
			}
			for c := 0; c < k; c++ {
				offsets[c] = (b*k+c)*spatial + v
			}
			fn(class, offsets, probs)
		}
	}
	return nil
}

// logSoftmax returns log(softmax(x))[class] together with the softmax
// probabilities written into probs.
func logSoftmax(data []float64, offsets []int, class int, probs []float64) float64 {
	hi := math.Inf(-1)
	for _, o := range offsets {
		if data[o] > hi {
			hi = data[o]
		}
	}
	var sum float64
	for c, o := range offsets {
		probs[c] = math.Exp(data[o] - hi)
		sum += probs[c]
	}
	floats.Scale(1/sum, probs)
	return data[offsets[class]] - hi - math.Log(sum)
}

// Forward computes the mean negative log likelihood over voxels
func (ce *CrossEntropyLoss) Forward(logits, classes *tensor.Tensor) (float64, error) {
	var total float64
	var count int
	err := ce.eachVoxel(logits, classes, func(class int, offsets []int, probs []float64) {
		total -= logSoftmax(logits.Data, offsets, class, probs)
		count++
	})
	if err != nil {
		return 0, err
	}
	return total / float64(count), nil
}

// Backward computes (softmax - onehot) / voxels
func (ce *CrossEntropyLoss) Backward(logits, classes *tensor.Tensor) (*tensor.Tensor, error) {
	grad := tensor.ZerosLike(logits)
	var voxels int
	err := ce.eachVoxel(logits, classes, func(class int, offsets []int, probs []float64) {
		logSoftmax(logits.Data, offsets, class, probs)
		for c, o := range offsets {
			grad.Data[o] = probs[c]
		}
		grad.Data[offsets[class]] -= 1
		voxels++
	})
	if err != nil {
		return nil, err
	}
	floats.Scale(1/float64(voxels), grad.Data)
	return grad, nil
}
