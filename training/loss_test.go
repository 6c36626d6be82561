package training

import (
	"math"
	"testing"

	"github.com/tsawler/go-volrecon/tensor"
)

func TestMSELoss(t *testing.T) {
	pred, _ := tensor.NewTensor([]int{4}, []float64{1, 2, 3, 4})
	target, _ := tensor.NewTensor([]int{4}, []float64{1, 1, 1, 1})

	tests := []struct {
		reduction string
		loss      float64
		grad      []float64
	}{
		{"mean", 14.0 / 4, []float64{0, 0.5, 1, 1.5}},
		{"sum", 14, []float64{0, 2, 4, 6}},
	}
	for _, tt := range tests {
		mse := NewMSELoss(tt.reduction)
		loss, err := mse.Forward(pred, target)
		if err != nil {
			t.Fatalf("%s: Forward failed: %v", tt.reduction, err)
		}
		if math.Abs(loss-tt.loss) > 1e-12 {
			t.Errorf("%s: loss = %f, expected %f", tt.reduction, loss, tt.loss)
		}
		grad, err := mse.Backward(pred, target)
		if err != nil {
			t.Fatalf("%s: Backward failed: %v", tt.reduction, err)
		}
		for i, g := range grad.Data {
			if math.Abs(g-tt.grad[i]) > 1e-12 {
				t.Errorf("%s: grad[%d] = %f, expected %f", tt.reduction, i, g, tt.grad[i])
			}
		}
	}

	other, _ := tensor.Zeros([]int{3})
	if _, err := NewMSELoss("").Forward(pred, other); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestL1Loss(t *testing.T) {
	pred, _ := tensor.NewTensor([]int{4}, []float64{1, 3, -1, 2})
	target, _ := tensor.NewTensor([]int{4}, []float64{2, 1, -1, 2})

	l1 := NewL1Loss("")
	loss, err := l1.Forward(pred, target)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if loss != 0.75 {
		t.Errorf("loss = %f, expected 0.75", loss)
	}

	grad, err := l1.Backward(pred, target)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	expected := []float64{-0.25, 0.25, 0, 0}
	for i, g := range grad.Data {
		if g != expected[i] {
			t.Errorf("grad[%d] = %f, expected %f", i, g, expected[i])
		}
	}
}

func TestCrossEntropyUniformLogits(t *testing.T) {
	// Equal logits over 3 classes give log(3) for every voxel.
	logits, _ := tensor.Zeros([]int{1, 3, 2, 1, 1})
	classes, _ := tensor.NewTensor([]int{1, 1, 2, 1, 1}, []float64{0, 2})

	ce := NewCrossEntropyLoss()
	loss, err := ce.Forward(logits, classes)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if math.Abs(loss-math.Log(3)) > 1e-12 {
		t.Errorf("loss = %f, expected log(3)", loss)
	}

	grad, err := ce.Backward(logits, classes)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	// Layout [class][voxel]: voxel 0 is class 0, voxel 1 is class 2.
	third := 1.0 / 3
	expected := []float64{
		(third - 1) / 2, third / 2,
		third / 2, third / 2,
		third / 2, (third - 1) / 2,
	}
	for i, g := range grad.Data {
		if math.Abs(g-expected[i]) > 1e-12 {
			t.Errorf("grad[%d] = %f, expected %f", i, g, expected[i])
		}
	}
}

func TestCrossEntropyGradientMatchesFiniteDifference(t *testing.T) {
	logits, _ := tensor.NewTensor([]int{1, 3, 2, 1, 1}, []float64{0.3, -1.2, 2.0, 0.1, -0.5, 0.7})
	classes, _ := tensor.NewTensor([]int{1, 1, 2, 1, 1}, []float64{1, 0})
	ce := NewCrossEntropyLoss()

	grad, err := ce.Backward(logits, classes)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	const h = 1e-6
	for i := range logits.Data {
		orig := logits.Data[i]
		logits.Data[i] = orig + h
		up, _ := ce.Forward(logits, classes)
		logits.Data[i] = orig - h
		down, _ := ce.Forward(logits, classes)
		logits.Data[i] = orig

		numeric := (up - down) / (2 * h)
		if math.Abs(numeric-grad.Data[i]) > 1e-6 {
			t.Errorf("grad[%d] = %f, numeric %f", i, grad.Data[i], numeric)
		}
	}
}

func TestCrossEntropyErrors(t *testing.T) {
	ce := NewCrossEntropyLoss()
	logits, _ := tensor.Zeros([]int{1, 3, 2, 2, 2})

	badClass, _ := tensor.Full([]int{1, 1, 2, 2, 2}, 3)
	if _, err := ce.Forward(logits, badClass); err == nil {
		t.Error("expected error for class outside range")
	}

	badShape, _ := tensor.Zeros([]int{1, 1, 2, 2, 1})
	if _, err := ce.Forward(logits, badShape); err == nil {
		t.Error("expected error for spatial shape mismatch")
	}

	flat, _ := tensor.Zeros([]int{3})
	if _, err := ce.Backward(flat, flat); err == nil {
		t.Error("expected error for non 5-D tensors")
	}
}
