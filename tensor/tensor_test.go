package tensor

import (
	"math"
	"reflect"
	"testing"
)

func TestCalculateStrides(t *testing.T) {
	tests := []struct {
		shape    []int
		expected []int
	}{
		{[]int{}, []int{}},
		{[]int{5}, []int{1}},
		{[]int{2, 3}, []int{3, 1}},
		{[]int{2, 3, 4}, []int{12, 4, 1}},
		{[]int{1, 5, 1, 3}, []int{15, 3, 3, 1}},
	}

	for _, test := range tests {
		result := calculateStrides(test.shape)
		if !reflect.DeepEqual(result, test.expected) {
			t.Errorf("calculateStrides(%v) = %v, expected %v", test.shape, result, test.expected)
		}
	}
}

func TestNewTensorValidation(t *testing.T) {
	if _, err := NewTensor([]int{2, 0}, nil); err == nil {
		t.Error("expected error for zero-sized dimension")
	}
	if _, err := NewTensor([]int{2, 2}, []float64{1, 2, 3}); err == nil {
		t.Error("expected error for data length mismatch")
	}

	tensor, err := NewTensor([]int{2, 3}, nil)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	if tensor.NumElems != 6 || len(tensor.Data) != 6 {
		t.Errorf("expected 6 elements, got %d (data %d)", tensor.NumElems, len(tensor.Data))
	}
}

func TestSqueeze(t *testing.T) {
	tensor, _ := Zeros([]int{1, 1, 4, 1, 3})
	squeezed := tensor.Squeeze()
	if !reflect.DeepEqual(squeezed.Shape, []int{4, 3}) {
		t.Errorf("Squeeze shape = %v, expected [4 3]", squeezed.Shape)
	}

	scalar, _ := Zeros([]int{1, 1})
	if !reflect.DeepEqual(scalar.Squeeze().Shape, []int{1}) {
		t.Errorf("Squeeze of unit tensor = %v, expected [1]", scalar.Squeeze().Shape)
	}
}

func TestCrop(t *testing.T) {
	data := make([]float64, 4*5*6)
	for i := range data {
		data[i] = float64(i)
	}
	tensor, _ := NewTensor([]int{4, 5, 6}, data)

	cropped, err := Crop(tensor, []int{1, 2, 3}, []int{3, 4, 6})
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if !reflect.DeepEqual(cropped.Shape, []int{2, 2, 3}) {
		t.Fatalf("Crop shape = %v, expected [2 2 3]", cropped.Shape)
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			for k := 0; k < 3; k++ {
				want := tensor.At(i+1, j+2, k+3)
				if got := cropped.At(i, j, k); got != want {
					t.Errorf("cropped[%d,%d,%d] = %f, expected %f", i, j, k, got, want)
				}
			}
		}
	}

	// Leading axes only: the remaining axes are kept whole.
	partial, err := Crop(tensor, []int{2}, []int{3})
	if err != nil {
		t.Fatalf("partial Crop failed: %v", err)
	}
	if !reflect.DeepEqual(partial.Shape, []int{1, 5, 6}) {
		t.Errorf("partial Crop shape = %v", partial.Shape)
	}

	if _, err := Crop(tensor, []int{0, 0, 4}, []int{1, 1, 7}); err == nil {
		t.Error("expected error for out-of-range crop")
	}
}

func TestStackUnstack(t *testing.T) {
	a, _ := Full([]int{1, 1, 2, 2, 2}, 1)
	b, _ := Full([]int{1, 1, 2, 2, 2}, 2)

	stacked, err := Stack([]*Tensor{a, b})
	if err != nil {
		t.Fatalf("Stack failed: %v", err)
	}
	if stacked.Shape[0] != 2 {
		t.Fatalf("expected batch of 2, got %v", stacked.Shape)
	}

	parts := Unstack(stacked)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[1].Data[0] != 2 || parts[0].Data[7] != 1 {
		t.Errorf("unstacked values wrong: %v / %v", parts[0].Data, parts[1].Data)
	}

	c, _ := Zeros([]int{1, 1, 3, 2, 2})
	if _, err := Stack([]*Tensor{a, c}); err == nil {
		t.Error("expected error stacking mismatched shapes")
	}
}

func TestArithmetic(t *testing.T) {
	a, _ := NewTensor([]int{3}, []float64{1, 2, 3})
	b, _ := NewTensor([]int{3}, []float64{0.5, 0.5, 0.5})

	diff, err := Sub(a, b)
	if err != nil {
		t.Fatalf("Sub failed: %v", err)
	}
	if !reflect.DeepEqual(diff.Data, []float64{0.5, 1.5, 2.5}) {
		t.Errorf("Sub = %v", diff.Data)
	}

	shifted := AddScalar(a, 0.03)
	if math.Abs(shifted.Data[2]-3.03) > 1e-12 {
		t.Errorf("AddScalar = %v", shifted.Data)
	}
	if a.Data[2] != 3 {
		t.Error("AddScalar modified its input")
	}

	if Sum(a) != 6 || Mean(a) != 2 {
		t.Errorf("Sum/Mean = %f/%f", Sum(a), Mean(a))
	}

	other, _ := Zeros([]int{4})
	if _, err := Add(a, other); err == nil {
		t.Error("expected shape error from Add")
	}
}

func TestTernarize(t *testing.T) {
	in, _ := NewTensor([]int{5}, []float64{0.5, 0.1, 0, -0.1, -0.2})
	out := Ternarize(in, 0.1)
	want := []float64{1, 0, 0, 0, -1}
	if !reflect.DeepEqual(out.Data, want) {
		t.Errorf("Ternarize = %v, expected %v", out.Data, want)
	}
}
