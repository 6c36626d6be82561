package optimizer

import "testing"

func TestValidateStateType(t *testing.T) {
	if err := validateStateType("Adam", nil); err == nil {
		t.Error("expected error for nil state")
	}
	if err := validateStateType("Adam", &OptimizerState{Type: "SGD"}); err == nil {
		t.Error("expected error for mismatched state type")
	}
	if err := validateStateType("Adam", &OptimizerState{Type: "Adam"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestZeroGrad(t *testing.T) {
	params := newTestParams(1, 2)
	setQuadraticGrad(params)
	zeroGrad(params)
	for _, g := range params[0].Grad.Data {
		if g != 0 {
			t.Fatalf("gradient not cleared: %v", params[0].Grad.Data)
		}
	}
}
