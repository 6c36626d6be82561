package optimizer

import (
	"math"
	"reflect"
	"testing"
)

func TestSGDConfig(t *testing.T) {
	config := DefaultSGDConfig()
	if config.LearningRate != 0.01 || config.Momentum != 0.9 || config.Nesterov {
		t.Errorf("unexpected default SGD config: %+v", config)
	}
}

func TestSGDStep(t *testing.T) {
	tests := []struct {
		name     string
		config   SGDConfig
		expected []float64 // weights after two steps starting from w=1, g=w
	}{
		{"plain", SGDConfig{LearningRate: 0.1}, []float64{0.81}},
		// v1 = 1, w = 0.9; v2 = 0.5 + 0.9 = 1.4, w = 0.9 - 0.14
		{"momentum", SGDConfig{LearningRate: 0.1, Momentum: 0.5}, []float64{0.76}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			params := newTestParams(1)
			sgd, err := NewSGDOptimizer(test.config, params)
			if err != nil {
				t.Fatalf("NewSGDOptimizer failed: %v", err)
			}
			for i := 0; i < 2; i++ {
				sgd.ZeroGrad()
				setQuadraticGrad(params)
				if err := sgd.Step(); err != nil {
					t.Fatalf("Step failed: %v", err)
				}
			}
			for i, w := range test.expected {
				if math.Abs(params[0].Value.Data[i]-w) > 1e-12 {
					t.Errorf("w[%d] = %f, expected %f", i, params[0].Value.Data[i], w)
				}
			}
		})
	}
}

func TestSGDStateRoundTrip(t *testing.T) {
	params := newTestParams(1, -1)
	config := DefaultSGDConfig()
	config.Nesterov = true
	sgd, _ := NewSGDOptimizer(config, params)
	setQuadraticGrad(params)
	if err := sgd.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	state, err := sgd.GetState()
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}

	restored, _ := NewSGDOptimizer(SGDConfig{LearningRate: 1}, newTestParams(0, 0))
	if err := restored.LoadState(state); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if !restored.Nesterov || restored.Momentum != 0.9 || restored.StepCount != 1 {
		t.Errorf("hyperparameters not restored: %+v", restored)
	}
	if !reflect.DeepEqual(restored.MomentumBuffers, sgd.MomentumBuffers) {
		t.Errorf("momentum mismatch: %v vs %v", restored.MomentumBuffers, sgd.MomentumBuffers)
	}

	if err := restored.LoadState(&OptimizerState{Type: "Adam"}); err == nil {
		t.Error("expected error for wrong optimizer type")
	}
}

func TestExtractBufferIndex(t *testing.T) {
	tests := []struct {
		name     string
		expected int
	}{
		{"momentum_0", 0},
		{"variance_12", 12},
		{"squared_grad_avg_3", 3},
		{"momentum", -1},
		{"momentum_x", -1},
	}

	for _, test := range tests {
		if result := extractBufferIndex(test.name); result != test.expected {
			t.Errorf("extractBufferIndex(%q) = %d, expected %d", test.name, result, test.expected)
		}
	}
}
