package optimizer

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/checkpoints"
	"github.com/tsawler/go-volrecon/layers"
)

// Optimizer defines the common interface for all optimizers.
// An optimizer is bound to a parameter set when it is created; the state
// save/restore methods back checkpoint persistence.
type Optimizer interface {
	// Step applies one update to every bound parameter from its gradient
	Step() error

	// ZeroGrad clears the gradients of the bound parameters
	ZeroGrad()

	// GetState extracts optimizer state for checkpointing
	GetState() (*OptimizerState, error)

	// LoadState restores optimizer state from a checkpoint
	LoadState(state *OptimizerState) error

	// GetStepCount returns the current optimization step number
	GetStepCount() uint64

	// UpdateLearningRate updates the learning rate
	UpdateLearningRate(lr float64)

	// GetLearningRate returns the learning rate used by the next step
	GetLearningRate() float64
}

// OptimizerState represents the complete state of an optimizer
type OptimizerState = checkpoints.OptimizerState

// zeroGrad clears every parameter gradient.
func zeroGrad(params []*layers.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// checkFinite fails on the first parameter whose effective gradient is NaN
// or infinite. Optimizers call it before touching any state.
func checkFinite(params []*layers.Parameter, weightDecay float64) error {
	for _, p := range params {
		w, g := p.Value.Data, p.Grad.Data
		for j := range g {
			grad := g[j] + weightDecay*w[j]
			if math.IsNaN(grad) || math.IsInf(grad, 0) {
				return errors.Errorf("non-finite gradient in %s", p.Name)
			}
		}
	}
	return nil
}

// extractBufferIndex extracts the buffer index from state tensor names like "momentum_0", "variance_1"
func extractBufferIndex(name string) int {
	var idx int
	lastUnderscoreIdx := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '_' {
			lastUnderscoreIdx = i
			break
		}
	}

	if lastUnderscoreIdx == -1 {
		return -1
	}

	if n, err := fmt.Sscanf(name[lastUnderscoreIdx+1:], "%d", &idx); n == 1 && err == nil {
		return idx
	}
	return -1
}

// validateStateType ensures the state type matches the optimizer
func validateStateType(optimizerType string, state *OptimizerState) error {
	if state == nil {
		return errors.New("no optimizer state to load")
	}
	if state.Type != optimizerType {
		return errors.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}
