package optimizer

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/checkpoints"
)

// Common helper functions for optimizer state management

// extractBufferState copies a single state buffer into a checkpoint tensor
func extractBufferState(buffer []float64, shape []int, name string, stateType string) checkpoints.OptimizerTensor {
	data := make([]float64, len(buffer))
	copy(data, buffer)
	return checkpoints.OptimizerTensor{
		Name:      name,
		Shape:     append([]int(nil), shape...),
		Data:      data,
		StateType: stateType,
	}
}

// restoreBufferState copies checkpoint data back into a state buffer
func restoreBufferState(buffer []float64, data []float64, name string) error {
	if len(data) != len(buffer) {
		return errors.Errorf("data size mismatch for %s: expected %d elements, got %d",
			name, len(buffer), len(data))
	}
	copy(buffer, data)
	return nil
}

// extractFloatParam safely extracts a float parameter from the state map
func extractFloatParam(params map[string]float64, key string, defaultValue float64) float64 {
	if val, ok := params[key]; ok {
		return val
	}
	return defaultValue
}

// restoreStateTensors routes every state tensor to the buffer set named by
// its state type, using the index suffix of its name.
func restoreStateTensors(state *OptimizerState, buffers map[string][][]float64) error {
	for _, t := range state.StateData {
		set, ok := buffers[t.StateType]
		if !ok {
			return errors.Errorf("unexpected state tensor type %q (%s)", t.StateType, t.Name)
		}
		idx := extractBufferIndex(t.Name)
		if idx < 0 || idx >= len(set) {
			return errors.Errorf("state tensor %s has no matching parameter", t.Name)
		}
		if err := restoreBufferState(set[idx], t.Data, t.Name); err != nil {
			return err
		}
	}
	return nil
}
