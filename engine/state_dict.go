package engine

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/checkpoints"
)

// StateDict copies every model parameter into checkpoint weight tensors,
// in parameter order.
func StateDict(m Model) []checkpoints.WeightTensor {
	params := m.Parameters()
	weights := make([]checkpoints.WeightTensor, 0, len(params))
	for _, p := range params {
		data := make([]float64, len(p.Value.Data))
		copy(data, p.Value.Data)
		weights = append(weights, checkpoints.WeightTensor{
			Name:  p.Name,
			Shape: append([]int(nil), p.Value.Shape...),
			Data:  data,
		})
	}
	return weights
}

// LoadStateDict copies checkpoint weights into the model parameters. Every
// parameter must be present with a matching shape; extra weights are errors.
func LoadStateDict(m Model, weights []checkpoints.WeightTensor) error {
	weightMap := make(map[string]checkpoints.WeightTensor, len(weights))
	for _, w := range weights {
		weightMap[w.Name] = w
	}

	params := m.Parameters()
	if len(weights) != len(params) {
		return errors.Errorf("weight count mismatch: %d weights, %d parameters", len(weights), len(params))
	}

	for _, p := range params {
		w, ok := weightMap[p.Name]
		if !ok {
			return errors.Errorf("missing weight for parameter %s", p.Name)
		}
		if len(w.Shape) != len(p.Value.Shape) {
			return errors.Errorf("shape mismatch for weight %s: parameter %v vs weight %v", p.Name, p.Value.Shape, w.Shape)
		}
		for j, dim := range p.Value.Shape {
			if dim != w.Shape[j] {
				return errors.Errorf("dimension mismatch for weight %s at index %d: parameter %d vs weight %d", p.Name, j, dim, w.Shape[j])
			}
		}
		if len(w.Data) != p.Value.NumElems {
			return errors.Errorf("data length mismatch for weight %s: %d vs %d", p.Name, len(w.Data), p.Value.NumElems)
		}
	}

	// Validated as a whole before any parameter is touched.
	for _, p := range params {
		copy(p.Value.Data, weightMap[p.Name].Data)
	}
	return nil
}
