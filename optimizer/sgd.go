package optimizer

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/layers"
)

// SGDOptimizerState holds SGD hyperparameters and momentum buffers
type SGDOptimizerState struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	Nesterov     bool

	MomentumBuffers [][]float64

	StepCount uint64

	params []*layers.Parameter
}

// SGDConfig holds configuration for SGD optimizer
type SGDConfig struct {
	LearningRate float64 `json:"learning_rate"`
	Momentum     float64 `json:"momentum"`
	WeightDecay  float64 `json:"weight_decay"`
	Nesterov     bool    `json:"nesterov"`
}

// DefaultSGDConfig returns default SGD optimizer configuration
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.9,
	}
}

// NewSGDOptimizer creates an SGD optimizer bound to params
func NewSGDOptimizer(config SGDConfig, params []*layers.Parameter) (*SGDOptimizerState, error) {
	if len(params) == 0 {
		return nil, errors.New("no parameters provided")
	}
	if config.LearningRate <= 0 {
		return nil, errors.Errorf("learning rate must be positive, got %g", config.LearningRate)
	}
	if config.Nesterov && config.Momentum <= 0 {
		return nil, errors.New("nesterov momentum requires a positive momentum")
	}

	sgd := &SGDOptimizerState{
		LearningRate:    config.LearningRate,
		Momentum:        config.Momentum,
		WeightDecay:     config.WeightDecay,
		Nesterov:        config.Nesterov,
		MomentumBuffers: make([][]float64, len(params)),
		params:          params,
	}
	for i, p := range params {
		sgd.MomentumBuffers[i] = make([]float64, p.Value.NumElems)
	}
	return sgd, nil
}

// Step performs a single SGD step
func (sgd *SGDOptimizerState) Step() error {
	if err := checkFinite(sgd.params, sgd.WeightDecay); err != nil {
		return err
	}
	sgd.StepCount++
	for i, p := range sgd.params {
		buf := sgd.MomentumBuffers[i]
		w, g := p.Value.Data, p.Grad.Data
		for j := range w {
			grad := g[j]
			if sgd.WeightDecay != 0 {
				grad += sgd.WeightDecay * w[j]
			}
			if sgd.Momentum != 0 {
				buf[j] = sgd.Momentum*buf[j] + grad
				if sgd.Nesterov {
					grad += sgd.Momentum * buf[j]
				} else {
					grad = buf[j]
				}
			}
			w[j] -= sgd.LearningRate * grad
		}
	}
	return nil
}

func (sgd *SGDOptimizerState) ZeroGrad() {
	zeroGrad(sgd.params)
}

func (sgd *SGDOptimizerState) UpdateLearningRate(newLR float64) {
	sgd.LearningRate = newLR
}

func (sgd *SGDOptimizerState) GetLearningRate() float64 {
	return sgd.LearningRate
}

func (sgd *SGDOptimizerState) GetStepCount() uint64 {
	return sgd.StepCount
}

// GetState extracts momentum buffers and hyperparameters for checkpointing
func (sgd *SGDOptimizerState) GetState() (*OptimizerState, error) {
	nesterov := 0.0
	if sgd.Nesterov {
		nesterov = 1
	}
	state := &OptimizerState{
		Type: "SGD",
		Parameters: map[string]float64{
			"learning_rate": sgd.LearningRate,
			"momentum":      sgd.Momentum,
			"weight_decay":  sgd.WeightDecay,
			"nesterov":      nesterov,
		},
		StepCount: sgd.StepCount,
	}
	for i, p := range sgd.params {
		state.StateData = append(state.StateData,
			extractBufferState(sgd.MomentumBuffers[i], p.Value.Shape, fmt.Sprintf("momentum_%d", i), "momentum"))
	}
	return state, nil
}

// LoadState restores momentum buffers and hyperparameters from a checkpoint
func (sgd *SGDOptimizerState) LoadState(state *OptimizerState) error {
	if err := validateStateType("SGD", state); err != nil {
		return err
	}
	if err := restoreStateTensors(state, map[string][][]float64{"momentum": sgd.MomentumBuffers}); err != nil {
		return errors.Wrap(err, "restoring SGD state")
	}

	sgd.LearningRate = extractFloatParam(state.Parameters, "learning_rate", sgd.LearningRate)
	sgd.Momentum = extractFloatParam(state.Parameters, "momentum", sgd.Momentum)
	sgd.WeightDecay = extractFloatParam(state.Parameters, "weight_decay", sgd.WeightDecay)
	sgd.Nesterov = extractFloatParam(state.Parameters, "nesterov", 0) != 0
	sgd.StepCount = state.StepCount
	return nil
}
