package training

import "math"

// LossWeights are the multipliers of the reconstruction loss and the two
// auxiliary losses. They need not sum to 1.
type LossWeights [3]float64

// LossWeightSchedule maps an epoch to the loss weights in effect. It is a
// step function: the first bucket whose Until exceeds the epoch wins and
// epochs past the last bucket use Final.
type LossWeightSchedule struct {
	Buckets []LossWeightBucket
	Final   LossWeights
}

// LossWeightBucket applies Weights to every epoch below Until.
type LossWeightBucket struct {
	Until   int
	Weights LossWeights
}

// DefaultLossWeightSchedule returns the four-bucket schedule that shifts
// weight from the auxiliary heads to the reconstruction over the first
// 150 epochs.
func DefaultLossWeightSchedule() LossWeightSchedule {
	return LossWeightSchedule{
		Buckets: []LossWeightBucket{
			{Until: 50, Weights: LossWeights{0.2, 0.4, 0.4}},
			{Until: 100, Weights: LossWeights{0.4, 0.3, 0.3}},
			{Until: 150, Weights: LossWeights{0.6, 0.2, 0.2}},
		},
		Final: LossWeights{0.8, 0.1, 0.1},
	}
}

// LossWeights returns the weights for epoch
func (s LossWeightSchedule) LossWeights(epoch int) LossWeights {
	for _, b := range s.Buckets {
		if epoch < b.Until {
			return b.Weights
		}
	}
	return s.Final
}

// StepLRScheduler decays the learning rate by Gamma every StepSize epochs.
// A zero StepSize keeps the base rate.
type StepLRScheduler struct {
	StepSize int     // Epochs between LR reductions
	Gamma    float64 // Multiplicative factor of LR decay
}

// GetLR returns the learning rate in effect for epoch
func (s StepLRScheduler) GetLR(epoch int, baseLR float64) float64 {
	if s.StepSize <= 0 {
		return baseLR
	}
	times := epoch / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(times))
}
