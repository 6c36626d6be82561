package training

import (
	"math"
	"testing"
)

func TestDefaultLossWeightSchedule(t *testing.T) {
	schedule := DefaultLossWeightSchedule()
	tests := []struct {
		epoch    int
		expected LossWeights
	}{
		{0, LossWeights{0.2, 0.4, 0.4}},
		{49, LossWeights{0.2, 0.4, 0.4}},
		{50, LossWeights{0.4, 0.3, 0.3}},
		{99, LossWeights{0.4, 0.3, 0.3}},
		{100, LossWeights{0.6, 0.2, 0.2}},
		{149, LossWeights{0.6, 0.2, 0.2}},
		{150, LossWeights{0.8, 0.1, 0.1}},
		{1499, LossWeights{0.8, 0.1, 0.1}},
	}

	for _, test := range tests {
		if got := schedule.LossWeights(test.epoch); got != test.expected {
			t.Errorf("LossWeights(%d) = %v, expected %v", test.epoch, got, test.expected)
		}
	}
}

func TestEmptyScheduleUsesFinal(t *testing.T) {
	schedule := LossWeightSchedule{Final: LossWeights{1, 0, 0}}
	if got := schedule.LossWeights(0); got != (LossWeights{1, 0, 0}) {
		t.Errorf("LossWeights(0) = %v", got)
	}
}

func TestStepLRScheduler(t *testing.T) {
	tests := []struct {
		sched    StepLRScheduler
		epoch    int
		expected float64
	}{
		{StepLRScheduler{}, 500, 0.01},
		{StepLRScheduler{StepSize: 10, Gamma: 0.5}, 0, 0.01},
		{StepLRScheduler{StepSize: 10, Gamma: 0.5}, 9, 0.01},
		{StepLRScheduler{StepSize: 10, Gamma: 0.5}, 10, 0.005},
		{StepLRScheduler{StepSize: 10, Gamma: 0.5}, 25, 0.0025},
	}
	for _, test := range tests {
		if got := test.sched.GetLR(test.epoch, 0.01); math.Abs(got-test.expected) > 1e-15 {
			t.Errorf("%+v GetLR(%d) = %g, expected %g", test.sched, test.epoch, got, test.expected)
		}
	}
}
