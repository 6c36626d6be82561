package training

import (
	"github.com/google/uuid"
)

// InitialBestMetric is the best validation mean a fresh session starts with.
const InitialBestMetric = 1.0

// Session is the mutable state of one training run. It is restored from
// and written to checkpoints.
type Session struct {
	StartEpoch int
	BestMetric float64
	RunID      uuid.UUID
}

// NewSession returns a session starting at epoch 0 with a fresh run id.
func NewSession() *Session {
	return &Session{
		StartEpoch: 0,
		BestMetric: InitialBestMetric,
		RunID:      uuid.New(),
	}
}
