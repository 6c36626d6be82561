package training

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/checkpoints"
	"github.com/tsawler/go-volrecon/engine"
	"github.com/tsawler/go-volrecon/optimizer"
)

// CheckpointStore saves and restores the model, optimizer and session of a
// run as tagged files under one directory.
type CheckpointStore struct {
	dir       string
	model     engine.Model
	optimizer optimizer.Optimizer
	session   *Session
	saver     *checkpoints.CheckpointSaver
	logger    Logger
	saved     []string
}

// NewCheckpointStore creates a store writing into dir
func NewCheckpointStore(dir string, format checkpoints.CheckpointFormat, model engine.Model, opt optimizer.Optimizer, session *Session, logger Logger) *CheckpointStore {
	return &CheckpointStore{
		dir:       dir,
		model:     model,
		optimizer: opt,
		session:   session,
		saver:     checkpoints.NewCheckpointSaver(format),
		logger:    logger,
	}
}

// Path returns the file a tag is stored at.
func (cs *CheckpointStore) Path(tag string) string {
	return checkpoints.CheckpointPath(cs.dir, tag)
}

// Saved returns the paths written by Save, in order.
func (cs *CheckpointStore) Saved() []string {
	return append([]string(nil), cs.saved...)
}

// Save writes the current state after epoch. The stored start epoch is
// epoch+1 so a resumed run continues with the next epoch.
func (cs *CheckpointStore) Save(epoch int, tag string) error {
	state, err := cs.optimizer.GetState()
	if err != nil {
		return errors.Wrap(err, "failed to capture optimizer state")
	}

	checkpoint := &checkpoints.Checkpoint{
		ModelType:  cs.model.Type(),
		StartEpoch: epoch + 1,
		Network:    engine.StateDict(cs.model),
		Optimizer:  state,
		BestMetric: cs.session.BestMetric,
		Metadata: checkpoints.CheckpointMetadata{
			RunID:       cs.session.RunID.String(),
			Description: tag,
		},
	}

	if err := os.MkdirAll(cs.dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create checkpoint directory")
	}
	path := cs.Path(tag)
	if err := cs.saver.SaveCheckpoint(checkpoint, path); err != nil {
		return errors.Wrapf(err, "saving %s", path)
	}
	cs.saved = append(cs.saved, path)
	cs.logger.Write("Model saved %d epoch", epoch)
	return nil
}

// Load restores state saved under tag. A missing file is not an error: the
// live objects keep their defaults and loaded is false. A checkpoint written
// for another model type fails with checkpoints.ErrModelTypeMismatch as the
// cause.
func (cs *CheckpointStore) Load(tag string) (loaded bool, err error) {
	path := cs.Path(tag)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cs.logger.Write("Load Failed, not exists file")
		return false, nil
	}

	cs.logger.Write("Load %s File", path)
	checkpoint, err := cs.saver.LoadCheckpoint(path)
	if err != nil {
		return false, errors.Wrapf(err, "loading %s", path)
	}
	if err := checkpoint.CheckModelType(cs.model.Type()); err != nil {
		return false, err
	}
	if err := engine.LoadStateDict(cs.model, checkpoint.Network); err != nil {
		return false, errors.Wrap(err, "restoring network")
	}
	if checkpoint.Optimizer != nil {
		if err := cs.optimizer.LoadState(checkpoint.Optimizer); err != nil {
			return false, errors.Wrap(err, "restoring optimizer")
		}
	}

	cs.session.StartEpoch = checkpoint.StartEpoch
	cs.session.BestMetric = checkpoint.BestMetric
	if id, err := uuid.Parse(checkpoint.Metadata.RunID); err == nil {
		cs.session.RunID = id
	}
	cs.logger.Write("Load Model Type : %s, epoch : %d", checkpoint.ModelType, cs.session.StartEpoch)
	return true, nil
}
