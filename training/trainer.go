package training

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/tsawler/go-volrecon/engine"
	"github.com/tsawler/go-volrecon/export"
	"github.com/tsawler/go-volrecon/optimizer"
	"github.com/tsawler/go-volrecon/tensor"
)

// ResultUploader mirrors exported result files to remote storage.
type ResultUploader interface {
	UploadFile(ctx context.Context, subdir, localPath string) (string, error)
}

// Trainer drives training, validation and test export for one model
type Trainer struct {
	config    Config
	model     engine.Model
	optimizer optimizer.Optimizer
	composer  LossComposer
	valLoss   Loss
	schedule  LossWeightSchedule
	lrSched   StepLRScheduler
	baseLR    float64
	session   *Session
	store     *CheckpointStore
	logger    Logger
	uploader  ResultUploader
}

// NewTrainer creates a Trainer. reconLoss drives training and valLoss
// scores validation batches; the auxiliary terms are added only when
// config.AuxiliaryLoss is set.
func NewTrainer(config Config, model engine.Model, opt optimizer.Optimizer, reconLoss, valLoss Loss, logger Logger) (*Trainer, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid training config")
	}
	if model.Type() != config.ModelType {
		return nil, errors.Errorf("config model type %s does not match model %s", config.ModelType, model.Type())
	}

	var composer LossComposer = &PrimaryOnly{Recon: reconLoss}
	if config.AuxiliaryLoss {
		composer = NewWeightedAuxiliary(reconLoss)
	}

	session := NewSession()
	return &Trainer{
		config:    config,
		model:     model,
		optimizer: opt,
		composer:  composer,
		valLoss:   valLoss,
		schedule:  DefaultLossWeightSchedule(),
		lrSched:   StepLRScheduler{StepSize: config.LRStep, Gamma: config.LRGamma},
		baseLR:    opt.GetLearningRate(),
		session:   session,
		store:     NewCheckpointStore(config.SavePath, config.Format, model, opt, session, logger),
		logger:    logger,
	}, nil
}

// Session returns the run state shared with the checkpoint store.
func (t *Trainer) Session() *Session { return t.session }

// Store returns the checkpoint store.
func (t *Trainer) Store() *CheckpointStore { return t.store }

// SetUploader enables mirroring of test results.
func (t *Trainer) SetUploader(u ResultUploader) { t.uploader = u }

// Resume loads the default checkpoint if one exists.
func (t *Trainer) Resume() (bool, error) {
	return t.store.Load(t.config.DefaultTag)
}

// Train runs epochs from the session's start epoch up to config.Epochs.
// After each epoch the model is validated when valLoader is non-nil, and
// saved under the default tag otherwise.
func (t *Trainer) Train(ctx context.Context, trainLoader, valLoader *DataLoader) error {
	t.logger.Write("Start Train")
	t.logger.WillWrite("Training %s from epoch %d to %d with %s loss",
		t.model.Type(), t.session.StartEpoch, t.config.Epochs, t.composer.Name())

	for epoch := t.session.StartEpoch; epoch < t.config.Epochs; epoch++ {
		if err := t.trainEpoch(ctx, trainLoader, epoch); err != nil {
			return errors.Wrapf(err, "training epoch %d failed", epoch)
		}

		if valLoader != nil {
			if _, err := t.Validate(epoch, valLoader); err != nil {
				return errors.Wrapf(err, "validation epoch %d failed", epoch)
			}
			continue
		}
		if err := t.store.Save(epoch, t.config.DefaultTag); err != nil {
			return err
		}
	}
	t.logger.Write("End Train")
	return nil
}

// trainEpoch runs one training epoch
func (t *Trainer) trainEpoch(ctx context.Context, loader *DataLoader, epoch int) error {
	weights := t.schedule.LossWeights(epoch)
	if lr := t.lrSched.GetLR(epoch, t.baseLR); lr != t.optimizer.GetLearningRate() {
		t.optimizer.UpdateLearningRate(lr)
		t.logger.WillWrite("[LR] epoch:%d lr:%g", epoch, lr)
	}
	t.model.Train()
	loader.Reset()

	for i := 0; loader.HasNext(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := loader.Next()
		if err != nil {
			return err
		}

		out, err := t.model.Forward(batch.Input)
		if err != nil {
			return errors.Wrap(err, "forward pass failed")
		}
		total, recon, grads, err := t.composer.Compose(out, batch.Target, weights)
		if err != nil {
			return err
		}
		if math.IsNaN(total) || math.IsInf(total, 0) {
			return errors.Errorf("non-finite loss %f at batch %d", total, i)
		}

		t.optimizer.ZeroGrad()
		if err := t.model.Backward(grads); err != nil {
			return errors.Wrap(err, "backward pass failed")
		}
		if err := t.optimizer.Step(); err != nil {
			return errors.Wrap(err, "optimizer step failed")
		}

		if i%t.config.LogEvery == 0 {
			t.logger.WillWrite("[Train] epoch:%d loss:%f", epoch, recon)
		}
	}
	return nil
}

// Validate scores the model on loader and returns the mean batch loss. A
// mean below the session's best metric becomes the new best and is saved;
// a mean above the anomaly threshold is saved under an EXCEPTION tag.
func (t *Trainer) Validate(epoch int, loader *DataLoader) (float64, error) {
	t.model.Eval()
	loader.Reset()

	declared := loader.DatasetLen()
	var losses []float64
	for i := 0; loader.HasNext(); i++ {
		if i >= declared {
			break
		}
		batch, err := loader.Next()
		if err != nil {
			return 0, err
		}
		out, err := t.model.Forward(batch.Input)
		if err != nil {
			return 0, errors.Wrap(err, "validation forward pass failed")
		}
		loss, err := t.valLoss.Forward(out.Primary, batch.Target)
		if err != nil {
			return 0, errors.Wrap(err, "validation loss computation failed")
		}
		losses = append(losses, loss)
	}
	if len(losses) == 0 {
		return 0, errors.New("validation produced no batches")
	}
	mean := stat.Mean(losses, nil)

	if mean < t.session.BestMetric {
		t.session.BestMetric = mean
		if err := t.store.Save(epoch, fmt.Sprintf("epoch[%04d]_losssum[%f]", epoch, mean)); err != nil {
			return mean, err
		}
	}
	if mean > t.config.AnomalyThreshold {
		if err := t.store.Save(epoch, fmt.Sprintf("EXCEPTIONepoch[%04d]_losssum[%f]", epoch, mean)); err != nil {
			return mean, err
		}
	}
	t.logger.Write("[Val] epoch:%d losssum:%f", epoch, mean)
	return mean, nil
}

// ResultDir returns the directory test results for subdir are written to;
// an empty subdir selects config.TestSubdir.
func (t *Trainer) ResultDir(subdir string) string {
	if subdir == "" {
		subdir = t.config.TestSubdir
	}
	return filepath.Join(t.config.SavePath, "result", subdir)
}

// Test runs quadrant inference over every sample of loader and writes one
// result file per sample.
func (t *Trainer) Test(ctx context.Context, loader *DataLoader, subdir string) error {
	t.logger.Write("Start Test")
	t.model.Eval()
	dir := t.ResultDir(subdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating result directory")
	}
	if subdir == "" {
		subdir = t.config.TestSubdir
	}

	loader.Reset()
	declared := loader.DatasetLen()
	for i := 0; loader.HasNext(); i++ {
		if i >= declared {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := loader.Next()
		if err != nil {
			return err
		}

		for b, input := range tensor.Unstack(batch.Input) {
			record, err := t.inferQuadrants(input)
			if err != nil {
				return errors.Wrapf(err, "sample %s", batch.IDs[b])
			}
			if err := t.exportResult(ctx, dir, subdir, batch.IDs[b], record); err != nil {
				return err
			}
		}
	}
	t.logger.Write("End Test")
	return nil
}

// inferQuadrants runs the model on the four quadrant patches of a single
// [1, C, X, Y, Z] input and packages the quantized result.
func (t *Trainer) inferQuadrants(input *tensor.Tensor) (*export.ResultRecord, error) {
	patches, err := t.config.Patch.Extract(input)
	if err != nil {
		return nil, err
	}

	record := &export.ResultRecord{
		CoeffMag: t.config.CoeffMag,
		Input:    export.QuantizeUint8(input),
	}
	for q, p := range patches {
		out, err := t.model.Forward(p)
		if err != nil {
			return nil, errors.Wrapf(err, "forward pass on quadrant %d failed", q+1)
		}
		biased := tensor.AddScalar(out.Primary, t.config.TestBias)
		record.Outputs[q] = export.QuantizeUint16(biased, float64(t.config.CoeffMag))
	}
	return record, nil
}

func (t *Trainer) exportResult(ctx context.Context, dir, subdir, id string, record *export.ResultRecord) error {
	fname := export.ResultFileName(id)
	path := filepath.Join(dir, fname)
	if err := export.WriteResult(path, record); err != nil {
		return err
	}
	t.logger.WillWrite("[Save] fname:%s", strings.TrimSuffix(fname, filepath.Ext(fname)))

	if t.config.Preview {
		if _, err := export.WritePreviews(path, record); err != nil {
			return errors.Wrap(err, "writing previews")
		}
	}
	if t.uploader != nil {
		key, err := t.uploader.UploadFile(ctx, subdir, path)
		if err != nil {
			return err
		}
		t.logger.WillWrite("[Upload] %s", key)
	}
	return nil
}
