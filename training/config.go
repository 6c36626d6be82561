package training

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/checkpoints"
	"github.com/tsawler/go-volrecon/patch"
)

// Config holds configuration for training, validation and export
type Config struct {
	SavePath         string                       `json:"save_path"`
	ModelType        checkpoints.ModelType        `json:"model_type"`
	Epochs           int                          `json:"epochs"`            // exclusive upper epoch bound
	LogEvery         int                          `json:"log_every"`         // train progress every N batches
	AnomalyThreshold float64                      `json:"anomaly_threshold"` // validation mean above this is saved as EXCEPTION
	TestBias         float64                      `json:"test_bias"`         // added to every test output
	CoeffMag         int64                        `json:"coeff_mag"`         // output scale before uint16 cast
	DefaultTag       string                       `json:"default_tag"`
	TestSubdir       string                       `json:"test_subdir"`
	AuxiliaryLoss    bool                         `json:"auxiliary_loss"`
	Format           checkpoints.CheckpointFormat `json:"checkpoint_format"`
	LRStep           int                          `json:"lr_step"`  // epochs between LR decays, 0 disables
	LRGamma          float64                      `json:"lr_gamma"` // LR multiplier per decay
	Patch            patch.Policy                 `json:"patch"`
	Preview          bool                         `json:"preview"`
	Verbose          bool                         `json:"verbose"`
}

// DefaultConfig returns the configuration of the reference training run
func DefaultConfig() Config {
	return Config{
		SavePath:         "./outputs",
		ModelType:        checkpoints.ModelReconNet,
		Epochs:           1500,
		LogEvery:         10,
		AnomalyThreshold: 0.3,
		TestBias:         0.03,
		CoeffMag:         1000,
		DefaultTag:       "models",
		TestSubdir:       "test",
		AuxiliaryLoss:    false,
		Format:           checkpoints.FormatProto,
		LRStep:           0,
		LRGamma:          0.1,
		Patch:            patch.DefaultPolicy(),
		Preview:          false,
		Verbose:          false,
	}
}

// Validate reports the first invalid field
func (c Config) Validate() error {
	switch {
	case c.SavePath == "":
		return errors.New("save path must be set")
	case c.ModelType == checkpoints.ModelUnknown:
		return errors.New("model type must be set")
	case c.Epochs < 0:
		return errors.Errorf("epochs must be non-negative, got %d", c.Epochs)
	case c.LogEvery <= 0:
		return errors.Errorf("log interval must be positive, got %d", c.LogEvery)
	case c.CoeffMag <= 0:
		return errors.Errorf("coeff_mag must be positive, got %d", c.CoeffMag)
	case c.LRStep < 0:
		return errors.Errorf("lr step must be non-negative, got %d", c.LRStep)
	case c.LRStep > 0 && (c.LRGamma <= 0 || c.LRGamma > 1):
		return errors.Errorf("lr gamma must be in (0, 1], got %g", c.LRGamma)
	case c.DefaultTag == "":
		return errors.New("default checkpoint tag must be set")
	case c.Patch.HalfWidth <= 0 || c.Patch.HalfDepth <= 0:
		return errors.Errorf("invalid patch policy %+v", c.Patch)
	}
	return nil
}

// LoadConfig reads a JSON file over DefaultConfig; fields absent from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, errors.Wrapf(err, "reading config %s", path)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, errors.Wrapf(err, "parsing config %s", path)
	}
	return config, config.Validate()
}
