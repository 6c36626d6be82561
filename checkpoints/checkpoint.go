package checkpoints

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatProto CheckpointFormat = iota
	FormatJSON
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatProto:
		return "Proto"
	case FormatJSON:
		return "JSON"
	default:
		return "Unknown"
	}
}

// ParseCheckpointFormat accepts "proto" or "json" in any case.
func ParseCheckpointFormat(name string) (CheckpointFormat, error) {
	switch strings.ToLower(name) {
	case "proto", "protobuf", "pb":
		return FormatProto, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatProto, errors.Errorf("unknown checkpoint format %q", name)
}

func (cf CheckpointFormat) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(cf.String())), nil
}

func (cf *CheckpointFormat) UnmarshalText(text []byte) error {
	parsed, err := ParseCheckpointFormat(string(text))
	if err != nil {
		return err
	}
	*cf = parsed
	return nil
}

// DefaultExtension is appended to checkpoint tags that carry no extension.
const DefaultExtension = ".pth.tar"

var knownExtensions = []string{DefaultExtension, ".tar", ".pth", ".json", ".pb"}

// ErrModelTypeMismatch is the cause of every load that finds a checkpoint
// written for a different model type.
var ErrModelTypeMismatch = errors.New("checkpoint model type mismatch")

// Checkpoint is the persisted training bundle: network parameters,
// optimizer state and the bookkeeping needed to resume.
type Checkpoint struct {
	ModelType  ModelType       `json:"model_type"`
	StartEpoch int             `json:"start_epoch"`
	Network    []WeightTensor  `json:"network"`
	Optimizer  *OptimizerState `json:"optimizer,omitempty"`
	BestMetric float64         `json:"best_metric"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a named model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// OptimizerState captures optimizer hyperparameters and per-parameter state
// (momentum, variance, etc.)
type OptimizerState struct {
	Type       string             `json:"type"` // "Adam", "SGD"
	Parameters map[string]float64 `json:"parameters"`
	StepCount  uint64             `json:"step_count"`
	StateData  []OptimizerTensor  `json:"state_data"`
}

// OptimizerTensor represents one optimizer state tensor
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float64 `json:"data"`
	StateType string    `json:"state_type"` // "momentum", "variance", "velocity"
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	RunID       string    `json:"run_id,omitempty"`
	Description string    `json:"description,omitempty"`
}

// CheckModelType fails with ErrModelTypeMismatch when the checkpoint was
// written for a model other than active.
func (c *Checkpoint) CheckModelType(active ModelType) error {
	if c.ModelType != active {
		return errors.Wrapf(ErrModelTypeMismatch, "checkpoint model type is %s, active model is %s", c.ModelType, active)
	}
	return nil
}

// CheckpointPath resolves a tag to a file under dir. Tags that already end
// in a known checkpoint extension are used verbatim.
func CheckpointPath(dir, tag string) string {
	for _, ext := range knownExtensions {
		if strings.HasSuffix(tag, ext) {
			return filepath.Join(dir, tag)
		}
	}
	return filepath.Join(dir, tag+DefaultExtension)
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// Format returns the encoding used by SaveCheckpoint.
func (cs *CheckpointSaver) Format() CheckpointFormat {
	return cs.format
}

// SaveCheckpoint writes checkpoint to path, replacing any existing file
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-volrecon"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	var data []byte
	var err error
	switch cs.format {
	case FormatProto:
		data, err = MarshalProto(checkpoint)
	case FormatJSON:
		data, err = json.MarshalIndent(checkpoint, "", "  ")
	default:
		return errors.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
	if err != nil {
		return errors.Wrapf(err, "failed to encode checkpoint as %s", cs.format)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write checkpoint file")
	}
	return nil
}

// LoadCheckpoint reads a checkpoint from path. The encoding is detected from
// the file contents, so a saver of either format can read both.
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open checkpoint file")
	}

	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		var checkpoint Checkpoint
		if err := json.Unmarshal(data, &checkpoint); err != nil {
			return nil, errors.Wrap(err, "failed to decode JSON checkpoint")
		}
		return &checkpoint, nil
	}

	checkpoint, err := UnmarshalProto(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode checkpoint")
	}
	return checkpoint, nil
}
