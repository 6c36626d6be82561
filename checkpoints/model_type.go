package checkpoints

import (
	"github.com/pkg/errors"
)

// ModelType identifies the network architecture a checkpoint belongs to.
// It is stored by its string tag so files stay readable across releases.
type ModelType int

const (
	ModelUnknown ModelType = iota
	ModelReconNet
	ModelUNet3D
)

var modelTypeTags = map[ModelType]string{
	ModelReconNet: "recon_net",
	ModelUNet3D:   "unet3d",
}

func (mt ModelType) String() string {
	if tag, ok := modelTypeTags[mt]; ok {
		return tag
	}
	return "unknown"
}

// ParseModelType maps a tag back to its ModelType.
func ParseModelType(tag string) (ModelType, error) {
	for mt, t := range modelTypeTags {
		if t == tag {
			return mt, nil
		}
	}
	return ModelUnknown, errors.Errorf("unknown model type %q", tag)
}

func (mt ModelType) MarshalText() ([]byte, error) {
	if _, ok := modelTypeTags[mt]; !ok {
		return nil, errors.Errorf("cannot encode model type %d", int(mt))
	}
	return []byte(mt.String()), nil
}

func (mt *ModelType) UnmarshalText(text []byte) error {
	parsed, err := ParseModelType(string(text))
	if err != nil {
		return err
	}
	*mt = parsed
	return nil
}
