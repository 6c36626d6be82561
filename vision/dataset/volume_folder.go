package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/tensor"
	"github.com/tsawler/go-volrecon/training"
)

// Directory names of a volume folder.
const (
	InputDir  = "input"
	TargetDir = "target"
)

// VolumeFolderDataset pairs root/input/<id>.npy with root/target/<id>.npy.
// Volumes are returned as [C, X, Y, Z]; 3-D arrays gain a unit channel axis.
type VolumeFolderDataset struct {
	root  string
	ids   []string
	cache *VolumeCache
}

// NewVolumeFolderDataset scans root for paired volumes. Inputs without a
// target are an error unless requireTarget is false, in which case the
// input doubles as its own target (test sets ship without targets).
func NewVolumeFolderDataset(root string, requireTarget bool, cacheSize int) (*VolumeFolderDataset, error) {
	inputs, err := filepath.Glob(filepath.Join(root, InputDir, "*.npy"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list inputs")
	}
	sort.Strings(inputs)

	ds := &VolumeFolderDataset{root: root, cache: NewVolumeCache(cacheSize)}
	for _, in := range inputs {
		id := filepath.Base(in)
		if requireTarget {
			if _, err := os.Stat(filepath.Join(root, TargetDir, id)); err != nil {
				return nil, errors.Errorf("input %s has no target", id)
			}
		}
		ds.ids = append(ds.ids, id)
	}
	if len(ds.ids) == 0 {
		return nil, errors.Errorf("no volumes found in %s", filepath.Join(root, InputDir))
	}
	return ds, nil
}

// Len returns the number of items in the dataset
func (d *VolumeFolderDataset) Len() int {
	return len(d.ids)
}

// IDs returns the sample identifiers in index order
func (d *VolumeFolderDataset) IDs() []string {
	return append([]string(nil), d.ids...)
}

// Get loads the sample at index
func (d *VolumeFolderDataset) Get(index int) (*training.Sample, error) {
	if index < 0 || index >= len(d.ids) {
		return nil, errors.Errorf("index %d out of range [0, %d)", index, len(d.ids))
	}
	id := d.ids[index]

	input, err := d.volume(filepath.Join(d.root, InputDir, id))
	if err != nil {
		return nil, err
	}
	targetPath := filepath.Join(d.root, TargetDir, id)
	target := input
	if _, err := os.Stat(targetPath); err == nil {
		target, err = d.volume(targetPath)
		if err != nil {
			return nil, err
		}
	}
	if !input.SameShape(target) {
		return nil, errors.Errorf("%s: input shape %v differs from target shape %v", id, input.Shape, target.Shape)
	}
	return &training.Sample{Input: input, Target: target, ID: id}, nil
}

func (d *VolumeFolderDataset) volume(path string) (*tensor.Tensor, error) {
	if v, ok := d.cache.Get(path); ok {
		return v, nil
	}
	arr, err := LoadNpy(path)
	if err != nil {
		return nil, err
	}

	shape := arr.Shape
	switch len(shape) {
	case 3:
		shape = append([]int{1}, shape...)
	case 4:
	default:
		return nil, errors.Errorf("%s: expected a 3-D or 4-D volume, got shape %v", path, arr.Shape)
	}
	v, err := tensor.NewTensor(shape, arr.Data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	d.cache.Put(path, v)
	return v, nil
}

// String returns a string representation of the dataset
func (d *VolumeFolderDataset) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("VolumeFolderDataset: %d volumes in %s\n", len(d.ids), d.root))
	hits, misses := d.cache.Stats()
	sb.WriteString(fmt.Sprintf("Cache: %d volumes, %d hits, %d misses\n", d.cache.Len(), hits, misses))
	return sb.String()
}
