package training

import (
	"math/rand"

	"github.com/pkg/errors"
)

// SubsetDataset exposes a selection of samples from an underlying dataset.
type SubsetDataset struct {
	originalDataset Dataset
	indices         []int
}

// NewSubsetDataset creates a new SubsetDataset that wraps an existing dataset
// and limits the number of samples it exposes to the first limit.
func NewSubsetDataset(original Dataset, limit int) (*SubsetDataset, error) {
	if limit < 0 {
		return nil, errors.New("limit cannot be negative")
	}
	if limit > original.Len() {
		limit = original.Len()
	}
	indices := make([]int, limit)
	for i := range indices {
		indices[i] = i
	}
	return &SubsetDataset{originalDataset: original, indices: indices}, nil
}

// NewIndexedSubset exposes the given indices of original, in order.
func NewIndexedSubset(original Dataset, indices []int) (*SubsetDataset, error) {
	n := original.Len()
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, errors.Errorf("subset index %d out of range [0, %d)", idx, n)
		}
	}
	return &SubsetDataset{originalDataset: original, indices: append([]int(nil), indices...)}, nil
}

// SplitDataset shuffles the indices of ds with rng and returns a training
// subset and a validation subset holding valFraction of the samples.
func SplitDataset(ds Dataset, valFraction float64, rng *rand.Rand) (train, val *SubsetDataset, err error) {
	if valFraction < 0 || valFraction >= 1 {
		return nil, nil, errors.Errorf("validation fraction %v outside [0, 1)", valFraction)
	}
	perm := rng.Perm(ds.Len())
	nVal := int(float64(len(perm)) * valFraction)

	val, err = NewIndexedSubset(ds, perm[:nVal])
	if err != nil {
		return nil, nil, err
	}
	train, err = NewIndexedSubset(ds, perm[nVal:])
	if err != nil {
		return nil, nil, err
	}
	return train, val, nil
}

// Len returns the number of samples in the subset
func (sd *SubsetDataset) Len() int {
	return len(sd.indices)
}

// Get returns the subset's idx-th sample from the original dataset.
func (sd *SubsetDataset) Get(idx int) (*Sample, error) {
	if idx < 0 || idx >= len(sd.indices) {
		return nil, errors.Errorf("index out of bounds for subset: %d (size: %d)", idx, len(sd.indices))
	}
	return sd.originalDataset.Get(sd.indices[idx])
}
