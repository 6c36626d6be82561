package training

import (
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/tensor"
)

// Sample is one paired volume: Input and Target share a shape, normally
// [C, X, Y, Z]. ID names the sample, usually its source file name.
type Sample struct {
	Input  *tensor.Tensor
	Target *tensor.Tensor
	ID     string
}

// Dataset interface defines methods that all datasets must implement
type Dataset interface {
	Len() int                     // Total number of samples
	Get(idx int) (*Sample, error) // Returns a single sample
}

// DataLoader provides batching and shuffling over a Dataset
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
	mutex     sync.Mutex
}

// NewDataLoader creates a new DataLoader. A nil rng with shuffle enabled
// uses a generator seeded with 1.
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool, rng *rand.Rand) *DataLoader {
	if batchSize <= 0 {
		batchSize = 1
	}
	if shuffle && rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rng,
		indices:   indices,
	}
}

// Batch represents a batch of inputs and targets stacked on a leading axis
type Batch struct {
	Input  *tensor.Tensor
	Target *tensor.Tensor
	IDs    []string
}

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	return (len(dl.indices) + dl.batchSize - 1) / dl.batchSize
}

// DatasetLen returns the declared length of the underlying dataset.
func (dl *DataLoader) DatasetLen() int {
	return dl.dataset.Len()
}

// Reset rewinds the data loader for a new epoch, reshuffling if enabled
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0
	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// HasNext returns true if there are more batches in the current epoch
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

// Next returns the next batch or nil if the epoch is complete
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}
	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	batch, err := dl.loadBatch(batchIndices)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load batch")
	}
	return batch, nil
}

// loadBatch loads samples and stacks them into batched tensors
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, errors.New("empty batch indices")
	}

	inputs := make([]*tensor.Tensor, len(indices))
	targets := make([]*tensor.Tensor, len(indices))
	ids := make([]string, len(indices))
	for i, idx := range indices {
		sample, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load sample %d", idx)
		}
		if !sample.Input.SameShape(sample.Target) {
			return nil, errors.Errorf("sample %s: input shape %v differs from target shape %v",
				sample.ID, sample.Input.Shape, sample.Target.Shape)
		}
		inputs[i] = withBatchAxis(sample.Input)
		targets[i] = withBatchAxis(sample.Target)
		ids[i] = sample.ID
	}

	input, err := tensor.Stack(inputs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stack inputs")
	}
	target, err := tensor.Stack(targets)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stack targets")
	}
	return &Batch{Input: input, Target: target, IDs: ids}, nil
}

// withBatchAxis views t with a leading unit axis.
func withBatchAxis(t *tensor.Tensor) *tensor.Tensor {
	shape := append([]int{1}, t.Shape...)
	out, _ := t.Reshape(shape)
	return out
}

// SimpleDataset provides an in-memory Dataset for tests and small runs
type SimpleDataset struct {
	samples []*Sample
}

// NewSimpleDataset creates a new SimpleDataset
func NewSimpleDataset(samples []*Sample) (*SimpleDataset, error) {
	for i, s := range samples {
		if s == nil || s.Input == nil || s.Target == nil {
			return nil, errors.Errorf("sample %d is incomplete", i)
		}
	}
	return &SimpleDataset{samples: samples}, nil
}

// Len returns the number of samples in the dataset
func (ds *SimpleDataset) Len() int {
	return len(ds.samples)
}

// Get returns the sample at the given index
func (ds *SimpleDataset) Get(idx int) (*Sample, error) {
	if idx < 0 || idx >= len(ds.samples) {
		return nil, errors.Errorf("index %d out of range [0, %d)", idx, len(ds.samples))
	}
	return ds.samples[idx], nil
}
