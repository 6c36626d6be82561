// Package patch cuts volumes into the fixed sub-windows used for
// patch-based inference.
package patch

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/tensor"
)

// Policy describes the quadrant windows: each window spans 2*HalfWidth
// voxels on the X and Y axes and 2*HalfDepth voxels on Z, centred on the
// Z midpoint.
type Policy struct {
	HalfWidth int `json:"half_width"`
	HalfDepth int `json:"half_depth"`
}

// DefaultPolicy returns the 192×192×96 window policy.
func DefaultPolicy() Policy {
	return Policy{HalfWidth: 96, HalfDepth: 48}
}

// Quadrant is the window centre of one of the four patches.
type Quadrant struct {
	Index int // 1..4
	X     int
	Y     int
	Z     int
}

func (q Quadrant) String() string {
	return fmt.Sprintf("quadrant%d(x=%d, y=%d, z=%d)", q.Index, q.X, q.Y, q.Z)
}

// Bounds returns the half-open [lo, hi) window of q on the X, Y and Z axes.
func (p Policy) Bounds(q Quadrant) (lo, hi [3]int) {
	lo = [3]int{q.X - p.HalfWidth, q.Y - p.HalfWidth, q.Z - p.HalfDepth}
	hi = [3]int{q.X + p.HalfWidth, q.Y + p.HalfWidth, q.Z + p.HalfDepth}
	return lo, hi
}

// Anchors computes the four window centres for a [N, C, X, Y, Z] shape.
// Each of X and Y is anchored either HalfWidth from the origin or HalfWidth
// from the far edge; the far anchor is taken from the X extent for both
// axes, so the policy targets volumes with X == Y.
func (p Policy) Anchors(shape []int) ([4]Quadrant, error) {
	var quads [4]Quadrant
	if len(shape) != 5 {
		return quads, errors.Errorf("quadrant extraction needs a 5-D shape, got %v", shape)
	}

	near := p.HalfWidth
	far := shape[tensor.AxisX] - p.HalfWidth
	z := shape[tensor.AxisZ] / 2

	quads[0] = Quadrant{Index: 1, X: near, Y: near, Z: z}
	quads[1] = Quadrant{Index: 2, X: near, Y: far, Z: z}
	quads[2] = Quadrant{Index: 3, X: far, Y: near, Z: z}
	quads[3] = Quadrant{Index: 4, X: far, Y: far, Z: z}

	for _, q := range quads {
		lo, hi := p.Bounds(q)
		for axis := 0; axis < 3; axis++ {
			size := shape[tensor.AxisX+axis]
			if lo[axis] < 0 || hi[axis] > size {
				return quads, errors.Errorf("%s does not fit volume %v", q, shape)
			}
		}
	}
	return quads, nil
}

// Extract crops the four quadrant patches of input, in quadrant order.
// Batch and channel axes are kept whole.
func (p Policy) Extract(input *tensor.Tensor) ([4]*tensor.Tensor, error) {
	var patches [4]*tensor.Tensor
	quads, err := p.Anchors(input.Shape)
	if err != nil {
		return patches, err
	}

	for i, q := range quads {
		lo, hi := p.Bounds(q)
		patch, err := tensor.Crop(input,
			[]int{0, 0, lo[0], lo[1], lo[2]},
			[]int{input.Shape[0], input.Shape[1], hi[0], hi[1], hi[2]})
		if err != nil {
			return patches, errors.Wrapf(err, "cropping %s", q)
		}
		patches[i] = patch
	}
	return patches, nil
}
