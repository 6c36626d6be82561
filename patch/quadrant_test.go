package patch

import (
	"reflect"
	"testing"

	"github.com/tsawler/go-volrecon/tensor"
)

func TestDefaultPolicyAnchors(t *testing.T) {
	policy := DefaultPolicy()
	quads, err := policy.Anchors([]int{1, 1, 256, 256, 120})
	if err != nil {
		t.Fatalf("Anchors failed: %v", err)
	}

	expected := [4]Quadrant{
		{Index: 1, X: 96, Y: 96, Z: 60},
		{Index: 2, X: 96, Y: 160, Z: 60},
		{Index: 3, X: 160, Y: 96, Z: 60},
		{Index: 4, X: 160, Y: 160, Z: 60},
	}
	if quads != expected {
		t.Errorf("Anchors = %v, expected %v", quads, expected)
	}

	lo, hi := policy.Bounds(quads[3])
	if lo != [3]int{64, 64, 12} || hi != [3]int{256, 256, 108} {
		t.Errorf("Bounds(q4) = %v..%v", lo, hi)
	}
}

func TestDefaultPolicyExtractShapes(t *testing.T) {
	input, _ := tensor.Zeros([]int{1, 1, 200, 200, 100})
	patches, err := DefaultPolicy().Extract(input)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for i, p := range patches {
		if !reflect.DeepEqual(p.Shape, []int{1, 1, 192, 192, 96}) {
			t.Errorf("patch %d shape = %v, expected [1 1 192 192 96]", i+1, p.Shape)
		}
	}
}

func TestExtractContentIndependentAnchors(t *testing.T) {
	// Encode coordinates in the voxel values so every patch origin can be read back.
	policy := Policy{HalfWidth: 2, HalfDepth: 1}
	input, _ := tensor.Zeros([]int{1, 1, 6, 6, 5})
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			for z := 0; z < 5; z++ {
				input.Set(float64(x*100+y*10+z), 0, 0, x, y, z)
			}
		}
	}

	patches, err := policy.Extract(input)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// z = 5/2 = 2, window [1, 3); x/y windows [0, 4) or [2, 6).
	origins := []float64{0*100 + 0*10 + 1, 0*100 + 2*10 + 1, 2*100 + 0*10 + 1, 2*100 + 2*10 + 1}
	for i, p := range patches {
		if !reflect.DeepEqual(p.Shape, []int{1, 1, 4, 4, 2}) {
			t.Fatalf("patch %d shape = %v", i+1, p.Shape)
		}
		if got := p.At(0, 0, 0, 0, 0); got != origins[i] {
			t.Errorf("patch %d origin value = %f, expected %f", i+1, got, origins[i])
		}
		if got, want := p.At(0, 0, 3, 3, 1), origins[i]+331; got != want {
			t.Errorf("patch %d far corner = %f, expected %f", i+1, got, want)
		}
	}
}

func TestExtractRejectsSmallVolumes(t *testing.T) {
	policy := DefaultPolicy()
	tests := [][]int{
		{1, 1, 191, 191, 96}, // too narrow
		{1, 1, 192, 192, 95}, // too shallow
		{1, 1, 256, 200, 96}, // far Y anchor taken from X overflows Y
		{192, 192, 96},       // wrong rank
	}
	for _, shape := range tests {
		if _, err := policy.Anchors(shape); err == nil {
			t.Errorf("expected error for shape %v", shape)
		}
	}
}
