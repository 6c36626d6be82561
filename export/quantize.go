package export

import (
	"math"

	"github.com/tsawler/go-volrecon/tensor"
)

// Uint8Array is a row-major unsigned 8-bit volume.
type Uint8Array struct {
	Shape []int
	Data  []uint8
}

// Uint16Array is a row-major unsigned 16-bit volume.
type Uint16Array struct {
	Shape []int
	Data  []uint16
}

// saturate truncates v toward zero and clamps it into [0, max]. NaN maps
// to 0 and infinities to the nearest bound.
func saturate(v, max float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Trunc(v)
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// QuantizeUint8 squeezes unit axes from t and casts every value to uint8
// with saturation.
func QuantizeUint8(t *tensor.Tensor) Uint8Array {
	sq := t.Squeeze()
	out := Uint8Array{Shape: append([]int(nil), sq.Shape...), Data: make([]uint8, sq.NumElems)}
	for i, v := range sq.Data {
		out.Data[i] = uint8(saturate(v, math.MaxUint8))
	}
	return out
}

// QuantizeUint16 squeezes unit axes from t, multiplies by scale and casts
// every value to uint16 with saturation.
func QuantizeUint16(t *tensor.Tensor, scale float64) Uint16Array {
	sq := t.Squeeze()
	out := Uint16Array{Shape: append([]int(nil), sq.Shape...), Data: make([]uint16, sq.NumElems)}
	for i, v := range sq.Data {
		out.Data[i] = uint16(saturate(v*scale, math.MaxUint16))
	}
	return out
}
