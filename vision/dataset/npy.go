package dataset

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
)

// NpyArray is a decoded C-order NumPy array widened to float64.
type NpyArray struct {
	Shape []int
	Data  []float64
}

// ReadNpy decodes a .npy stream. Supported element types are little-endian
// float32/64, uint8, uint16, int16 and int32.
func ReadNpy(r io.Reader) (*NpyArray, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading npy header")
	}
	descr := npy.Header.Descr
	if descr.Fortran {
		return nil, errors.New("only C-order npy arrays are supported")
	}

	count := 1
	for _, d := range descr.Shape {
		count *= d
	}
	data, err := readNpyData(npy, descr.Type)
	if err != nil {
		return nil, err
	}
	if len(data) != count {
		return nil, errors.Errorf("npy holds %d elements, shape %v needs %d", len(data), descr.Shape, count)
	}
	return &NpyArray{Shape: append([]int{}, descr.Shape...), Data: data}, nil
}

// readNpyData reads the payload in its stored type and widens it.
func readNpyData(npy *npyio.Reader, dtype string) ([]float64, error) {
	var data []float64
	var err error
	switch dtype {
	case "<f4":
		var raw []float32
		err = npy.Read(&raw)
		data = widen(len(raw), func(i int) float64 { return float64(raw[i]) })
	case "<f8":
		err = npy.Read(&data)
	case "|u1", "<u1":
		var raw []uint8
		err = npy.Read(&raw)
		data = widen(len(raw), func(i int) float64 { return float64(raw[i]) })
	case "<u2":
		var raw []uint16
		err = npy.Read(&raw)
		data = widen(len(raw), func(i int) float64 { return float64(raw[i]) })
	case "<i2":
		var raw []int16
		err = npy.Read(&raw)
		data = widen(len(raw), func(i int) float64 { return float64(raw[i]) })
	case "<i4":
		var raw []int32
		err = npy.Read(&raw)
		data = widen(len(raw), func(i int) float64 { return float64(raw[i]) })
	default:
		return nil, errors.Errorf("unsupported npy dtype %q", dtype)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s npy data", dtype)
	}
	return data, nil
}

func widen(n int, at func(int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = at(i)
	}
	return out
}

// LoadNpy reads a .npy file.
func LoadNpy(path string) (*NpyArray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	arr, err := ReadNpy(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return arr, nil
}
