package export

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
)

// MAT-file level 5 data types and array classes.
const (
	miINT8   = 1
	miUINT8  = 2
	miUINT16 = 4
	miINT32  = 5
	miUINT32 = 6
	miDOUBLE = 9
	miINT64  = 12
	miMATRIX = 14

	mxDOUBLE_CLASS = 6
	mxUINT8_CLASS  = 9
	mxUINT16_CLASS = 11
	mxINT64_CLASS  = 14
)

const matHeaderTextLen = 116

// MatVariable is one named numeric array of a MAT file. Data holds the
// values in row-major order of Shape; the writer emits them column-major.
type MatVariable struct {
	Name  string
	Shape []int
	Data  interface{} // []uint8, []uint16, []int64 or []float64
}

// MatWriter writes level 5 MAT files readable by scipy.io.loadmat and MATLAB.
type MatWriter struct {
	w io.Writer
}

func NewMatWriter(w io.Writer) *MatWriter {
	return &MatWriter{w: w}
}

// WriteHeader writes the 128 byte file header.
func (mw *MatWriter) WriteHeader(created time.Time) error {
	header := make([]byte, 128)
	text := fmt.Sprintf("MATLAB 5.0 MAT-file Platform: go-volrecon, Created on: %s", created.Format(time.ANSIC))
	copy(header, bytes.Repeat([]byte{' '}, matHeaderTextLen))
	copy(header, text)
	// Bytes 116..123 (subsystem data offset) stay zero.
	binary.LittleEndian.PutUint16(header[124:], 0x0100)
	copy(header[126:], "IM")
	_, err := mw.w.Write(header)
	return errors.Wrap(err, "writing MAT header")
}

// WriteVariable writes one miMATRIX element.
func (mw *MatWriter) WriteVariable(v MatVariable) error {
	if v.Name == "" {
		return errors.New("MAT variable needs a name")
	}
	dims := matDims(v.Shape)
	count := 1
	for _, d := range dims {
		count *= d
	}

	var class uint32
	var dataType uint32
	var payload []byte
	switch data := v.Data.(type) {
	case []uint8:
		if len(data) != count {
			return errors.Errorf("variable %s: %d values for shape %v", v.Name, len(data), v.Shape)
		}
		class, dataType = mxUINT8_CLASS, miUINT8
		payload = make([]byte, count)
		columnMajor(dims, func(dst, src int) { payload[dst] = data[src] })
	case []uint16:
		if len(data) != count {
			return errors.Errorf("variable %s: %d values for shape %v", v.Name, len(data), v.Shape)
		}
		class, dataType = mxUINT16_CLASS, miUINT16
		payload = make([]byte, 2*count)
		columnMajor(dims, func(dst, src int) { binary.LittleEndian.PutUint16(payload[2*dst:], data[src]) })
	case []int64:
		if len(data) != count {
			return errors.Errorf("variable %s: %d values for shape %v", v.Name, len(data), v.Shape)
		}
		class, dataType = mxINT64_CLASS, miINT64
		payload = make([]byte, 8*count)
		columnMajor(dims, func(dst, src int) { binary.LittleEndian.PutUint64(payload[8*dst:], uint64(data[src])) })
	case []float64:
		if len(data) != count {
			return errors.Errorf("variable %s: %d values for shape %v", v.Name, len(data), v.Shape)
		}
		class, dataType = mxDOUBLE_CLASS, miDOUBLE
		payload = make([]byte, 8*count)
		columnMajor(dims, func(dst, src int) { binary.LittleEndian.PutUint64(payload[8*dst:], math.Float64bits(data[src])) })
	default:
		return errors.Errorf("variable %s: unsupported data type %T", v.Name, v.Data)
	}

	var body bytes.Buffer
	flags := make([]byte, 8)
	binary.LittleEndian.PutUint32(flags, class)
	writeElement(&body, miUINT32, flags)

	dimBytes := make([]byte, 4*len(dims))
	for i, d := range dims {
		binary.LittleEndian.PutUint32(dimBytes[4*i:], uint32(int32(d)))
	}
	writeElement(&body, miINT32, dimBytes)
	writeElement(&body, miINT8, []byte(v.Name))
	writeElement(&body, dataType, payload)

	var out bytes.Buffer
	writeElement(&out, miMATRIX, body.Bytes())
	if _, err := mw.w.Write(out.Bytes()); err != nil {
		return errors.Wrapf(err, "writing MAT variable %s", v.Name)
	}
	return nil
}

// writeElement writes a tagged data element padded to an 8 byte boundary.
func writeElement(buf *bytes.Buffer, dataType uint32, data []byte) {
	tag := make([]byte, 8)
	binary.LittleEndian.PutUint32(tag, dataType)
	binary.LittleEndian.PutUint32(tag[4:], uint32(len(data)))
	buf.Write(tag)
	buf.Write(data)
	if pad := (8 - len(data)%8) % 8; pad > 0 {
		buf.Write(make([]byte, pad))
	}
}

// matDims gives MAT dimensions for a shape: scalars become 1×1 and vectors
// become 1×n row vectors.
func matDims(shape []int) []int {
	switch len(shape) {
	case 0:
		return []int{1, 1}
	case 1:
		return []int{1, shape[0]}
	default:
		return append([]int(nil), shape...)
	}
}

// columnMajor calls fn with the column-major destination index and the
// row-major source index of every element of an array with dims.
func columnMajor(dims []int, fn func(dst, src int)) {
	n := len(dims)
	rowStrides := make([]int, n)
	stride := 1
	for i := n - 1; i >= 0; i-- {
		rowStrides[i] = stride
		stride *= dims[i]
	}
	total := stride

	idx := make([]int, n)
	for dst := 0; dst < total; dst++ {
		src := 0
		for i, v := range idx {
			src += v * rowStrides[i]
		}
		fn(dst, src)

		// The first axis varies fastest in column-major order.
		for i := 0; i < n; i++ {
			idx[i]++
			if idx[i] < dims[i] {
				break
			}
			idx[i] = 0
		}
	}
}
