package export

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/tsawler/go-volrecon/tensor"
)

func TestQuantizeUint8Boundaries(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{0, 0},
		{0.99, 0},
		{254.9, 254},
		{255, 255},
		{256, 255},
		{1e9, 255},
		{-1, 0},
		{math.NaN(), 0},
		{math.Inf(1), 255},
		{math.Inf(-1), 0},
	}
	for _, tt := range tests {
		in, _ := tensor.NewTensor([]int{1, 1, 1}, []float64{tt.in})
		got := QuantizeUint8(in)
		if got.Data[0] != tt.want {
			t.Errorf("QuantizeUint8(%v) = %d, expected %d", tt.in, got.Data[0], tt.want)
		}
	}
}

func TestQuantizeUint16Boundaries(t *testing.T) {
	tests := []struct {
		in    float64
		scale float64
		want  uint16
	}{
		{0, 1000, 0},
		{0.5, 1000, 500},
		{65534.9, 1, 65534},
		{65535, 1, 65535},
		{65536, 1, 65535},
		{70, 1000, 65535},
		{-0.001, 1000, 0},
		{math.NaN(), 1000, 0},
	}
	for _, tt := range tests {
		in, _ := tensor.NewTensor([]int{1}, []float64{tt.in})
		got := QuantizeUint16(in, tt.scale)
		if got.Data[0] != tt.want {
			t.Errorf("QuantizeUint16(%v, %v) = %d, expected %d", tt.in, tt.scale, got.Data[0], tt.want)
		}
	}
}

func TestQuantizeSqueezesUnitAxes(t *testing.T) {
	in, _ := tensor.Full([]int{1, 1, 2, 3, 4}, 7)
	got := QuantizeUint8(in)
	if !reflect.DeepEqual(got.Shape, []int{2, 3, 4}) {
		t.Errorf("shape = %v, expected [2 3 4]", got.Shape)
	}
	if len(got.Data) != 24 || got.Data[23] != 7 {
		t.Errorf("unexpected data %v", got.Data)
	}
}

// matElement is one parsed top-level variable of a MAT file.
type matElement struct {
	class uint32
	dims  []int32
	name  string
	data  []byte
}

func readTag(t *testing.T, buf []byte) (dataType, size uint32, rest []byte) {
	t.Helper()
	if len(buf) < 8 {
		t.Fatalf("truncated tag")
	}
	return binary.LittleEndian.Uint32(buf), binary.LittleEndian.Uint32(buf[4:]), buf[8:]
}

func padded(n uint32) uint32 {
	return (n + 7) &^ 7
}

func parseMat(t *testing.T, file []byte) []matElement {
	t.Helper()
	if len(file) < 128 {
		t.Fatalf("file shorter than header")
	}
	if !strings.HasPrefix(string(file), "MATLAB 5.0 MAT-file") {
		t.Errorf("unexpected header text %q", file[:32])
	}
	if binary.LittleEndian.Uint16(file[124:]) != 0x0100 || string(file[126:128]) != "IM" {
		t.Errorf("bad version or endian marker")
	}

	var elems []matElement
	buf := file[128:]
	for len(buf) > 0 {
		dataType, size, rest := readTag(t, buf)
		if dataType != miMATRIX {
			t.Fatalf("expected miMATRIX, got %d", dataType)
		}
		if size%8 != 0 {
			t.Errorf("matrix element size %d not 8-byte aligned", size)
		}
		body := rest[:size]
		buf = rest[size:]

		var e matElement
		_, n, body := readTag(t, body)
		e.class = binary.LittleEndian.Uint32(body) & 0xff
		body = body[padded(n):]

		_, n, body = readTag(t, body)
		for i := uint32(0); i < n; i += 4 {
			e.dims = append(e.dims, int32(binary.LittleEndian.Uint32(body[i:])))
		}
		body = body[padded(n):]

		_, n, body = readTag(t, body)
		e.name = string(body[:n])
		body = body[padded(n):]

		_, n, body = readTag(t, body)
		e.data = body[:n]
		elems = append(elems, e)
	}
	return elems
}

func TestMatWriterColumnMajor(t *testing.T) {
	var buf bytes.Buffer
	mw := NewMatWriter(&buf)
	if err := mw.WriteHeader(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	// Row-major 2×3: [[1 2 3] [4 5 6]] is column-major 1 4 2 5 3 6.
	err := mw.WriteVariable(MatVariable{Name: "m", Shape: []int{2, 3}, Data: []uint8{1, 2, 3, 4, 5, 6}})
	if err != nil {
		t.Fatalf("WriteVariable failed: %v", err)
	}

	elems := parseMat(t, buf.Bytes())
	if len(elems) != 1 {
		t.Fatalf("expected 1 element, got %d", len(elems))
	}
	e := elems[0]
	if e.class != mxUINT8_CLASS || e.name != "m" {
		t.Errorf("class=%d name=%q", e.class, e.name)
	}
	if !reflect.DeepEqual(e.dims, []int32{2, 3}) {
		t.Errorf("dims = %v", e.dims)
	}
	if !bytes.Equal(e.data, []byte{1, 4, 2, 5, 3, 6}) {
		t.Errorf("data = %v, expected column-major order", e.data)
	}
}

func TestMatWriterErrors(t *testing.T) {
	mw := NewMatWriter(io.Discard)
	tests := []MatVariable{
		{Name: "", Shape: []int{1}, Data: []uint8{1}},
		{Name: "short", Shape: []int{2, 2}, Data: []uint16{1, 2, 3}},
		{Name: "kind", Shape: []int{1}, Data: []string{"x"}},
	}
	for _, v := range tests {
		if err := mw.WriteVariable(v); err == nil {
			t.Errorf("expected error for variable %q", v.Name)
		}
	}
}

func TestColumnMajor3D(t *testing.T) {
	dims := []int{2, 2, 2}
	var order []int
	columnMajor(dims, func(dst, src int) { order = append(order, src) })
	expected := []int{0, 4, 2, 6, 1, 5, 3, 7}
	if !reflect.DeepEqual(order, expected) {
		t.Errorf("source order = %v, expected %v", order, expected)
	}
}

func testRecord() *ResultRecord {
	r := &ResultRecord{
		CoeffMag: DefaultCoeffMag,
		Input:    Uint8Array{Shape: []int{2, 2, 2}, Data: []uint8{0, 1, 2, 3, 4, 5, 6, 7}},
	}
	for i := range r.Outputs {
		data := make([]uint16, 8)
		for j := range data {
			data[j] = uint16(1000*i + j)
		}
		r.Outputs[i] = Uint16Array{Shape: []int{2, 2, 2}, Data: data}
	}
	return r
}

func TestWriteResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result", "test", ResultFileName("case_01.npy"))
	if err := WriteResult(path, testRecord()); err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}

	file, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading result: %v", err)
	}
	elems := parseMat(t, file)

	var names []string
	for _, e := range elems {
		names = append(names, e.name)
	}
	expected := []string{"coeff_mag", "input", "output1", "output2", "output3", "output4"}
	if !reflect.DeepEqual(names, expected) {
		t.Fatalf("variables = %v, expected %v", names, expected)
	}

	if elems[0].class != mxINT64_CLASS || int64(binary.LittleEndian.Uint64(elems[0].data)) != 1000 {
		t.Errorf("coeff_mag not stored as int64 1000")
	}
	if elems[1].class != mxUINT8_CLASS || len(elems[1].data) != 8 {
		t.Errorf("input class=%d len=%d", elems[1].class, len(elems[1].data))
	}
	for _, e := range elems[2:] {
		if e.class != mxUINT16_CLASS || len(e.data) != 16 {
			t.Errorf("%s class=%d len=%d", e.name, e.class, len(e.data))
		}
	}
	// output4 first element is 3000 in both orders.
	if got := binary.LittleEndian.Uint16(elems[5].data); got != 3000 {
		t.Errorf("output4[0] = %d, expected 3000", got)
	}
}

func TestResultFileName(t *testing.T) {
	tests := map[string]string{
		"case_01.npy":        "case_01.mat",
		"dir/vol.nii":        "vol.mat",
		"noext":              "noext.mat",
		"archive.tar.npy":    "archive.tar.mat",
		"/abs/path/x.y.z.np": "x.y.z.mat",
	}
	for in, want := range tests {
		if got := ResultFileName(in); got != want {
			t.Errorf("ResultFileName(%q) = %q, expected %q", in, got, want)
		}
	}
}

func TestPreviewSlice(t *testing.T) {
	vol := Uint16Array{Shape: []int{2, 3, 3}, Data: make([]uint16, 18)}
	// Mid-Z slice is z=1; set one voxel to the maximum.
	vol.Data[(1*3+2)*3+1] = 500

	img, err := PreviewSlice(vol)
	if err != nil {
		t.Fatalf("PreviewSlice failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("bounds = %v", b)
	}
	if img.At(2, 1) == img.At(0, 0) {
		t.Error("maximum voxel rendered with the minimum colour")
	}

	if _, err := PreviewSlice(Uint16Array{Shape: []int{4}, Data: make([]uint16, 4)}); err == nil {
		t.Error("expected error for 1-D volume")
	}
}

func TestWritePreviews(t *testing.T) {
	resultPath := filepath.Join(t.TempDir(), "case.mat")
	paths, err := WritePreviews(resultPath, testRecord())
	if err != nil {
		t.Fatalf("WritePreviews failed: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("expected 4 previews, got %d", len(paths))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("preview %s missing: %v", p, err)
		}
	}
}

type fakeS3 struct {
	s3iface.S3API
	bucket, key string
	body        []byte
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	f.bucket = aws.StringValue(in.Bucket)
	f.key = aws.StringValue(in.Key)
	body, err := io.ReadAll(in.Body)
	f.body = body
	return &s3.PutObjectOutput{}, err
}

func TestS3Uploader(t *testing.T) {
	local := filepath.Join(t.TempDir(), "case.mat")
	if err := os.WriteFile(local, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	fake := &fakeS3{}
	u := NewS3UploaderWithClient(fake, S3Config{Bucket: "results", Prefix: "runs/a"})
	key, err := u.UploadFile(context.Background(), "test", local)
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if key != "runs/a/test/case.mat" || fake.key != key || fake.bucket != "results" {
		t.Errorf("uploaded to s3://%s/%s (returned %s)", fake.bucket, fake.key, key)
	}
	if string(fake.body) != "payload" {
		t.Errorf("body = %q", fake.body)
	}

	if _, err := NewS3Uploader(DefaultS3Config()); err == nil {
		t.Error("expected error without bucket")
	}
}
