package export

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultCoeffMag is the scale applied to network outputs before the
// unsigned 16-bit cast.
const DefaultCoeffMag = 1000

// ResultRecord is the per-sample test export: the quantized input volume and
// the four quantized quadrant outputs.
type ResultRecord struct {
	CoeffMag int64
	Input    Uint8Array
	Outputs  [4]Uint16Array
}

// Variables returns the record as named MAT variables in file order.
func (r *ResultRecord) Variables() []MatVariable {
	vars := []MatVariable{
		{Name: "coeff_mag", Shape: []int{1, 1}, Data: []int64{r.CoeffMag}},
		{Name: "input", Shape: r.Input.Shape, Data: r.Input.Data},
	}
	for i, out := range r.Outputs {
		vars = append(vars, MatVariable{
			Name:  "output" + string(rune('1'+i)),
			Shape: out.Shape,
			Data:  out.Data,
		})
	}
	return vars
}

// ResultFileName derives the result file name from a sample identifier by
// replacing its extension with ".mat".
func ResultFileName(sampleID string) string {
	base := filepath.Base(sampleID)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".mat"
}

// WriteResult writes r as a MAT file at path, creating parent directories.
func WriteResult(path string, r *ResultRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating result directory")
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating result file %s", path)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	mw := NewMatWriter(w)
	if err := mw.WriteHeader(time.Now()); err != nil {
		return err
	}
	for _, v := range r.Variables() {
		if err := mw.WriteVariable(v); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "flushing result file %s", path)
	}
	return errors.Wrapf(file.Close(), "closing result file %s", path)
}
