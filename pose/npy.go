package pose

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// LoadNPY reads an extrinsics matrix saved with numpy.save.
//
// Accepted layouts are 3x4 and 4x4 arrays (C or Fortran order) and flat arrays
// of 12 or 16 elements, which are read row-major. Both float64 and float32
// element types are accepted.
func LoadNPY(path string) (Extrinsics, error) {
	f, err := os.Open(path)
	if err != nil {
		return Extrinsics{}, errors.Wrapf(err, "open pose file %q", path)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return Extrinsics{}, errors.Wrapf(err, "read npy header of %q", path)
	}

	var data []float64
	descr := r.Header.Descr
	switch {
	case strings.HasSuffix(descr.Type, "f8"):
		if err := r.Read(&data); err != nil {
			return Extrinsics{}, errors.Wrapf(err, "read float64 data of %q", path)
		}
	case strings.HasSuffix(descr.Type, "f4"):
		var d32 []float32
		if err := r.Read(&d32); err != nil {
			return Extrinsics{}, errors.Wrapf(err, "read float32 data of %q", path)
		}
		data = make([]float64, len(d32))
		for i, v := range d32 {
			data[i] = float64(v)
		}
	default:
		return Extrinsics{}, errors.Errorf("pose file %q has unsupported dtype %q", path, descr.Type)
	}

	rows, cols, err := matrixDims(descr.Shape, len(data))
	if err != nil {
		return Extrinsics{}, errors.WithMessagef(err, "pose file %q", path)
	}

	var m *mat.Dense
	if descr.Fortran && len(descr.Shape) == 2 {
		// column-major on disk: build the transpose and copy it back.
		var d mat.Dense
		d.CloneFrom(mat.NewDense(cols, rows, data).T())
		m = &d
	} else {
		m = mat.NewDense(rows, cols, data)
	}
	return NewExtrinsics(m)
}

func matrixDims(shape []int, n int) (rows, cols int, err error) {
	switch len(shape) {
	case 2:
		rows, cols = shape[0], shape[1]
	case 1:
		switch shape[0] {
		case 12:
			rows, cols = 3, 4
		case 16:
			rows, cols = 4, 4
		}
	}
	if rows*cols == 0 || rows*cols != n {
		return 0, 0, errors.Errorf("unexpected extrinsics shape %v", shape)
	}
	return rows, cols, nil
}

// SaveNPY writes e as a flat row-major float64 array that LoadNPY reads back.
func SaveNPY(path string, e Extrinsics) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create pose file %q", path)
	}
	defer f.Close()

	data := mat.DenseCopyOf(e.M).RawMatrix().Data
	if err := npyio.Write(f, data); err != nil {
		return errors.Wrapf(err, "write pose file %q", path)
	}
	return errors.Wrapf(f.Close(), "close pose file %q", path)
}
