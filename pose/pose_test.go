package pose

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

const tol = 1e-5

func rotZ(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

func rotX(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// cameraAt returns extrinsics whose camera center is pos, with rotation rot.
func cameraAt(rot *mat.Dense, pos r3.Vector) Extrinsics {
	// t = -R·c
	var t mat.VecDense
	t.MulVec(rot, mat.NewVecDense(3, []float64{pos.X, pos.Y, pos.Z}))
	return FromRT(rot, r3.Vector{X: -t.AtVec(0), Y: -t.AtVec(1), Z: -t.AtVec(2)})
}

func closeT(a, b T) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > tol {
			return false
		}
	}
	return true
}

func TestCameraPosition(t *testing.T) {
	rot := rotX(0.3)
	want := r3.Vector{X: 1, Y: -2, Z: 1.5}
	got := cameraAt(rot, want).CameraPosition()
	if got.Sub(want).Norm() > 1e-9 {
		t.Fatalf("CameraPosition = %v, want %v", got, want)
	}
}

func TestCartesianToSpherical(t *testing.T) {
	cases := []struct {
		p    r3.Vector
		want Spherical
	}{
		{r3.Vector{X: 0, Y: 0, Z: 2}, Spherical{Theta: 0, Azimuth: 0, Radius: 2}},
		{r3.Vector{X: 1, Y: 0, Z: 0}, Spherical{Theta: math.Pi / 2, Azimuth: 0, Radius: 1}},
		{r3.Vector{X: 0, Y: 3, Z: 0}, Spherical{Theta: math.Pi / 2, Azimuth: math.Pi / 2, Radius: 3}},
		{r3.Vector{X: -1, Y: 0, Z: -1}, Spherical{Theta: 3 * math.Pi / 4, Azimuth: math.Pi, Radius: math.Sqrt2}},
	}
	for _, c := range cases {
		got := CartesianToSpherical(c.p)
		if math.Abs(got.Theta-c.want.Theta) > 1e-9 ||
			math.Abs(got.Azimuth-c.want.Azimuth) > 1e-9 ||
			math.Abs(got.Radius-c.want.Radius) > 1e-9 {
			t.Fatalf("CartesianToSpherical(%v) = %+v, want %+v", c.p, got, c.want)
		}
	}
}

func TestRelativeSameCamera(t *testing.T) {
	cam := cameraAt(rotX(1.1), r3.Vector{X: 1, Y: 1, Z: 1})
	got := Relative(cam, cam)
	if !closeT(got, T{0, 0, 1, 0}) {
		t.Fatalf("Relative(cam, cam) = %v, want [0 0 1 0]", got)
	}
}

func TestRelativeAzimuthWraps(t *testing.T) {
	// target at azimuth -90°, cond at +90°: delta is -π, mod 2π is π.
	target := cameraAt(rotZ(0), r3.Vector{X: 0, Y: -1, Z: 0})
	cond := cameraAt(rotZ(0), r3.Vector{X: 0, Y: 1, Z: 0})
	got := Relative(target, cond)
	if math.Abs(float64(got[1])) > tol || math.Abs(float64(got[2])+1) > tol {
		t.Fatalf("expected sin≈0 cos≈-1, got %v", got)
	}

	// 30° counter-clockwise from cond to target.
	target = cameraAt(rotZ(0), r3.Vector{X: math.Cos(0.1 + math.Pi/6), Y: math.Sin(0.1 + math.Pi/6), Z: 0.5})
	cond = cameraAt(rotZ(0), r3.Vector{X: 2 * math.Cos(0.1), Y: 2 * math.Sin(0.1), Z: 1})
	got = Relative(target, cond)
	if math.Abs(got.Azimuth()-math.Pi/6) > tol {
		t.Fatalf("Azimuth() = %v, want %v", got.Azimuth(), math.Pi/6)
	}
}

func TestRelativeInvariantUnderRotationAboutZ(t *testing.T) {
	targetPos := r3.Vector{X: 1.2, Y: -0.4, Z: 0.9}
	condPos := r3.Vector{X: -0.3, Y: 1.5, Z: 0.2}
	rt, rc := rotX(0.7), rotX(-0.2)
	base := Relative(cameraAt(rt, targetPos), cameraAt(rc, condPos))

	for _, alpha := range []float64{0.1, 1, math.Pi / 2, 3, -2.5} {
		q := rotZ(alpha)
		// Rotating the world by Q: R' = R·Qᵀ keeps t and moves the center to Q·c.
		var rt2, rc2 mat.Dense
		rt2.Mul(rt, q.T())
		rc2.Mul(rc, q.T())
		target := FromRT(&rt2, cameraAt(rt, targetPos).Translation())
		cond := FromRT(&rc2, cameraAt(rc, condPos).Translation())

		got := Relative(target, cond)
		if !closeT(got, base) {
			t.Fatalf("rotation by %v changed T: got %v want %v", alpha, got, base)
		}
	}
}

func TestNewExtrinsicsRejectsBadShape(t *testing.T) {
	if _, err := NewExtrinsics(mat.NewDense(3, 3, nil)); err == nil {
		t.Fatalf("expected error for 3x3 matrix")
	}
	if _, err := NewExtrinsics(nil); err == nil {
		t.Fatalf("expected error for nil matrix")
	}
}

// writeNPY writes a minimal version 1.0 .npy file.
func writeNPY(t *testing.T, path, descr string, fortran bool, shape []int, data []float64) {
	t.Helper()
	shapeStrs := make([]string, len(shape))
	for i, s := range shape {
		shapeStrs[i] = fmt.Sprint(s)
	}
	shapeStr := strings.Join(shapeStrs, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	order := "False"
	if fortran {
		order = "True"
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': %s, 'shape': (%s), }", descr, order, shapeStr)
	// magic(6) + version(2) + len(2) + header + '\n' padded to 64 bytes.
	pad := 64 - (10+len(header)+1)%64
	header += strings.Repeat(" ", pad%64) + "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(header))); err != nil {
		t.Fatalf("write header len: %v", err)
	}
	buf.WriteString(header)
	for _, v := range data {
		var err error
		if strings.HasSuffix(descr, "f4") {
			err = binary.Write(&buf, binary.LittleEndian, float32(v))
		} else {
			err = binary.Write(&buf, binary.LittleEndian, v)
		}
		if err != nil {
			t.Fatalf("write data: %v", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write npy %s: %v", path, err)
	}
}

func TestLoadNPY(t *testing.T) {
	tmp := t.TempDir()
	rowMajor := []float64{
		1, 0, 0, 0.5,
		0, 1, 0, -1,
		0, 0, 1, 2,
	}
	wantPos := r3.Vector{X: -0.5, Y: 1, Z: -2}

	cases := []struct {
		name    string
		descr   string
		fortran bool
		shape   []int
		data    []float64
	}{
		{"f8_3x4", "<f8", false, []int{3, 4}, rowMajor},
		{"f4_3x4", "<f4", false, []int{3, 4}, rowMajor},
		{"flat12", "<f8", false, []int{12}, rowMajor},
		{"f8_4x4", "<f8", false, []int{4, 4}, append(append([]float64{}, rowMajor...), 0, 0, 0, 1)},
		{"f8_3x4_fortran", "<f8", true, []int{3, 4}, []float64{
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
			0.5, -1, 2,
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := filepath.Join(tmp, c.name+".npy")
			writeNPY(t, p, c.descr, c.fortran, c.shape, c.data)
			e, err := LoadNPY(p)
			if err != nil {
				t.Fatalf("LoadNPY failed: %v", err)
			}
			if got := e.CameraPosition(); got.Sub(wantPos).Norm() > 1e-6 {
				t.Fatalf("CameraPosition = %v, want %v", got, wantPos)
			}
		})
	}
}

func TestLoadNPYErrors(t *testing.T) {
	tmp := t.TempDir()
	if _, err := LoadNPY(filepath.Join(tmp, "missing.npy")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	p := filepath.Join(tmp, "bad.npy")
	writeNPY(t, p, "<f8", false, []int{3, 3}, make([]float64, 9))
	if _, err := LoadNPY(p); err == nil {
		t.Fatalf("expected error for 3x3 matrix")
	}
}

func TestSaveNPYRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "000.npy")
	want := r3.Vector{X: 0.3, Y: -1.2, Z: 1.7}
	e := cameraAt(rotZ(0.4), want)
	if err := SaveNPY(p, e); err != nil {
		t.Fatalf("SaveNPY failed: %v", err)
	}
	got, err := LoadNPY(p)
	if err != nil {
		t.Fatalf("LoadNPY failed: %v", err)
	}
	if got.CameraPosition().Sub(want).Norm() > 1e-9 {
		t.Fatalf("round trip position = %v, want %v", got.CameraPosition(), want)
	}
}
