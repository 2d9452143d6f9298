// Package pose converts rendered camera extrinsics into the relative pose
// vector fed to the view-conditioned model.
//
// Extrinsics are stored as [R|t] (3x4, or 4x4 with a homogeneous last row).
// The camera position in world space is -Rᵀ·t. Both positions are converted to
// spherical coordinates and differenced; the azimuth delta is encoded as its
// sine and cosine so regression targets have no wrap-around discontinuity.
package pose

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// T is the relative pose vector:
// (Δelevation, sin Δazimuth, cos Δazimuth, Δradius).
type T [4]float32

// Extrinsics holds a camera's [R|t] matrix.
type Extrinsics struct {
	M *mat.Dense
}

// NewExtrinsics validates that m is 3x4 or 4x4.
func NewExtrinsics(m *mat.Dense) (Extrinsics, error) {
	if m == nil {
		return Extrinsics{}, errors.New("nil extrinsics matrix")
	}
	r, c := m.Dims()
	if (r != 3 && r != 4) || c != 4 {
		return Extrinsics{}, errors.Errorf("extrinsics must be 3x4 or 4x4, got %dx%d", r, c)
	}
	return Extrinsics{M: m}, nil
}

// FromRT builds a 3x4 extrinsics matrix from a 3x3 rotation and a translation.
func FromRT(rot mat.Matrix, t r3.Vector) Extrinsics {
	m := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, rot.At(i, j))
		}
	}
	m.Set(0, 3, t.X)
	m.Set(1, 3, t.Y)
	m.Set(2, 3, t.Z)
	return Extrinsics{M: m}
}

// Rotation returns a view of the top-left 3x3 block.
func (e Extrinsics) Rotation() mat.Matrix {
	return e.M.Slice(0, 3, 0, 3)
}

// Translation returns the first three rows of the last column.
func (e Extrinsics) Translation() r3.Vector {
	return r3.Vector{X: e.M.At(0, 3), Y: e.M.At(1, 3), Z: e.M.At(2, 3)}
}

// CameraPosition returns the camera center in world coordinates, -Rᵀ·t.
func (e Extrinsics) CameraPosition() r3.Vector {
	t := e.Translation()
	tv := mat.NewVecDense(3, []float64{t.X, t.Y, t.Z})
	var p mat.VecDense
	p.MulVec(e.Rotation().T(), tv)
	return r3.Vector{X: -p.AtVec(0), Y: -p.AtVec(1), Z: -p.AtVec(2)}
}

// Spherical coordinates with the polar angle measured from the +Z axis.
type Spherical struct {
	Theta   float64 // elevation angle from the Z axis down
	Azimuth float64 // angle in the XY plane from +X
	Radius  float64
}

// CartesianToSpherical converts p into Spherical coordinates.
func CartesianToSpherical(p r3.Vector) Spherical {
	xy := p.X*p.X + p.Y*p.Y
	return Spherical{
		Theta:   math.Atan2(math.Sqrt(xy), p.Z),
		Azimuth: math.Atan2(p.Y, p.X),
		Radius:  math.Sqrt(xy + p.Z*p.Z),
	}
}

// Delta computes the relative pose between two camera positions.
func Delta(target, cond r3.Vector) T {
	st := CartesianToSpherical(target)
	sc := CartesianToSpherical(cond)

	dTheta := st.Theta - sc.Theta
	dAzimuth := math.Mod(st.Azimuth-sc.Azimuth, 2*math.Pi)
	if dAzimuth < 0 {
		dAzimuth += 2 * math.Pi
	}
	dRadius := st.Radius - sc.Radius

	return T{
		float32(dTheta),
		float32(math.Sin(dAzimuth)),
		float32(math.Cos(dAzimuth)),
		float32(dRadius),
	}
}

// Relative computes the pose of the target camera relative to the
// conditioning camera.
func Relative(target, cond Extrinsics) T {
	return Delta(target.CameraPosition(), cond.CameraPosition())
}

// Azimuth recovers the azimuth delta in (-π, π] from the encoded sin/cos pair.
func (t T) Azimuth() float64 {
	return math.Atan2(float64(t[1]), float64(t[2]))
}
