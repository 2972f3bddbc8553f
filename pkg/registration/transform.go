package registration

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// NumParameters is the number of parameters of an Euler3D transform.
const NumParameters = 6

// Euler3D is a rigid transform parameterized by three rotation angles and a
// translation, rotating about a fixed center:
//
//	T(p) = R(p - c) + c + t
//
// R is composed as Rz * Rx * Ry. Parameters are ordered
// (angleX, angleY, angleZ, tx, ty, tz) with angles in radians. The
// transform maps points of the fixed image into the moving image.
type Euler3D struct {
	center      r3.Vec
	angles      [3]float64
	translation r3.Vec

	// m caches the row-major rotation matrix
	m [9]float64
}

// NewEuler3D returns the identity transform rotating about center.
func NewEuler3D(center r3.Vec) *Euler3D {
	t := &Euler3D{center: center}
	t.computeMatrix()
	return t
}

// Clone returns an independent copy of t.
func (t *Euler3D) Clone() *Euler3D {
	c := *t
	return &c
}

// Center returns the center of rotation.
func (t *Euler3D) Center() r3.Vec {
	return t.center
}

// SetRotation sets the rotation angles about x, y and z in radians.
func (t *Euler3D) SetRotation(ax, ay, az float64) {
	t.angles = [3]float64{ax, ay, az}
	t.computeMatrix()
}

// Rotation returns the rotation angles about x, y and z in radians.
func (t *Euler3D) Rotation() (ax, ay, az float64) {
	return t.angles[0], t.angles[1], t.angles[2]
}

func (t *Euler3D) SetTranslation(v r3.Vec) {
	t.translation = v
}

func (t *Euler3D) Translation() r3.Vec {
	return t.translation
}

// Parameters returns (angleX, angleY, angleZ, tx, ty, tz).
func (t *Euler3D) Parameters() []float64 {
	return []float64{
		t.angles[0], t.angles[1], t.angles[2],
		t.translation.X, t.translation.Y, t.translation.Z,
	}
}

// SetParameters sets the parameters from a slice ordered as in Parameters.
func (t *Euler3D) SetParameters(p []float64) {
	if len(p) != NumParameters {
		panic(fmt.Sprintf("registration: Euler3D needs %d parameters, got %d", NumParameters, len(p)))
	}
	t.angles = [3]float64{p[0], p[1], p[2]}
	t.translation = r3.Vec{X: p[3], Y: p[4], Z: p[5]}
	t.computeMatrix()
}

// Matrix returns the rotation matrix.
func (t *Euler3D) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, append([]float64(nil), t.m[:]...))
}

// Apply maps p through the transform.
func (t *Euler3D) Apply(p r3.Vec) r3.Vec {
	d := r3.Sub(p, t.center)
	m := &t.m
	return r3.Vec{
		X: m[0]*d.X + m[1]*d.Y + m[2]*d.Z + t.center.X + t.translation.X,
		Y: m[3]*d.X + m[4]*d.Y + m[5]*d.Z + t.center.Y + t.translation.Y,
		Z: m[6]*d.X + m[7]*d.Y + m[8]*d.Z + t.center.Z + t.translation.Z,
	}
}

func (t *Euler3D) computeMatrix() {
	cx, sx := math.Cos(t.angles[0]), math.Sin(t.angles[0])
	cy, sy := math.Cos(t.angles[1]), math.Sin(t.angles[1])
	cz, sz := math.Cos(t.angles[2]), math.Sin(t.angles[2])

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cx, -sx,
		0, sx, cx,
	})
	ry := mat.NewDense(3, 3, []float64{
		cy, 0, sy,
		0, 1, 0,
		-sy, 0, cy,
	})
	rz := mat.NewDense(3, 3, []float64{
		cz, -sz, 0,
		sz, cz, 0,
		0, 0, 1,
	})

	var zx, zxy mat.Dense
	zx.Mul(rz, rx)
	zxy.Mul(&zx, ry)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t.m[3*i+j] = zxy.At(i, j)
		}
	}
}

func (t *Euler3D) String() string {
	return fmt.Sprintf("Euler3D(angles=[%.6f %.6f %.6f] rad, translation=[%.4f %.4f %.4f], center=[%.4f %.4f %.4f])",
		t.angles[0], t.angles[1], t.angles[2],
		t.translation.X, t.translation.Y, t.translation.Z,
		t.center.X, t.center.Y, t.center.Z)
}

// InitialRotation returns Euler angles for a rotation of degrees about the
// named axis ("X", "Y" or "Z", case-insensitive).
func InitialRotation(axis string, degrees float64) (ax, ay, az float64, err error) {
	rad := math.Pi * degrees / 180.0
	switch strings.ToUpper(axis) {
	case "X":
		return rad, 0, 0, nil
	case "Y":
		return 0, rad, 0, nil
	case "Z":
		return 0, 0, rad, nil
	}
	return 0, 0, 0, fmt.Errorf("unknown rotation axis %q", axis)
}
