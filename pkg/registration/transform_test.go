package registration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func assertVecInDelta(t *testing.T, want, got r3.Vec, delta float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, delta, "x")
	assert.InDelta(t, want.Y, got.Y, delta, "y")
	assert.InDelta(t, want.Z, got.Z, delta, "z")
}

func TestEuler3D_Identity(t *testing.T) {
	tr := NewEuler3D(r3.Vec{X: 3, Y: 4, Z: 5})
	p := r3.Vec{X: 1.5, Y: -2, Z: 7}
	assertVecInDelta(t, p, tr.Apply(p), 1e-12)
	assert.Equal(t, make([]float64, NumParameters), tr.Parameters())
}

func TestEuler3D_Translation(t *testing.T) {
	tr := NewEuler3D(r3.Vec{})
	tr.SetTranslation(r3.Vec{X: 1, Y: 2, Z: 3})
	assertVecInDelta(t, r3.Vec{X: 2, Y: 2, Z: 3}, tr.Apply(r3.Vec{X: 1}), 1e-12)
}

func TestEuler3D_RotationAboutCenter(t *testing.T) {
	c := r3.Vec{X: 10, Y: 10, Z: 10}
	tr := NewEuler3D(c)
	tr.SetRotation(0, 0, math.Pi/2)

	// The center is fixed and x turns into y about z.
	assertVecInDelta(t, c, tr.Apply(c), 1e-12)
	assertVecInDelta(t, r3.Vec{X: 10, Y: 11, Z: 10}, tr.Apply(r3.Vec{X: 11, Y: 10, Z: 10}), 1e-12)

	tr.SetRotation(0, math.Pi/2, 0)
	// About y, z turns into x.
	assertVecInDelta(t, r3.Vec{X: 11, Y: 10, Z: 10}, tr.Apply(r3.Vec{X: 10, Y: 10, Z: 11}), 1e-12)
}

func TestEuler3D_MatrixOrderZXY(t *testing.T) {
	ax, ay, az := 0.3, -0.2, 0.7
	tr := NewEuler3D(r3.Vec{})
	tr.SetRotation(ax, ay, az)

	rx := mat.NewDense(3, 3, []float64{1, 0, 0, 0, math.Cos(ax), -math.Sin(ax), 0, math.Sin(ax), math.Cos(ax)})
	ry := mat.NewDense(3, 3, []float64{math.Cos(ay), 0, math.Sin(ay), 0, 1, 0, -math.Sin(ay), 0, math.Cos(ay)})
	rz := mat.NewDense(3, 3, []float64{math.Cos(az), -math.Sin(az), 0, math.Sin(az), math.Cos(az), 0, 0, 0, 1})
	var want mat.Dense
	want.Product(rz, rx, ry)

	got := tr.Matrix()
	assert.True(t, mat.EqualApprox(&want, got, 1e-12))
	assert.InDelta(t, 1.0, mat.Det(got), 1e-12)
}

func TestEuler3D_ParametersAndClone(t *testing.T) {
	tr := NewEuler3D(r3.Vec{X: 1})
	p := []float64{0.1, 0.2, 0.3, 4, 5, 6}
	tr.SetParameters(p)
	assert.Equal(t, p, tr.Parameters())

	ax, ay, az := tr.Rotation()
	assert.Equal(t, [3]float64{0.1, 0.2, 0.3}, [3]float64{ax, ay, az})
	assert.Equal(t, r3.Vec{X: 4, Y: 5, Z: 6}, tr.Translation())

	clone := tr.Clone()
	clone.SetParameters(make([]float64, NumParameters))
	assert.Equal(t, p, tr.Parameters())
	assert.Equal(t, tr.Center(), clone.Center())

	require.Panics(t, func() { tr.SetParameters([]float64{1, 2}) })
}

func TestInitialRotation(t *testing.T) {
	ax, ay, az, err := InitialRotation("Y", 90)
	require.NoError(t, err)
	assert.Zero(t, ax)
	assert.InDelta(t, math.Pi/2, ay, 1e-15)
	assert.Zero(t, az)

	ax, _, _, err = InitialRotation("x", -180)
	require.NoError(t, err)
	assert.InDelta(t, -math.Pi, ax, 1e-15)

	_, _, _, err = InitialRotation("W", 10)
	require.Error(t, err)
}
