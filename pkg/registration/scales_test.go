package registration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"

	"zarrfusion/internal/models"
)

func TestEstimateScales(t *testing.T) {
	im, err := NewImage(models.NewVolume(5, 9, 17, models.Spacing{Z: 2, Y: 1, X: 0.5}))
	assert.NoError(t, err)
	tr := NewEuler3D(im.Center())
	scales := EstimateScales(tr, im.Corners())

	// Center (4, 4, 4); corners lie at distance 4 along every axis.
	for i := 3; i < 6; i++ {
		assert.InDelta(t, 1.0, scales[i], 1e-9, "translation %d", i)
	}
	r2 := 4.0*4.0 + 4.0*4.0
	for i := 0; i < 3; i++ {
		assert.InEpsilon(t, r2, scales[i], 1e-3, "rotation %d", i)
	}
}

func TestEstimateLearningRate(t *testing.T) {
	tr := NewEuler3D(r3.Vec{})
	corners := []r3.Vec{{}, {X: 10, Y: 10, Z: 10}}

	lr := estimateLearningRate(tr, []float64{0, 0, 0, 2, 0, 0}, corners, 0.5)
	assert.InDelta(t, 0.25, lr, 1e-12)

	lr = estimateLearningRate(tr, []float64{0, 0, 0, 3, 4, 0}, corners, 1)
	assert.InDelta(t, 0.2, lr, 1e-12)

	assert.Equal(t, 1.0, estimateLearningRate(tr, make([]float64, NumParameters), corners, 1))
}

func TestMaxPhysicalShift_Rotation(t *testing.T) {
	tr := NewEuler3D(r3.Vec{})
	points := []r3.Vec{{X: 1}, {X: 3}}
	shift := maxPhysicalShift(tr, []float64{0, 0, math.Pi / 2, 0, 0, 0}, points)
	assert.InDelta(t, 3*math.Sqrt2, shift, 1e-12)
}
