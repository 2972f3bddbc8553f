package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zarrfusion/internal/models"
)

func rampVolume(d, h, w int, offset float32) *models.Volume {
	v := models.NewVolume(d, h, w, models.Spacing{Z: 1, Y: 1, X: 1})
	for i := range v.Data {
		v.Data[i] = float32(i%17) + offset
	}
	return v
}

func TestCompareVolumes_Identical(t *testing.T) {
	a := rampVolume(2, 5, 7, 0)
	m, err := CompareVolumes(a, a)
	require.NoError(t, err)

	assert.InDelta(t, 1, m.Correlation, 1e-12)
	assert.True(t, math.IsInf(m.MI, 1) || m.MI > 10)
	assert.Zero(t, m.RMSE)
	assert.InDelta(t, 1, m.SSIM, 1e-12)
	assert.Zero(t, m.EntropyDiff)
}

func TestCompareVolumes_Offset(t *testing.T) {
	a := rampVolume(2, 5, 7, 0)
	b := rampVolume(2, 5, 7, 3)
	m, err := CompareVolumes(a, b)
	require.NoError(t, err)

	assert.InDelta(t, 1, m.Correlation, 1e-9)
	assert.InDelta(t, 3, m.RMSE, 1e-9)
	assert.Less(t, m.SSIM, 1.0)
	assert.InDelta(t, 0, m.EntropyDiff, 1e-12)
}

func TestCompareVolumes_Constant(t *testing.T) {
	a := models.NewVolume(1, 2, 2, models.Spacing{Z: 1, Y: 1, X: 1})
	m, err := CompareVolumes(a, a)
	require.NoError(t, err)
	assert.Zero(t, m.Correlation)
	assert.Zero(t, m.MI)
	assert.Equal(t, 1.0, m.SSIM)
}

func TestCompareVolumes_ShapeMismatch(t *testing.T) {
	_, err := CompareVolumes(rampVolume(1, 2, 3, 0), rampVolume(1, 3, 2, 0))
	require.Error(t, err)
}
