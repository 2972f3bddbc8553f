package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"zarrfusion/internal/models"
)

func TestImage_Geometry(t *testing.T) {
	vol := models.NewVolume(3, 5, 9, models.Spacing{Z: 2, Y: 0.5, X: 0.25})
	im, err := NewImage(vol)
	require.NoError(t, err)

	assert.Equal(t, r3.Vec{X: 0.25, Y: 0.5, Z: 2}, im.Spacing())
	assert.Equal(t, 0.25, im.MinSpacing())
	assert.Equal(t, r3.Vec{X: 2, Y: 2, Z: 4}, im.PhysicalPoint(2, 4, 8))
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 2}, im.Center())

	corners := im.Corners()
	require.Len(t, corners, 8)
	assert.Contains(t, corners, r3.Vec{})
	assert.Contains(t, corners, r3.Vec{X: 2, Y: 2, Z: 4})
	assert.Contains(t, corners, r3.Vec{X: 2, Y: 0, Z: 4})

	ci := im.ContinuousIndex(im.PhysicalPoint(1, 3, 7))
	assert.InDelta(t, 1, ci.Z, 1e-12)
	assert.InDelta(t, 3, ci.Y, 1e-12)
	assert.InDelta(t, 7, ci.X, 1e-12)
}

func TestImage_Sample(t *testing.T) {
	vol := models.NewVolume(2, 2, 2, models.Spacing{Z: 1, Y: 1, X: 2})
	vol.Set(0, 0, 1, 10)
	im, err := NewImage(vol)
	require.NoError(t, err)

	v, ok := im.Sample(r3.Vec{X: 1})
	require.True(t, ok)
	assert.InDelta(t, 5, v, 1e-9)

	_, ok = im.Sample(r3.Vec{X: 4})
	assert.False(t, ok)
}

func TestNewImage_Errors(t *testing.T) {
	_, err := NewImage(nil)
	require.Error(t, err)

	_, err = NewImage(models.NewVolume(2, 2, 2, models.Spacing{Z: 1, Y: 0, X: 1}))
	require.Error(t, err)

	_, err = NewImage(&models.Volume{Depth: 1, Height: 1, Width: 2, Spacing: models.Spacing{Z: 1, Y: 1, X: 1}})
	require.Error(t, err)
}
