package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"zarrfusion/internal/models"
)

func TestResample_IdentityReproducesInput(t *testing.T) {
	vol := blobVolume(6, 12, 10, models.Spacing{Z: 2, Y: 0.5, X: 0.75}, [3]float64{})
	vol.Source = models.Source{TimeIndex: 3, ViewIndex: 1}
	im, err := NewImage(vol)
	require.NoError(t, err)

	out, err := Resample(vol, vol, NewEuler3D(im.Center()), 0, 4)
	require.NoError(t, err)
	assert.Equal(t, vol.Shape(), out.Shape())
	assert.Equal(t, vol.Spacing, out.Spacing)
	assert.Equal(t, vol.Source, out.Source)
	for i := range vol.Data {
		assert.InDelta(t, vol.Data[i], out.Data[i], 1e-4)
	}
}

func TestResample_TranslationAndDefaultValue(t *testing.T) {
	spacing := models.Spacing{Z: 1, Y: 1, X: 2}
	moving := models.NewVolume(1, 1, 4, spacing)
	copy(moving.Data, []float32{10, 20, 30, 40})
	reference := models.NewVolume(1, 1, 4, spacing)

	tr := NewEuler3D(r3.Vec{})
	tr.SetTranslation(r3.Vec{X: 2}) // one voxel along x

	out, err := Resample(moving, reference, tr, -1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{20, 30, 40, -1}, out.Data)
}

func TestResample_OntoDifferentGrid(t *testing.T) {
	moving := blobVolume(4, 8, 8, models.Spacing{Z: 1, Y: 1, X: 1}, [3]float64{})
	reference := models.NewVolume(2, 4, 4, models.Spacing{Z: 2, Y: 2, X: 2})

	out, err := Resample(moving, reference, NewEuler3D(r3.Vec{}), 0, 2)
	require.NoError(t, err)
	require.Equal(t, [3]int{2, 4, 4}, out.Shape())
	assert.InDelta(t, moving.At(2, 6, 4), out.At(1, 3, 2), 1e-4)
}
