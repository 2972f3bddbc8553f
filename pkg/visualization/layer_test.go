package visualization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zarrfusion/internal/models"
)

func TestNewLayer_ContrastLimitsFromRange(t *testing.T) {
	vol := createTestVolume(2, 2, 2)
	l := NewLayer("v", vol, Green)

	assert.Equal(t, [2]float64{0, 111}, l.ContrastLimits)
	assert.Equal(t, Additive, l.Blending)
	assert.True(t, l.Visible)

	assert.Equal(t, 0.0, l.Normalize(-5))
	assert.Equal(t, 1.0, l.Normalize(500))
	assert.InDelta(t, 0.5, l.Normalize(55.5), 1e-9)
}

func TestNormalize_DegenerateLimits(t *testing.T) {
	l := &Layer{ContrastLimits: [2]float64{3, 3}}
	assert.Equal(t, 0.0, l.Normalize(3))
	assert.Equal(t, 1.0, l.Normalize(4))
}

func TestFusionLayers(t *testing.T) {
	fixed := createTestVolume(2, 3, 4)
	aligned := createTestVolume(2, 3, 4)
	original := createTestVolume(2, 3, 4)

	layers, err := FusionLayers(fixed, aligned, original)
	require.NoError(t, err)
	require.Len(t, layers, 3)

	assert.Equal(t, "View 0 (Subsampled)", layers[0].Name)
	assert.Equal(t, Gray, layers[0].Colormap)
	assert.True(t, layers[0].Visible)

	assert.Equal(t, "View 1 (Aligned)", layers[1].Name)
	assert.Equal(t, Magenta, layers[1].Colormap)
	assert.True(t, layers[1].Visible)

	assert.Equal(t, "View 1 (Original)", layers[2].Name)
	assert.Equal(t, Green, layers[2].Colormap)
	assert.False(t, layers[2].Visible)

	for _, l := range layers {
		assert.Equal(t, Additive, l.Blending)
	}
}

func TestFusionLayers_Errors(t *testing.T) {
	vol := createTestVolume(2, 3, 4)

	_, err := FusionLayers(vol, nil, vol)
	require.Error(t, err)

	_, err = FusionLayers(vol, createTestVolume(2, 3, 5), vol)
	require.Error(t, err)

	_, err = FusionLayers(vol, vol, &models.Volume{})
	require.Error(t, err)
}
