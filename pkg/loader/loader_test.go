package loader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zarrfusion/internal/models"
	"zarrfusion/pkg/config"
	"zarrfusion/pkg/zarr"
	"zarrfusion/pkg/zarr/zarrtest"
)

// fiveD encodes a (2, 3, 2, 3, 4) array whose value is 1000t + 100v + 12z + 4y + x.
func fiveD(t *testing.T) map[string][]byte {
	shape := []int{2, 3, 2, 3, 4}
	data := make([]float64, 0, 2*3*2*3*4)
	for ti := 0; ti < shape[0]; ti++ {
		for v := 0; v < shape[1]; v++ {
			for i := 0; i < 24; i++ {
				data = append(data, float64(1000*ti+100*v+i))
			}
		}
	}
	return zarrtest.MustEncode(t, zarrtest.Spec{
		Shape:      shape,
		Chunks:     []int{1, 1, 2, 2, 3},
		Compressor: "zstd",
	}, data)
}

func defaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

func TestOptionsFromConfig(t *testing.T) {
	opts := defaultOptions()
	assert.Equal(t, 0, opts.TimeIndex)
	assert.Equal(t, 0, opts.FixedView)
	assert.Equal(t, 1, opts.MovingView)
	assert.Equal(t, models.Spacing{Z: 1.018, Y: 0.1842, X: 0.1842}, opts.Spacing)
}

func TestLoad_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sample.zarr")
	zarrtest.WriteDir(t, dir, "", fiveD(t))

	opts := defaultOptions()
	opts.TimeIndex = 1
	opts.MovingView = 2

	fixed, moving, err := Load(context.Background(), dir, opts)
	require.NoError(t, err)

	require.Equal(t, [3]int{2, 3, 4}, fixed.Shape())
	require.Equal(t, [3]int{2, 3, 4}, moving.Shape())
	assert.Equal(t, models.Source{TimeIndex: 1, ViewIndex: 0}, fixed.Source)
	assert.Equal(t, models.Source{TimeIndex: 1, ViewIndex: 2}, moving.Source)
	assert.Equal(t, opts.Spacing, fixed.Spacing)

	assert.Equal(t, float32(1000), fixed.At(0, 0, 0))
	assert.Equal(t, float32(1000+12+8+3), fixed.At(1, 2, 3))
	assert.Equal(t, float32(1200+4+1), moving.At(0, 1, 1))
}

func TestLoad_FileURL(t *testing.T) {
	dir := t.TempDir()
	zarrtest.WriteDir(t, dir, "", fiveD(t))

	fixed, moving, err := Load(context.Background(), "file://"+dir, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, float32(0), fixed.At(0, 0, 0))
	assert.Equal(t, float32(100), moving.At(0, 0, 0))
}

func TestLoad_OMEGroupSpacing(t *testing.T) {
	store := zarr.NewMemoryStore()
	store.Set(".zgroup", []byte(`{"zarr_format": 2}`))
	store.Set(".zattrs", []byte(`{"multiscales": [{"datasets": [
		{"path": "0", "coordinateTransformations": [{"type": "scale", "scale": [1, 1, 2.0, 0.5, 0.25]}]}
	]}]}`))
	zarrtest.Fill(store, "0", fiveD(t))

	fixed, moving, err := LoadStore(context.Background(), store, defaultOptions())
	require.NoError(t, err)
	want := models.Spacing{Z: 2.0, Y: 0.5, X: 0.25}
	assert.Equal(t, want, fixed.Spacing)
	assert.Equal(t, want, moving.Spacing)
}

func TestLoad_MissingInput(t *testing.T) {
	_, _, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.zarr"), defaultOptions())
	require.ErrorIs(t, err, ErrInputNotFound)

	_, _, err = Load(context.Background(), "", defaultOptions())
	require.ErrorIs(t, err, ErrInputNotFound)

	// A fresh in-memory bucket holds nothing.
	_, _, err = Load(context.Background(), "mem://", defaultOptions())
	require.ErrorIs(t, err, ErrInputNotFound)
}

func TestLoad_EmptyDirectoryIsNotZarr(t *testing.T) {
	_, _, err := Load(context.Background(), t.TempDir(), defaultOptions())
	require.ErrorIs(t, err, zarr.ErrNotZarr)
	require.NotErrorIs(t, err, ErrInputNotFound, "an existing directory is not a missing input")
}

func TestLoad_ShapeAndIndexErrors(t *testing.T) {
	ctx := context.Background()

	flat := zarr.NewMemoryStore()
	zarrtest.Fill(flat, "", zarrtest.MustEncode(t, zarrtest.Spec{Shape: []int{2, 2, 2}, Chunks: []int{2, 2, 2}}, make([]float64, 8)))
	_, _, err := LoadStore(ctx, flat, defaultOptions())
	require.ErrorContains(t, err, "5-D")

	store := zarr.NewMemoryStore()
	zarrtest.Fill(store, "", fiveD(t))

	opts := defaultOptions()
	opts.TimeIndex = 2
	_, _, err = LoadStore(ctx, store, opts)
	require.ErrorContains(t, err, "time index")

	opts = defaultOptions()
	opts.MovingView = 3
	_, _, err = LoadStore(ctx, store, opts)
	require.ErrorContains(t, err, "view index")
}
