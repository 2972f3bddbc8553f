// Package preprocess prepares full-resolution views for registration.
package preprocess

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"zarrfusion/internal/models"
	"zarrfusion/pkg/interpolation"
)

// ErrInvalidFactor is returned for non-positive or non-finite zoom factors.
var ErrInvalidFactor = errors.New("downsample factor must be positive")

// OutputShape returns the shape a volume of the given shape has after a
// zoom by factor. Each axis is rounded half to even and kept at least one
// voxel long.
func OutputShape(shape [3]int, factor float64) [3]int {
	var out [3]int
	for i, n := range shape {
		out[i] = int(math.RoundToEven(float64(n) * factor))
		if out[i] < 1 {
			out[i] = 1
		}
	}
	return out
}

// Downsample zooms vol by factor with linear interpolation and returns a
// newly allocated volume with spacing divided by factor.
//
// Output voxel o along an axis of input length n and output length m samples
// input coordinate o*(n-1)/(m-1), so the first and last voxels of both grids
// coincide. An axis of output length 1 samples coordinate 0. Planes along z
// are computed by at most cores goroutines.
func Downsample(vol *models.Volume, factor float64, cores int) (*models.Volume, error) {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("%w, got %v", ErrInvalidFactor, factor)
	}
	if err := vol.Validate(); err != nil {
		return nil, fmt.Errorf("downsample input: %w", err)
	}
	if cores < 1 {
		cores = 1
	}

	shape := OutputShape(vol.Shape(), factor)
	out := models.NewVolume(shape[0], shape[1], shape[2], vol.Spacing.Scale(factor))
	out.Source = vol.Source

	zs := gridCoords(vol.Depth, out.Depth)
	ys := gridCoords(vol.Height, out.Height)
	xs := gridCoords(vol.Width, out.Width)

	var g errgroup.Group
	g.SetLimit(cores)
	for z := 0; z < out.Depth; z++ {
		z := z
		g.Go(func() error {
			for y := 0; y < out.Height; y++ {
				row := out.Data[out.Index(z, y, 0):out.Index(z, y, 0)+out.Width]
				for x := range row {
					row[x] = float32(interpolation.Clamped(vol, interpolation.Point{Z: zs[z], Y: ys[y], X: xs[x]}))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// gridCoords returns the input coordinate sampled by each of the m output
// voxels of an axis of input length n.
func gridCoords(n, m int) []float64 {
	coords := make([]float64, m)
	if m == 1 {
		return coords
	}
	step := float64(n-1) / float64(m-1)
	for o := range coords {
		coords[o] = float64(o) * step
	}
	coords[m-1] = float64(n - 1)
	return coords
}
