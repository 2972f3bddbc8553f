package registration

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"zarrfusion/internal/models"
)

// Resample maps moving onto the grid of reference: each output voxel at
// physical point p takes the linearly interpolated moving value at t(p),
// or defaultValue when t(p) falls outside the moving buffer. The output
// has reference's shape and spacing and moving's source. Planes along z
// are computed by at most cores goroutines.
func Resample(moving, reference *models.Volume, t *Euler3D, defaultValue float64, cores int) (*models.Volume, error) {
	movingImage, err := NewImage(moving)
	if err != nil {
		return nil, fmt.Errorf("moving image: %w", err)
	}
	refImage, err := NewImage(reference)
	if err != nil {
		return nil, fmt.Errorf("reference image: %w", err)
	}
	if cores < 1 {
		cores = 1
	}

	out := models.NewVolume(reference.Depth, reference.Height, reference.Width, reference.Spacing)
	out.Source = moving.Source

	var g errgroup.Group
	g.SetLimit(cores)
	for z := 0; z < out.Depth; z++ {
		z := z
		g.Go(func() error {
			for y := 0; y < out.Height; y++ {
				for x := 0; x < out.Width; x++ {
					v, ok := movingImage.Sample(t.Apply(refImage.PhysicalPoint(z, y, x)))
					if !ok {
						v = defaultValue
					}
					out.Data[out.Index(z, y, x)] = float32(v)
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
