package registration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"zarrfusion/internal/models"
	"zarrfusion/pkg/interpolation"
)

// Image places a volume in physical space with zero origin and identity
// direction. Voxel (z, y, x) sits at physical point (x*sx, y*sy, z*sz), so
// physical coordinates follow the (x, y, z) convention while the volume
// buffer stays in (z, y, x) order.
type Image struct {
	vol     *models.Volume
	spacing r3.Vec
}

// NewImage wraps vol. The volume is shared, not copied.
func NewImage(vol *models.Volume) (*Image, error) {
	if vol == nil {
		return nil, fmt.Errorf("nil volume")
	}
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	s := vol.Spacing
	for _, v := range []float64{s.X, s.Y, s.Z} {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid spacing %v", s.ZYX())
		}
	}
	return &Image{vol: vol, spacing: r3.Vec{X: s.X, Y: s.Y, Z: s.Z}}, nil
}

// Volume returns the wrapped volume.
func (im *Image) Volume() *models.Volume {
	return im.vol
}

// Spacing returns the voxel size in (x, y, z) order.
func (im *Image) Spacing() r3.Vec {
	return im.spacing
}

// MinSpacing returns the smallest voxel size.
func (im *Image) MinSpacing() float64 {
	return im.vol.Spacing.Min()
}

// PhysicalPoint returns the physical position of voxel (z, y, x).
func (im *Image) PhysicalPoint(z, y, x int) r3.Vec {
	return r3.Vec{
		X: float64(x) * im.spacing.X,
		Y: float64(y) * im.spacing.Y,
		Z: float64(z) * im.spacing.Z,
	}
}

// ContinuousIndex maps a physical point to a continuous buffer position.
func (im *Image) ContinuousIndex(p r3.Vec) interpolation.Point {
	return interpolation.Point{
		Z: p.Z / im.spacing.Z,
		Y: p.Y / im.spacing.Y,
		X: p.X / im.spacing.X,
	}
}

// Center returns the physical position of the buffer's center,
// ((size-1)/2) * spacing per axis.
func (im *Image) Center() r3.Vec {
	return r3.Vec{
		X: float64(im.vol.Width-1) / 2 * im.spacing.X,
		Y: float64(im.vol.Height-1) / 2 * im.spacing.Y,
		Z: float64(im.vol.Depth-1) / 2 * im.spacing.Z,
	}
}

// Corners returns the physical positions of the eight corner voxels.
func (im *Image) Corners() []r3.Vec {
	zs := []int{0, im.vol.Depth - 1}
	ys := []int{0, im.vol.Height - 1}
	xs := []int{0, im.vol.Width - 1}
	corners := make([]r3.Vec, 0, 8)
	for _, z := range zs {
		for _, y := range ys {
			for _, x := range xs {
				corners = append(corners, im.PhysicalPoint(z, y, x))
			}
		}
	}
	return corners
}

// Sample linearly interpolates the image at physical point p. The second
// result is false when p falls outside the buffer.
func (im *Image) Sample(p r3.Vec) (float64, bool) {
	return interpolation.Linear(im.vol, im.ContinuousIndex(p))
}
