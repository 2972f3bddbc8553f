package models

import "fmt"

// Spacing is the physical size of a voxel along each axis.
type Spacing struct {
	Z, Y, X float64
}

// Scale returns the spacing divided by factor, which is the spacing of a
// volume resampled by that factor.
func (s Spacing) Scale(factor float64) Spacing {
	return Spacing{Z: s.Z / factor, Y: s.Y / factor, X: s.X / factor}
}

// Min returns the smallest of the three spacings.
func (s Spacing) Min() float64 {
	m := s.Z
	if s.Y < m {
		m = s.Y
	}
	if s.X < m {
		m = s.X
	}
	return m
}

// ZYX returns the spacing in array axis order.
func (s Spacing) ZYX() [3]float64 {
	return [3]float64{s.Z, s.Y, s.X}
}

// Source identifies where a volume was read from.
type Source struct {
	// TimeIndex is the time point the volume was taken from
	TimeIndex int

	// ViewIndex is the acquisition view
	ViewIndex int
}

// Volume is a 3D scalar image.
type Volume struct {
	// Data is the 3D volume data as a 1D array in C order (z, y, x)
	Data []float32

	// Depth, Height and Width are the number of voxels along z, y and x
	Depth, Height, Width int

	// Spacing is the physical size of each voxel
	Spacing Spacing

	// Source records the time and view index of the volume
	Source Source
}

// NewVolume allocates a zero-filled volume.
func NewVolume(depth, height, width int, spacing Spacing) *Volume {
	return &Volume{
		Data:    make([]float32, depth*height*width),
		Depth:   depth,
		Height:  height,
		Width:   width,
		Spacing: spacing,
	}
}

// Shape returns the volume dimensions in (z, y, x) order.
func (v *Volume) Shape() [3]int {
	return [3]int{v.Depth, v.Height, v.Width}
}

// Len returns the number of voxels.
func (v *Volume) Len() int {
	return v.Depth * v.Height * v.Width
}

// Index returns the flat offset of voxel (z, y, x).
func (v *Volume) Index(z, y, x int) int {
	return (z*v.Height+y)*v.Width + x
}

// At returns the value at voxel (z, y, x).
func (v *Volume) At(z, y, x int) float32 {
	return v.Data[v.Index(z, y, x)]
}

// Set stores value at voxel (z, y, x).
func (v *Volume) Set(z, y, x int, value float32) {
	v.Data[v.Index(z, y, x)] = value
}

// Range returns the minimum and maximum intensity.
func (v *Volume) Range() (min, max float32) {
	if len(v.Data) == 0 {
		return 0, 0
	}
	min, max = v.Data[0], v.Data[0]
	for _, d := range v.Data {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}

// Validate checks that the dimensions agree with the data length.
func (v *Volume) Validate() error {
	if v.Depth <= 0 || v.Height <= 0 || v.Width <= 0 {
		return fmt.Errorf("invalid volume shape %dx%dx%d", v.Depth, v.Height, v.Width)
	}
	if len(v.Data) != v.Len() {
		return fmt.Errorf("volume data has %d values, shape %dx%dx%d needs %d",
			len(v.Data), v.Depth, v.Height, v.Width, v.Len())
	}
	return nil
}

func (v *Volume) String() string {
	return fmt.Sprintf("%dx%dx%d (t=%d, view=%d)", v.Depth, v.Height, v.Width,
		v.Source.TimeIndex, v.Source.ViewIndex)
}
