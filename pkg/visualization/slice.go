package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"zarrfusion/internal/models"
)

// Axis is the axis a displayed plane is perpendicular to.
type Axis int

const (
	AxisZ Axis = iota
	AxisY
	AxisX
)

func (a Axis) String() string {
	switch a {
	case AxisZ:
		return "Z"
	case AxisY:
		return "Y"
	case AxisX:
		return "X"
	}
	return "?"
}

// Next returns the axis after a in Z, Y, X order.
func (a Axis) Next() Axis {
	return (a + 1) % 3
}

// ParseAxis converts "x", "y" or "z" (any case) to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToUpper(s) {
	case "Z":
		return AxisZ, nil
	case "Y":
		return AxisY, nil
	case "X":
		return AxisX, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", s)
}

// Plane describes the geometry of a slice through a volume.
type Plane struct {
	// Rows and Cols are the slice size in voxels
	Rows, Cols int

	// RowSpacing and ColSpacing are the physical voxel size along each direction
	RowSpacing, ColSpacing float64
}

// PlaneOf returns the geometry of slices perpendicular to axis. Z slices
// are (y, x) images, Y slices (z, x) and X slices (z, y).
func PlaneOf(vol *models.Volume, axis Axis) Plane {
	s := vol.Spacing
	switch axis {
	case AxisY:
		return Plane{Rows: vol.Depth, Cols: vol.Width, RowSpacing: s.Z, ColSpacing: s.X}
	case AxisX:
		return Plane{Rows: vol.Depth, Cols: vol.Height, RowSpacing: s.Z, ColSpacing: s.Y}
	default:
		return Plane{Rows: vol.Height, Cols: vol.Width, RowSpacing: s.Y, ColSpacing: s.X}
	}
}

// Depth returns the number of slices along axis.
func Depth(vol *models.Volume, axis Axis) int {
	switch axis {
	case AxisY:
		return vol.Height
	case AxisX:
		return vol.Width
	default:
		return vol.Depth
	}
}

// ExtractSlice copies the slice at position along axis into a row-major
// buffer of PlaneOf(vol, axis).Rows x Cols values.
func ExtractSlice(vol *models.Volume, axis Axis, position int) ([]float32, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	if n := Depth(vol, axis); position >= n {
		return nil, fmt.Errorf("position %d exceeds %s size %d", position, axis, n)
	}

	p := PlaneOf(vol, axis)
	out := make([]float32, p.Rows*p.Cols)
	for r := 0; r < p.Rows; r++ {
		for c := 0; c < p.Cols; c++ {
			var v float32
			switch axis {
			case AxisZ:
				v = vol.At(position, r, c)
			case AxisY:
				v = vol.At(r, position, c)
			case AxisX:
				v = vol.At(r, c, position)
			}
			out[r*p.Cols+c] = v
		}
	}
	return out, nil
}

// Composite renders the visible layers' slices with additive blending.
// Layers must share the first layer's shape; others are skipped.
func Composite(layers []*Layer, axis Axis, position int) (*image.RGBA, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("no layers")
	}
	ref := layers[0].Volume
	p := PlaneOf(ref, axis)
	acc := make([]float64, 3*p.Rows*p.Cols)

	for _, l := range layers {
		if !l.Visible || l.Volume.Shape() != ref.Shape() {
			continue
		}
		data, err := ExtractSlice(l.Volume, axis, position)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		for i, v := range data {
			r, g, b := l.Colormap.RGB(l.Normalize(v))
			acc[3*i] += r
			acc[3*i+1] += g
			acc[3*i+2] += b
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, p.Cols, p.Rows))
	for i := 0; i < p.Rows*p.Cols; i++ {
		img.SetRGBA(i%p.Cols, i/p.Cols, color.RGBA{
			R: channel(acc[3*i]),
			G: channel(acc[3*i+1]),
			B: channel(acc[3*i+2]),
			A: 255,
		})
	}
	return img, nil
}

func channel(v float64) uint8 {
	if v >= 1 {
		return 255
	}
	if v <= 0 {
		return 0
	}
	return uint8(v*255 + 0.5)
}

// SaveSnapshot saves a composited slice as a JPEG image
func SaveSnapshot(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 95})
}
