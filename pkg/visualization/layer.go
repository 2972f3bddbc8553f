package visualization

import (
	"fmt"

	"zarrfusion/internal/models"
)

// Colormap maps a normalized intensity in [0, 1] to linear RGB in [0, 1].
type Colormap string

const (
	Gray    Colormap = "gray"
	Magenta Colormap = "magenta"
	Green   Colormap = "green"
)

// RGB returns the color of normalized intensity t.
func (c Colormap) RGB(t float64) (r, g, b float64) {
	switch c {
	case Magenta:
		return t, 0, t
	case Green:
		return 0, t, 0
	default:
		return t, t, t
	}
}

// Blending is how a layer combines with the layers below it.
type Blending string

// Additive sums layer colors channel by channel, saturating at full intensity.
const Additive Blending = "additive"

// Layer is one volume shown in the viewer.
type Layer struct {
	Name     string
	Volume   *models.Volume
	Colormap Colormap
	Blending Blending
	Visible  bool

	// ContrastLimits map intensities to the colormap's [0, 1] range
	ContrastLimits [2]float64
}

// NewLayer returns a visible additive layer whose contrast limits span the
// volume's data range.
func NewLayer(name string, vol *models.Volume, cmap Colormap) *Layer {
	lo, hi := vol.Range()
	return &Layer{
		Name:           name,
		Volume:         vol,
		Colormap:       cmap,
		Blending:       Additive,
		Visible:        true,
		ContrastLimits: [2]float64{float64(lo), float64(hi)},
	}
}

// Normalize maps v into [0, 1] using the contrast limits.
func (l *Layer) Normalize(v float32) float64 {
	lo, hi := l.ContrastLimits[0], l.ContrastLimits[1]
	if hi <= lo {
		if float64(v) > lo {
			return 1
		}
		return 0
	}
	t := (float64(v) - lo) / (hi - lo)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// Layer names as shown in the viewer.
const (
	FixedLayerName    = "View 0 (Subsampled)"
	AlignedLayerName  = "View 1 (Aligned)"
	OriginalLayerName = "View 1 (Original)"
)

// FusionLayers builds the standard layer stack: the fixed view in gray, the
// aligned moving view in magenta and the unaligned moving view in green,
// hidden.
func FusionLayers(fixed, aligned, original *models.Volume) ([]*Layer, error) {
	for _, v := range []*models.Volume{fixed, aligned, original} {
		if v == nil {
			return nil, fmt.Errorf("nil volume")
		}
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	if fixed.Shape() != aligned.Shape() {
		return nil, fmt.Errorf("aligned volume shape %v does not match fixed %v", aligned.Shape(), fixed.Shape())
	}

	hidden := NewLayer(OriginalLayerName, original, Green)
	hidden.Visible = false
	return []*Layer{
		NewLayer(FixedLayerName, fixed, Gray),
		NewLayer(AlignedLayerName, aligned, Magenta),
		hidden,
	}, nil
}
