package registration

import (
	"math"

	"zarrfusion/internal/models"
)

type blob struct {
	z, y, x   float64
	amplitude float64
}

var testBlobs = []blob{
	{z: 0.40, y: 0.30, x: 0.33, amplitude: 100},
	{z: 0.55, y: 0.62, x: 0.58, amplitude: 60},
	{z: 0.45, y: 0.45, x: 0.75, amplitude: 140},
	{z: 0.60, y: 0.72, x: 0.30, amplitude: 30},
}

// blobVolume renders Gaussian blobs whose centers are given as fractions
// of the volume size, displaced by shift voxels in (z, y, x).
func blobVolume(d, h, w int, spacing models.Spacing, shift [3]float64) *models.Volume {
	v := models.NewVolume(d, h, w, spacing)
	sz, sy, sx := float64(d)/6, float64(h)/9, float64(w)/9
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				val := 5.0
				for _, b := range testBlobs {
					dz := (float64(z) - b.z*float64(d) - shift[0]) / sz
					dy := (float64(y) - b.y*float64(h) - shift[1]) / sy
					dx := (float64(x) - b.x*float64(w) - shift[2]) / sx
					val += b.amplitude * math.Exp(-0.5*(dz*dz+dy*dy+dx*dx))
				}
				v.Set(z, y, x, float32(val))
			}
		}
	}
	return v
}
