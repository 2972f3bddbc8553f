package registration

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// smallParameterVariation is the parameter perturbation used to measure
// physical shift per parameter.
const smallParameterVariation = 0.01

// maxPhysicalShift returns the largest distance any of points moves when
// the parameters of t change by delta.
func maxPhysicalShift(t *Euler3D, delta []float64, points []r3.Vec) float64 {
	moved := t.Clone()
	p := t.Parameters()
	floats.Add(p, delta)
	moved.SetParameters(p)

	shift := 0.0
	for _, pt := range points {
		d := r3.Norm(r3.Sub(moved.Apply(pt), t.Apply(pt)))
		if d > shift {
			shift = d
		}
	}
	return shift
}

// EstimateScales returns one scale per parameter: the squared physical
// shift of points per unit change of that parameter. Translations scale
// close to 1 while rotations scale with the squared distance to the center.
func EstimateScales(t *Euler3D, points []r3.Vec) []float64 {
	scales := make([]float64, NumParameters)
	delta := make([]float64, NumParameters)
	for i := range scales {
		delta[i] = smallParameterVariation
		shift := maxPhysicalShift(t, delta, points)
		delta[i] = 0

		s := shift * shift / (smallParameterVariation * smallParameterVariation)
		if !(s > 0) || math.IsInf(s, 0) {
			s = 1
		}
		scales[i] = s
	}
	return scales
}

// estimateLearningRate returns the rate that makes step move points by at
// most maxStep physical units. A step that moves nothing yields 1.
func estimateLearningRate(t *Euler3D, step []float64, points []r3.Vec, maxStep float64) float64 {
	shift := maxPhysicalShift(t, step, points)
	if shift <= 1e-12 {
		return 1
	}
	return maxStep / shift
}
