package registration

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrNoValidSamples is returned when no sample maps inside the moving image.
	ErrNoValidSamples = errors.New("registration: no valid samples, all points map outside the moving image")

	// ErrNonFiniteMetric is returned when the metric evaluates to NaN or infinity.
	ErrNonFiniteMetric = errors.New("registration: metric value is not finite")
)

// histogramPadding is the number of empty bins kept at each end of the
// intensity range so the cubic Parzen window never leaves the histogram.
const histogramPadding = 2

// sample is a fixed image point with its precomputed histogram bin.
type sample struct {
	point    r3.Vec
	fixedBin int
}

// binning maps intensities to continuous histogram coordinates.
type binning struct {
	size    float64
	normMin float64
}

func newBinning(min, max float64, bins int) binning {
	size := (max - min) / float64(bins-2*histogramPadding)
	if !(size > 0) {
		// Constant image: every intensity lands in the first usable bin.
		size = 1
	}
	return binning{size: size, normMin: min/size - histogramPadding}
}

func (b binning) term(v float64) float64 {
	return v/b.size - b.normMin
}

// clampBin limits a bin index to the non-padding range.
func clampBin(i, bins int) int {
	if i < histogramPadding {
		return histogramPadding
	}
	if i > bins-histogramPadding-1 {
		return bins - histogramPadding - 1
	}
	return i
}

// cubicBSpline is the cubic B-spline kernel.
func cubicBSpline(x float64) float64 {
	x = math.Abs(x)
	switch {
	case x < 1:
		return (4 - 6*x*x + 3*x*x*x) / 6
	case x < 2:
		d := 2 - x
		return d * d * d / 6
	}
	return 0
}

// MattesMutualInformation measures how well a transform aligns the moving
// image onto the fixed image. The joint histogram uses a zero-order Parzen
// window on fixed intensities and a cubic B-spline window on moving
// intensities. Value returns the negated mutual information so lower is
// better.
type MattesMutualInformation struct {
	fixed, moving *Image
	bins          int
	cores         int

	samples       []sample
	movingBinning binning
}

// NewMattesMutualInformation prepares the metric. samplingPercentage in
// (0, 1] selects every n-th fixed voxel in buffer order; 1 uses them all.
func NewMattesMutualInformation(fixed, moving *Image, bins int, samplingPercentage float64, cores int) (*MattesMutualInformation, error) {
	if bins < 2*histogramPadding+1 {
		return nil, fmt.Errorf("histogram needs at least %d bins, got %d", 2*histogramPadding+1, bins)
	}
	if !(samplingPercentage > 0) || samplingPercentage > 1 {
		return nil, fmt.Errorf("sampling percentage must be in (0, 1], got %v", samplingPercentage)
	}
	if cores < 1 {
		cores = 1
	}

	m := &MattesMutualInformation{fixed: fixed, moving: moving, bins: bins, cores: cores}

	fv := fixed.Volume()
	n := fv.Len()
	count := int(math.Round(float64(n) * samplingPercentage))
	if count < 1 {
		count = 1
	}
	step := float64(n) / float64(count)

	indices := make([]int, count)
	values := make([]float64, count)
	for i := range indices {
		idx := int(float64(i) * step)
		indices[i] = idx
		values[i] = float64(fv.Data[idx])
	}

	fixedBinning := newBinning(floats.Min(values), floats.Max(values), bins)
	m.samples = make([]sample, count)
	hw := fv.Height * fv.Width
	for i, idx := range indices {
		z, rem := idx/hw, idx%hw
		y, x := rem/fv.Width, rem%fv.Width
		m.samples[i] = sample{
			point:    fixed.PhysicalPoint(z, y, x),
			fixedBin: clampBin(int(fixedBinning.term(values[i])), bins),
		}
	}

	mmin, mmax := moving.Volume().Range()
	m.movingBinning = newBinning(float64(mmin), float64(mmax), bins)

	return m, nil
}

// NumberOfSamples returns the number of fixed points the metric visits.
func (m *MattesMutualInformation) NumberOfSamples() int {
	return len(m.samples)
}

// Value evaluates the metric for t and returns the negated mutual
// information together with the number of samples that mapped inside the
// moving image.
func (m *MattesMutualInformation) Value(t *Euler3D) (float64, int, error) {
	joint, valid, err := m.jointHistogram(t)
	if err != nil {
		return 0, 0, err
	}
	if valid == 0 {
		return 0, 0, ErrNoValidSamples
	}

	bins := m.bins
	total := floats.Sum(joint)
	floats.Scale(1/total, joint)

	fixedMarginal := make([]float64, bins)
	movingMarginal := make([]float64, bins)
	for f := 0; f < bins; f++ {
		row := joint[f*bins : (f+1)*bins]
		fixedMarginal[f] = floats.Sum(row)
		floats.Add(movingMarginal, row)
	}

	const eps = 1e-16
	mi := 0.0
	for f := 0; f < bins; f++ {
		pf := fixedMarginal[f]
		if pf < eps {
			continue
		}
		for mv := 0; mv < bins; mv++ {
			p := joint[f*bins+mv]
			pm := movingMarginal[mv]
			if p < eps || pm < eps {
				continue
			}
			mi += p * math.Log(p/(pf*pm))
		}
	}

	value := -mi
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, valid, ErrNonFiniteMetric
	}
	return value, valid, nil
}

// jointHistogram accumulates Parzen-windowed counts. Samples are split into
// contiguous blocks, one partial histogram per block, summed in block order.
func (m *MattesMutualInformation) jointHistogram(t *Euler3D) ([]float64, int, error) {
	bins := m.bins
	blocks := m.cores
	if blocks > len(m.samples) {
		blocks = len(m.samples)
	}
	per := (len(m.samples) + blocks - 1) / blocks

	partial := make([][]float64, blocks)
	counts := make([]int, blocks)

	var g errgroup.Group
	g.SetLimit(m.cores)
	for b := 0; b < blocks; b++ {
		b := b
		g.Go(func() error {
			lo := b * per
			hi := lo + per
			if hi > len(m.samples) {
				hi = len(m.samples)
			}
			if lo > hi {
				lo = hi
			}
			hist := make([]float64, bins*bins)
			n := 0
			for _, s := range m.samples[lo:hi] {
				v, ok := m.moving.Sample(t.Apply(s.point))
				if !ok {
					continue
				}
				term := m.movingBinning.term(v)
				start := clampBin(int(term), bins) - 1
				row := hist[s.fixedBin*bins:]
				for k := 0; k < 4; k++ {
					idx := start + k
					row[idx] += cubicBSpline(float64(idx) - term)
				}
				n++
			}
			partial[b] = hist
			counts[b] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	joint := make([]float64, bins*bins)
	valid := 0
	for b := range partial {
		if partial[b] != nil {
			floats.Add(joint, partial[b])
		}
		valid += counts[b]
	}
	return joint, valid, nil
}
