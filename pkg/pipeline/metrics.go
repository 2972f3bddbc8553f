package pipeline

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"zarrfusion/internal/models"
)

// AlignmentMetrics summarizes how similar two volumes on the same grid are.
type AlignmentMetrics struct {
	// MI is the Gaussian approximation of mutual information,
	// -0.5 log(1 - r^2). Higher values indicate better alignment.
	MI float64

	// Correlation is the Pearson correlation of voxel intensities
	Correlation float64

	// RMSE is the root mean square intensity difference
	RMSE float64

	// SSIM is the global structural similarity index, using the joint
	// intensity range as dynamic range
	SSIM float64

	// EntropyDiff is the absolute difference of the 256-bin Shannon entropies
	EntropyDiff float64
}

func (m AlignmentMetrics) String() string {
	return fmt.Sprintf("MI=%.4f corr=%.4f RMSE=%.4f SSIM=%.4f entropyDiff=%.4f",
		m.MI, m.Correlation, m.RMSE, m.SSIM, m.EntropyDiff)
}

// CompareVolumes computes alignment metrics between two volumes of the same shape.
func CompareVolumes(a, b *models.Volume) (AlignmentMetrics, error) {
	if a.Shape() != b.Shape() {
		return AlignmentMetrics{}, fmt.Errorf("cannot compare volumes of shape %v and %v", a.Shape(), b.Shape())
	}
	if a.Len() == 0 {
		return AlignmentMetrics{}, fmt.Errorf("cannot compare empty volumes")
	}

	x := toFloat64(a.Data)
	y := toFloat64(b.Data)

	var m AlignmentMetrics
	m.Correlation = correlation(x, y)
	m.MI = gaussianMutualInformation(m.Correlation)
	m.RMSE = calculateRMSE(x, y)
	m.SSIM = calculateSSIM(x, y)
	m.EntropyDiff = math.Abs(calculateEntropy(x) - calculateEntropy(y))
	return m, nil
}

func toFloat64(data []float32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

// correlation returns 0 when either input is constant.
func correlation(x, y []float64) float64 {
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// gaussianMutualInformation is the mutual information of two jointly
// Gaussian variables with correlation r.
func gaussianMutualInformation(r float64) float64 {
	r2 := r * r
	if r2 >= 1 {
		return math.Inf(1)
	}
	return -0.5 * math.Log(1-r2)
}

// calculateRMSE computes the root mean square error
func calculateRMSE(x, y []float64) float64 {
	return floats.Distance(x, y, 2) / math.Sqrt(float64(len(x)))
}

// calculateSSIM computes the Structural Similarity Index
func calculateSSIM(x, y []float64) float64 {
	const k1 = 0.01
	const k2 = 0.03

	// Dynamic range of the joint intensities
	L := math.Max(floats.Max(x), floats.Max(y)) - math.Min(floats.Min(x), floats.Min(y))
	if L == 0 {
		return 1
	}
	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	muX := stat.Mean(x, nil)
	muY := stat.Mean(y, nil)
	sigmaX := stat.Variance(x, nil)
	sigmaY := stat.Variance(y, nil)
	sigmaXY := stat.Covariance(x, y, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	if den > 0 {
		return num / den
	}
	return 0
}

// calculateEntropy computes the Shannon entropy of data in bits
func calculateEntropy(data []float64) float64 {
	min, max := floats.Min(data), floats.Max(data)
	if max <= min {
		return 0
	}

	const numBins = 256
	hist := make([]float64, numBins)
	binWidth := (max - min) / numBins
	for _, v := range data {
		idx := int((v - min) / binWidth)
		if idx >= numBins {
			idx = numBins - 1
		} else if idx < 0 {
			idx = 0
		}
		hist[idx]++
	}

	n := float64(len(data))
	entropy := 0.0
	for _, count := range hist {
		if count > 0 {
			p := count / n
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
