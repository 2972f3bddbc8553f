// Package registration aligns a moving volume onto a fixed volume with a
// rigid transform.
//
// The method follows the classic intensity-based recipe: the negated Mattes
// mutual information between the fixed image and the transformed moving
// image is minimized by gradient descent over the six Euler3D parameters.
// Parameter scales come from the physical shift each parameter causes at
// the fixed image's corners, gradients are central finite differences in
// the scaled parameter space, and the learning rate can be re-estimated so
// each step moves the image by at most one (minimum) voxel spacing.
package registration

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"zarrfusion/internal/log"
	"zarrfusion/internal/models"
	"zarrfusion/pkg/config"
)

// EstimateMode controls when the learning rate is estimated.
type EstimateMode string

const (
	EstimateNever         EstimateMode = config.EstimateNever
	EstimateOnce          EstimateMode = config.EstimateOnce
	EstimateEachIteration EstimateMode = config.EstimateEachIteration
)

// Options configures a registration run.
type Options struct {
	HistogramBins int

	// LearningRate is used as is when EstimateLearningRate is EstimateNever
	LearningRate float64

	Iterations           int
	EstimateLearningRate EstimateMode

	ConvergenceMinimumValue float64
	ConvergenceWindowSize   int

	// SamplingPercentage is the fraction of fixed voxels visited by the metric
	SamplingPercentage float64

	// DerivativeStep is the finite-difference step in scaled parameter
	// space, in units of the minimum voxel spacing
	DerivativeStep float64

	// ReturnBest returns the best parameters evaluated instead of the last
	// ones. With EstimateEachIteration every step has the same physical
	// length, so near the optimum the iterates zig-zag instead of settling;
	// rotations in particular are only recovered approximately.
	ReturnBest bool

	Cores int
}

// DefaultOptions mirrors the default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig extracts registration options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	r := cfg.Registration
	return Options{
		HistogramBins:           r.HistogramBins,
		LearningRate:            r.LearningRate,
		Iterations:              r.Iterations,
		EstimateLearningRate:    EstimateMode(r.EstimateLearningRate),
		ConvergenceMinimumValue: r.ConvergenceMinimumValue,
		ConvergenceWindowSize:   r.ConvergenceWindowSize,
		SamplingPercentage:      r.SamplingPercentage,
		DerivativeStep:          0.5,
		ReturnBest:              r.ReturnBest,
		Cores:                   cfg.Processing.NumCores,
	}
}

// Iteration is the optimizer state reported to observers after each step.
type Iteration struct {
	// Index counts from 0
	Index int

	// Metric is the value evaluated at the start of the iteration
	Metric float64

	LearningRate float64

	// Parameters are the transform parameters after the step
	Parameters []float64
}

// Observer is called once per optimizer iteration.
type Observer func(Iteration)

// Result is the outcome of a registration run.
type Result struct {
	Transform     *Euler3D
	MetricValue   float64
	Iterations    int
	StopCondition string

	// History holds the metric value of every iteration
	History []float64

	Scales  []float64
	Elapsed time.Duration
}

// Method runs the registration. A Method may be executed more than once.
type Method struct {
	opts      Options
	observers []Observer
}

// NewMethod creates a Method with the given options.
func NewMethod(opts Options) *Method {
	return &Method{opts: opts}
}

// AddObserver registers fn to receive every iteration.
func (m *Method) AddObserver(fn Observer) {
	m.observers = append(m.observers, fn)
}

// Execute registers moving onto fixed starting from initial.
//
// Parameters:
//   - fixed: the reference volume; its grid defines the sample points
//   - moving: the volume being aligned
//   - initial: the starting transform, usually centered on the fixed image;
//     it is not modified
//
// Returns:
//   - the optimized transform with the final metric value and stop reason
//   - ErrNoValidSamples or ErrNonFiniteMetric when the metric cannot be
//     evaluated, or an error describing invalid options or inputs
func (m *Method) Execute(fixed, moving *models.Volume, initial *Euler3D) (*Result, error) {
	start := time.Now()
	opts := m.opts
	if err := opts.validate(); err != nil {
		return nil, err
	}

	fixedImage, err := NewImage(fixed)
	if err != nil {
		return nil, fmt.Errorf("fixed image: %w", err)
	}
	movingImage, err := NewImage(moving)
	if err != nil {
		return nil, fmt.Errorf("moving image: %w", err)
	}

	metric, err := NewMattesMutualInformation(fixedImage, movingImage, opts.HistogramBins, opts.SamplingPercentage, opts.Cores)
	if err != nil {
		return nil, err
	}

	t := initial.Clone()
	corners := fixedImage.Corners()
	scales := EstimateScales(t, corners)
	sqrtScales := make([]float64, NumParameters)
	for i, s := range scales {
		sqrtScales[i] = math.Sqrt(s)
	}
	maxStep := fixedImage.MinSpacing()
	log.Debugf("Metric samples: %d, parameter scales: %v, max step: %.4f",
		metric.NumberOfSamples(), scales, maxStep)

	// The optimizer works on u = p * sqrt(scales), where a unit change of
	// any coordinate moves the corners by roughly one physical unit.
	var evalErr error
	probe := t.Clone()
	objective := func(u []float64) float64 {
		p := make([]float64, NumParameters)
		floats.DivTo(p, u, sqrtScales)
		probe.SetParameters(p)
		v, _, err := metric.Value(probe)
		if err != nil {
			if evalErr == nil {
				evalErr = err
			}
			return math.NaN()
		}
		return v
	}
	settings := &fd.Settings{
		Formula: fd.Central,
		Step:    opts.DerivativeStep * maxStep,
	}

	res := &Result{Scales: scales}
	monitor := newConvergenceMonitor(opts.ConvergenceWindowSize)
	learningRate := opts.LearningRate

	params := t.Parameters()
	best := append([]float64(nil), params...)
	bestValue := math.Inf(1)
	u := make([]float64, NumParameters)
	grad := make([]float64, NumParameters)
	step := make([]float64, NumParameters)

	for iter := 0; ; iter++ {
		if iter >= opts.Iterations {
			res.StopCondition = fmt.Sprintf("maximum number of iterations (%d) exceeded", opts.Iterations)
			break
		}

		t.SetParameters(params)
		value, _, err := metric.Value(t)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter, err)
		}
		res.MetricValue = value
		res.History = append(res.History, value)
		if value < bestValue {
			bestValue = value
			copy(best, params)
		}

		monitor.add(value)
		if cv := monitor.value(); cv <= opts.ConvergenceMinimumValue {
			res.StopCondition = fmt.Sprintf("convergence checker passed at iteration %d", iter)
			res.Iterations = iter + 1
			break
		}

		floats.MulTo(u, params, sqrtScales)
		fd.Gradient(grad, objective, u, settings)
		if evalErr != nil {
			return nil, fmt.Errorf("iteration %d gradient: %w", iter, evalErr)
		}

		// Parameter-space direction of a unit step in u.
		floats.DivTo(step, grad, sqrtScales)

		if opts.EstimateLearningRate == EstimateEachIteration ||
			(opts.EstimateLearningRate == EstimateOnce && iter == 0) {
			learningRate = estimateLearningRate(t, step, corners, maxStep)
		}
		floats.AddScaled(params, -learningRate, step)

		res.Iterations = iter + 1
		for _, fn := range m.observers {
			fn(Iteration{
				Index:        iter,
				Metric:       value,
				LearningRate: learningRate,
				Parameters:   append([]float64(nil), params...),
			})
		}
	}

	if opts.ReturnBest {
		params = best
		res.MetricValue = bestValue
	}
	t.SetParameters(params)
	res.Transform = t
	res.Elapsed = time.Since(start)
	return res, nil
}

func (o Options) validate() error {
	if o.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1, got %d", o.Iterations)
	}
	switch o.EstimateLearningRate {
	case EstimateNever, EstimateOnce, EstimateEachIteration:
	default:
		return fmt.Errorf("unknown learning rate estimation mode %q", o.EstimateLearningRate)
	}
	if o.EstimateLearningRate == EstimateNever && !(o.LearningRate > 0) {
		return fmt.Errorf("learning rate must be positive, got %v", o.LearningRate)
	}
	if o.ConvergenceWindowSize < 2 {
		return fmt.Errorf("convergence window must hold at least 2 values, got %d", o.ConvergenceWindowSize)
	}
	if !(o.DerivativeStep > 0) {
		return fmt.Errorf("derivative step must be positive, got %v", o.DerivativeStep)
	}
	return nil
}
