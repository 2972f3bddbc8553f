// Package pipeline runs the view fusion workflow: load two views of one
// time point, downsample them, register the moving view onto the fixed
// view, resample it and show the result.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"zarrfusion/internal/log"
	"zarrfusion/internal/models"
	"zarrfusion/pkg/config"
	"zarrfusion/pkg/loader"
	"zarrfusion/pkg/preprocess"
	"zarrfusion/pkg/registration"
	"zarrfusion/pkg/visualization"
)

// Displayer shows the final layer stack. Show blocks until the user is done.
type Displayer interface {
	Show(layers []*visualization.Layer) error
}

// Pipeline holds the configuration and the intermediate results of one run.
//
// The stages run once each, in order:
// 1. Loading the fixed and moving views
// 2. Downsampling both views and releasing the full-resolution data
// 3. Registering the moving view onto the fixed view
// 4. Resampling the moving view with the final transform
// 5. Showing the fixed, aligned and original moving views
type Pipeline struct {
	// input is the store path or URL
	input string

	cfg     *config.Config
	display Displayer

	// fixed and moving are the downsampled views
	fixed  *models.Volume
	moving *models.Volume

	// aligned is moving resampled onto the fixed grid
	aligned *models.Volume

	result *registration.Result

	before, after AlignmentMetrics
}

// New creates a pipeline. display may be nil, in which case nothing is shown.
func New(input string, cfg *config.Config, display Displayer) *Pipeline {
	return &Pipeline{input: input, cfg: cfg, display: display}
}

// Process runs all stages and returns the first error.
func (p *Pipeline) Process(ctx context.Context) error {
	// Step 1: Load both views
	log.Infof("Step 1: Loading views %d and %d at t=%d from %s",
		p.cfg.Input.FixedView, p.cfg.Input.MovingView, p.cfg.Input.TimeIndex, p.input)
	start := time.Now()
	fixedFull, movingFull, err := loader.Load(ctx, p.input, loader.OptionsFromConfig(p.cfg))
	if err != nil {
		return fmt.Errorf("failed to load views: %w", err)
	}
	log.Timed("Loading", start)

	// Step 2: Downsample
	log.Infof("Step 2: Downsampling by %.2f", p.cfg.Processing.DownsampleFactor)
	start = time.Now()
	if err := p.downsample(fixedFull, movingFull); err != nil {
		return err
	}
	// The full-resolution volumes are no longer referenced past this point.
	fixedFull, movingFull = nil, nil
	log.Infof("Downsampled to %s, spacing %v", p.fixed, p.fixed.Spacing.ZYX())
	log.Timed("Downsampling", start)

	// Step 3: Register
	log.Infof("Step 3: Registering view %d onto view %d", p.moving.Source.ViewIndex, p.fixed.Source.ViewIndex)
	start = time.Now()
	if err := p.register(); err != nil {
		return fmt.Errorf("failed to register views: %w", err)
	}
	log.Timed("Registration", start)

	// Step 4: Resample
	log.Infof("Step 4: Resampling the moving view")
	start = time.Now()
	p.aligned, err = registration.Resample(p.moving, p.fixed, p.result.Transform,
		p.cfg.Resample.DefaultValue, p.cfg.Processing.NumCores)
	if err != nil {
		return fmt.Errorf("failed to resample moving view: %w", err)
	}
	log.Timed("Resampling", start)
	p.reportAlignment()

	// Step 5: Visualize
	if !p.cfg.Viewer.Enabled || p.display == nil {
		log.Infof("Step 5: Viewer disabled, skipping visualization")
		return nil
	}
	log.Infof("Step 5: Opening viewer (press q to quit)")
	layers, err := visualization.FusionLayers(p.fixed, p.aligned, p.moving)
	if err != nil {
		return fmt.Errorf("failed to build layers: %w", err)
	}
	if err := p.display.Show(layers); err != nil {
		return fmt.Errorf("failed to show results: %w", err)
	}
	return nil
}

func (p *Pipeline) downsample(fixedFull, movingFull *models.Volume) error {
	factor := p.cfg.Processing.DownsampleFactor
	cores := p.cfg.Processing.NumCores

	var err error
	if p.fixed, err = preprocess.Downsample(fixedFull, factor, cores); err != nil {
		return fmt.Errorf("failed to downsample fixed view: %w", err)
	}
	if p.moving, err = preprocess.Downsample(movingFull, factor, cores); err != nil {
		return fmt.Errorf("failed to downsample moving view: %w", err)
	}
	return nil
}

func (p *Pipeline) register() error {
	rc := p.cfg.Registration

	fixedImage, err := registration.NewImage(p.fixed)
	if err != nil {
		return err
	}
	initial := registration.NewEuler3D(fixedImage.Center())
	ax, ay, az, err := registration.InitialRotation(rc.RotationAxis, rc.InitialAngleDegrees)
	if err != nil {
		return err
	}
	initial.SetRotation(ax, ay, az)
	log.Infof("Setting initial angle: %g degrees on axis %s", rc.InitialAngleDegrees, rc.RotationAxis)

	method := registration.NewMethod(registration.OptionsFromConfig(p.cfg))
	method.AddObserver(func(it registration.Iteration) {
		log.Debugf("Iteration %3d: metric %.6f, learning rate %.4f, parameters %.4f",
			it.Index, it.Metric, it.LearningRate, it.Parameters)
		if (it.Index+1)%25 == 0 {
			log.Infof("Iteration %d: metric %.6f", it.Index+1, it.Metric)
		}
	})

	res, err := method.Execute(p.fixed, p.moving, initial)
	if err != nil {
		return err
	}
	p.result = res

	log.Successf("Registration finished: %s", res.StopCondition)
	log.Infof("Iterations: %d, final metric value: %.6f", res.Iterations, res.MetricValue)
	log.Infof("Final transform: %s", res.Transform)

	if rc.TracePlot != "" {
		if err := visualization.SaveTrace(res.History, rc.TracePlot); err != nil {
			log.Warningf("Could not write metric trace: %v", err)
		} else {
			log.Infof("Metric trace written to %s", rc.TracePlot)
		}
	}
	return nil
}

// reportAlignment logs similarity before and after registration. Failures
// only cost the report.
func (p *Pipeline) reportAlignment() {
	var err error
	if p.before, err = CompareVolumes(p.fixed, p.moving); err != nil {
		log.Warningf("Could not compare views before registration: %v", err)
		return
	}
	if p.after, err = CompareVolumes(p.fixed, p.aligned); err != nil {
		log.Warningf("Could not compare views after registration: %v", err)
		return
	}
	log.Infof("Before registration: %s", p.before)
	log.Infof("After registration:  %s", p.after)
}

// Result returns the registration outcome, nil before step 3 completes.
func (p *Pipeline) Result() *registration.Result {
	return p.result
}

// Volumes returns the downsampled fixed view, the aligned moving view and
// the downsampled moving view.
func (p *Pipeline) Volumes() (fixed, aligned, moving *models.Volume) {
	return p.fixed, p.aligned, p.moving
}

// Metrics returns the alignment metrics before and after registration.
func (p *Pipeline) Metrics() (before, after AlignmentMetrics) {
	return p.before, p.after
}

// Run is the top-level handler: it runs the pipeline, logs any failure at
// error level and always logs the total execution time. The error is
// returned so callers can choose an exit status.
func Run(ctx context.Context, input string, cfg *config.Config, display Displayer) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panicked: %v", r)
			log.Errorf("An error occurred: %v", err)
		}
		log.Infof("Total execution time: %.2f seconds", time.Since(start).Seconds())
	}()

	if err = New(input, cfg, display).Process(ctx); err != nil {
		log.Errorf("An error occurred: %v", err)
		return err
	}
	log.Successf("Pipeline completed")
	return nil
}
