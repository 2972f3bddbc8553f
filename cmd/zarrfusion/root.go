package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"zarrfusion/internal/log"
	"zarrfusion/pkg/config"
	"zarrfusion/pkg/loader"
	"zarrfusion/pkg/pipeline"
	"zarrfusion/pkg/visualization"
)

// options holds the command line flags.
type options struct {
	input    string
	cfgFile  string
	logLevel string
	noViewer bool
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "zarrfusion --input <store>",
		Short: "Register and fuse two views of a Zarr image",
		Long: `zarrfusion loads two views of one time point from a Zarr store, downsamples
them, registers the second view onto the first with a rigid transform driven
by Mattes mutual information and shows the fused result in a terminal viewer.

The input may be a directory store, a .zip store or a bucket URL
(file://, mem://, gs://, s3://).`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, stderr)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "path or URL of the Zarr store")
	cmd.Flags().StringVarP(&opts.cfgFile, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "minimum log level (debug, info, warning, error)")
	cmd.Flags().BoolVar(&opts.noViewer, "no-viewer", false, "skip the interactive viewer")
	_ = cmd.MarkFlagRequired("input")

	cmd.AddCommand(newInitConfigCmd())
	return cmd
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration to a YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			log.Infof("Default configuration written to %s", path)
			return nil
		},
	}
}

// reportedError marks an error that has already been logged.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }

func (e reportedError) Unwrap() error { return e.err }

// execute runs the command and returns the process exit status. A missing
// or nonexistent input and unusable configuration exit with 1; failures
// inside the pipeline are logged and exit with 0.
func execute(args []string, stderr io.Writer) int {
	log.SetDefault(log.New(stderr, log.LevelInfo))

	cmd := newRootCmd(stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			log.Errorf("%v", err)
		}
		return 1
	}
	return 0
}

func run(ctx context.Context, opts options, stderr io.Writer) error {
	cfg := config.DefaultConfig()
	if opts.cfgFile != "" {
		var err error
		if cfg, err = config.LoadConfig(opts.cfgFile); err != nil {
			return err
		}
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.noViewer {
		cfg.Viewer.Enabled = false
	}

	closeLog, err := setupLogging(cfg, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := loader.CheckInput(opts.input); err != nil {
		return fmt.Errorf("input path does not exist: %w", err)
	}

	axis, err := visualization.ParseAxis(cfg.Viewer.InitialAxis)
	if err != nil {
		return err
	}
	viewer := visualization.NewViewer(visualization.Options{
		SnapshotDir: cfg.Viewer.SnapshotDir,
		InitialAxis: axis,
	})
	err = pipeline.Run(ctx, opts.input, cfg, viewer)
	if errors.Is(err, loader.ErrInputNotFound) {
		return reportedError{err}
	}
	// Other failures were logged by the pipeline.
	return nil
}

// setupLogging installs the configured logger, teeing to a rotating file
// when one is configured. Each destination is styled for its own terminal
// capabilities. The returned function closes the file.
func setupLogging(cfg *config.Config, stderr io.Writer) (func(), error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	logger := log.New(stderr, level)
	closer := func() {}
	if cfg.Log.File != "" {
		file := log.OpenFile(log.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: 3,
			MaxAgeDays: 28,
		})
		logger.AddOutput(file)
		closer = func() { _ = file.Close() }
	}

	log.SetDefault(logger)
	return closer, nil
}
