// Package loader reads the fixed and moving views of one time point from a
// Zarr store into float32 volumes.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"zarrfusion/internal/log"
	"zarrfusion/internal/models"
	"zarrfusion/pkg/config"
	"zarrfusion/pkg/zarr"
)

// ErrInputNotFound is returned when the input path does not exist or, for
// URLs, holds no Zarr array or group.
var ErrInputNotFound = errors.New("input not found")

// Options selects the time point and views to read.
type Options struct {
	TimeIndex  int
	FixedView  int
	MovingView int

	// Spacing is used when the store carries no OME-Zarr scale
	Spacing models.Spacing

	// CacheBytes sizes the decoded chunk cache shared by both reads; zero disables it
	CacheBytes int
}

// OptionsFromConfig extracts loader options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	s := cfg.Input.VoxelSpacing
	return Options{
		TimeIndex:  cfg.Input.TimeIndex,
		FixedView:  cfg.Input.FixedView,
		MovingView: cfg.Input.MovingView,
		Spacing:    models.Spacing{Z: s[0], Y: s[1], X: s[2]},
		CacheBytes: cfg.Store.CacheBytes,
	}
}

// CheckInput returns ErrInputNotFound when location is a local path that
// does not exist. URLs are checked when the store is opened.
func CheckInput(location string) error {
	if location == "" {
		return fmt.Errorf("%w: empty path", ErrInputNotFound)
	}
	if zarr.IsURL(location) {
		return nil
	}
	if _, err := os.Stat(location); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, location)
		}
		return fmt.Errorf("checking input %s: %w", location, err)
	}
	return nil
}

// Load opens the store at location and reads the fixed and moving views.
// The store is closed before Load returns.
func Load(ctx context.Context, location string, opts Options) (fixed, moving *models.Volume, err error) {
	if err := CheckInput(location); err != nil {
		return nil, nil, err
	}

	store, err := zarr.OpenStore(ctx, location)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store %s: %w", location, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing store %s: %w", location, cerr)
		}
	}()

	fixed, moving, err = LoadStore(ctx, store, opts)
	// An existing local path was found, so only an empty bucket prefix
	// counts as a missing input.
	if errors.Is(err, zarr.ErrNotZarr) && zarr.IsURL(location) {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrInputNotFound, location, err)
	}
	return fixed, moving, err
}

// LoadStore reads the fixed and moving views from an open store.
func LoadStore(ctx context.Context, store zarr.Store, opts Options) (fixed, moving *models.Volume, err error) {
	ds, err := zarr.ResolveDataset(ctx, store)
	if err != nil {
		return nil, nil, err
	}

	spacing := opts.Spacing
	if len(ds.Scale) >= 3 {
		n := len(ds.Scale)
		spacing = models.Spacing{Z: ds.Scale[n-3], Y: ds.Scale[n-2], X: ds.Scale[n-1]}
		log.Debugf("Using OME-Zarr voxel spacing %v", spacing.ZYX())
	}

	cache := zarr.NewChunkCache(opts.CacheBytes)
	arr, err := zarr.Open(ctx, store, ds.Path, zarr.WithCache(cache))
	if err != nil {
		return nil, nil, err
	}

	shape := arr.Shape()
	if len(shape) != 5 {
		return nil, nil, fmt.Errorf("expected a 5-D (t, view, z, y, x) array, got shape %v", shape)
	}
	if opts.TimeIndex < 0 || opts.TimeIndex >= shape[0] {
		return nil, nil, fmt.Errorf("time index %d out of range [0, %d)", opts.TimeIndex, shape[0])
	}
	log.Infof("Input array shape %v, dtype %s, chunks %v", shape, arr.DType(), arr.Chunks())

	fixed, err = readView(ctx, arr, opts.TimeIndex, opts.FixedView, spacing)
	if err != nil {
		return nil, nil, err
	}
	moving, err = readView(ctx, arr, opts.TimeIndex, opts.MovingView, spacing)
	if err != nil {
		return nil, nil, err
	}

	if cache != nil {
		hits, misses := cache.Stats()
		log.Debugf("Chunk cache: %d hits, %d misses", hits, misses)
	}
	return fixed, moving, nil
}

func readView(ctx context.Context, arr *zarr.Array, t, view int, spacing models.Spacing) (*models.Volume, error) {
	shape := arr.Shape()
	if view < 0 || view >= shape[1] {
		return nil, fmt.Errorf("view index %d out of range [0, %d)", view, shape[1])
	}

	start := time.Now()
	data, err := arr.Read(ctx, []zarr.Range{
		zarr.Index(t),
		zarr.Index(view),
		zarr.Span(0, shape[2]),
		zarr.Span(0, shape[3]),
		zarr.Span(0, shape[4]),
	})
	if err != nil {
		return nil, fmt.Errorf("reading view %d at t=%d: %w", view, t, err)
	}

	vol := &models.Volume{
		Data:    data,
		Depth:   shape[2],
		Height:  shape[3],
		Width:   shape[4],
		Spacing: spacing,
		Source:  models.Source{TimeIndex: t, ViewIndex: view},
	}
	log.Infof("Loaded view %d: %s, %s in %.2fs", view, vol,
		humanize.IBytes(uint64(len(data))*4), time.Since(start).Seconds())
	return vol, nil
}
