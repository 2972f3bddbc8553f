package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotZarr is returned when a store holds neither an array nor a group
// at its root.
var ErrNotZarr = errors.New("zarr: no .zarray or .zgroup at store root")

type coordinateTransformation struct {
	Type  string    `json:"type"`
	Scale []float64 `json:"scale"`
}

type multiscalesAttrs struct {
	Multiscales []struct {
		Datasets []struct {
			Path                      string                     `json:"path"`
			CoordinateTransformations []coordinateTransformation `json:"coordinateTransformations"`
		} `json:"datasets"`
		CoordinateTransformations []coordinateTransformation `json:"coordinateTransformations"`
	} `json:"multiscales"`
}

// Dataset names the array to read and, for OME-Zarr images, its physical
// scale per dimension.
type Dataset struct {
	// Path is the array's key prefix; empty when the root is the array
	Path string

	// Scale is the physical size per array dimension, nil if unknown
	Scale []float64
}

// ResolveDataset finds the array to read in store. A root array is used as
// is; a group must carry OME-Zarr multiscales metadata, and its first
// (full-resolution) dataset is returned together with its scale.
func ResolveDataset(ctx context.Context, store Store) (Dataset, error) {
	isArray, err := Exists(ctx, store, arrayMetaKey)
	if err != nil {
		return Dataset{}, err
	}
	if isArray {
		return Dataset{}, nil
	}

	isGroup, err := Exists(ctx, store, groupMetaKey)
	if err != nil {
		return Dataset{}, err
	}
	if !isGroup {
		return Dataset{}, ErrNotZarr
	}

	data, err := store.Get(ctx, attrsKey)
	if err != nil {
		return Dataset{}, fmt.Errorf("group has no readable %s: %w", attrsKey, err)
	}
	var attrs multiscalesAttrs
	if err := json.Unmarshal(data, &attrs); err != nil {
		return Dataset{}, fmt.Errorf("decoding %s: %w", attrsKey, err)
	}
	if len(attrs.Multiscales) == 0 || len(attrs.Multiscales[0].Datasets) == 0 {
		return Dataset{}, fmt.Errorf("%w: group has no multiscales datasets", ErrUnsupportedFormat)
	}

	ms := attrs.Multiscales[0]
	ds := ms.Datasets[0]
	scale := combineScales(ds.CoordinateTransformations, ms.CoordinateTransformations)
	return Dataset{Path: ds.Path, Scale: scale}, nil
}

// combineScales multiplies the dataset scale by the multiscale-level scale
// when both are present.
func combineScales(dataset, global []coordinateTransformation) []float64 {
	scale := findScale(dataset)
	if scale == nil {
		return nil
	}
	out := append([]float64(nil), scale...)
	if g := findScale(global); len(g) == len(out) {
		for i := range out {
			out[i] *= g[i]
		}
	}
	return out
}

func findScale(ts []coordinateTransformation) []float64 {
	for _, t := range ts {
		if t.Type == "scale" && len(t.Scale) > 0 {
			return t.Scale
		}
	}
	return nil
}
