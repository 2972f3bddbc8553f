// Package zarr reads Zarr v2 arrays from directory, zip and object-store
// backends. It is read-only: arrays are opened from their .zarray metadata
// and rectangular selections are decoded chunk by chunk into float32.
package zarr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Range selects the half-open interval [Start, Stop) along one dimension.
type Range struct {
	Start, Stop int
}

// Index selects the single position i.
func Index(i int) Range {
	return Range{Start: i, Stop: i + 1}
}

// Span selects [start, stop).
func Span(start, stop int) Range {
	return Range{Start: start, Stop: stop}
}

func (r Range) Len() int {
	return r.Stop - r.Start
}

// Array is an opened Zarr v2 array.
type Array struct {
	store   Store
	path    string
	meta    *ArrayMeta
	dtype   dataType
	fill    float32
	decoder Decoder
	cache   *ChunkCache
}

// Option configures Open.
type Option func(*Array)

// WithCache shares a decoded chunk cache with the array.
func WithCache(c *ChunkCache) Option {
	return func(a *Array) { a.cache = c }
}

// Open reads the .zarray document at path (empty for the store root).
func Open(ctx context.Context, store Store, path string, opts ...Option) (*Array, error) {
	path = strings.Trim(path, "/")
	data, err := store.Get(ctx, joinKey(path, arrayMetaKey))
	if err != nil {
		return nil, fmt.Errorf("reading array metadata at %q: %w", path, err)
	}
	meta, err := ParseArrayMeta(data)
	if err != nil {
		return nil, err
	}
	dtype, err := parseDataType(meta.DType)
	if err != nil {
		return nil, err
	}
	fill, err := parseFillValue(meta.FillValue)
	if err != nil {
		return nil, err
	}
	decoder, err := NewDecoder(meta.Compressor)
	if err != nil {
		return nil, err
	}

	a := &Array{
		store:   store,
		path:    path,
		meta:    meta,
		dtype:   dtype,
		fill:    fill,
		decoder: decoder,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Shape returns a copy of the array shape.
func (a *Array) Shape() []int {
	return append([]int(nil), a.meta.Shape...)
}

// Chunks returns a copy of the chunk shape.
func (a *Array) Chunks() []int {
	return append([]int(nil), a.meta.Chunks...)
}

// DType returns the numpy dtype string.
func (a *Array) DType() string {
	return a.meta.DType
}

// Read decodes the selection into a float32 slice in C order. The result
// has one entry per selected element; dimensions selected with Index keep
// a length of one.
func (a *Array) Read(ctx context.Context, sel []Range) ([]float32, error) {
	shape := a.meta.Shape
	chunks := a.meta.Chunks
	nd := len(shape)
	if len(sel) != nd {
		return nil, fmt.Errorf("selection has %d dimensions, array has %d", len(sel), nd)
	}
	total := 1
	for d, r := range sel {
		if r.Start < 0 || r.Stop > shape[d] || r.Start >= r.Stop {
			return nil, fmt.Errorf("selection [%d:%d] out of bounds for dimension %d of size %d",
				r.Start, r.Stop, d, shape[d])
		}
		total *= r.Len()
	}

	out := make([]float32, total)
	outStrides := cStrides(rangeLens(sel))
	chunkStrides := a.chunkStrides()

	lo := make([]int, nd)
	hi := make([]int, nd)
	for d, r := range sel {
		lo[d] = r.Start / chunks[d]
		hi[d] = (r.Stop - 1) / chunks[d]
	}

	err := eachCoord(lo, hi, func(coords []int) error {
		chunk, err := a.chunk(ctx, coords)
		if err != nil {
			return err
		}
		a.copyChunk(out, outStrides, sel, chunk, chunkStrides, coords)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// copyChunk copies the part of chunk that intersects sel into out.
func (a *Array) copyChunk(out []float32, outStrides []int, sel []Range, chunk []float32, chunkStrides []int, coords []int) {
	chunks := a.meta.Chunks
	nd := len(chunks)
	ilo := make([]int, nd)
	ihi := make([]int, nd)
	for d := range coords {
		origin := coords[d] * chunks[d]
		ilo[d] = max(sel[d].Start, origin)
		ihi[d] = min(sel[d].Stop, origin+chunks[d]) - 1
	}

	last := nd - 1
	outer := ilo[:last]
	outerHi := ihi[:last]
	_ = eachCoord(outer, outerHi, func(p []int) error {
		outOff, chunkOff := 0, 0
		for d := 0; d < last; d++ {
			outOff += (p[d] - sel[d].Start) * outStrides[d]
			chunkOff += (p[d] - coords[d]*chunks[d]) * chunkStrides[d]
		}
		origin := coords[last] * chunks[last]
		for x := ilo[last]; x <= ihi[last]; x++ {
			out[outOff+(x-sel[last].Start)] = chunk[chunkOff+(x-origin)*chunkStrides[last]]
		}
		return nil
	})
}

// chunk returns the decoded chunk at coords as float32 in storage order.
// Missing chunks are filled with the array's fill value.
func (a *Array) chunk(ctx context.Context, coords []int) ([]float32, error) {
	n := 1
	for _, c := range a.meta.Chunks {
		n *= c
	}
	key := a.chunkKey(coords)
	size := n * a.dtype.size

	raw, ok := a.cache.get(key)
	if !ok {
		stored, err := a.store.Get(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			values := make([]float32, n)
			if a.fill != 0 {
				for i := range values {
					values[i] = a.fill
				}
			}
			return values, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading chunk %s: %w", key, err)
		}
		raw, err = a.decoder.Decode(stored, size)
		if err != nil {
			return nil, fmt.Errorf("decoding chunk %s: %w", key, err)
		}
		a.cache.put(key, raw)
	}
	if len(raw) != size {
		return nil, fmt.Errorf("chunk %s has %d bytes, expected %d", key, len(raw), size)
	}
	values := make([]float32, n)
	a.dtype.toFloat32(values, raw)
	return values, nil
}

func (a *Array) chunkKey(coords []int) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.Itoa(c)
	}
	return joinKey(a.path, strings.Join(parts, a.meta.DimensionSeparator))
}

func (a *Array) chunkStrides() []int {
	if a.meta.Order == "F" {
		return fStrides(a.meta.Chunks)
	}
	return cStrides(a.meta.Chunks)
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func rangeLens(sel []Range) []int {
	lens := make([]int, len(sel))
	for i, r := range sel {
		lens[i] = r.Len()
	}
	return lens
}

func cStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = s
		s *= shape[d]
	}
	return strides
}

func fStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for d := 0; d < len(shape); d++ {
		strides[d] = s
		s *= shape[d]
	}
	return strides
}

// eachCoord calls fn for every coordinate in the inclusive box [lo, hi],
// last dimension fastest. fn must not retain the slice.
func eachCoord(lo, hi []int, fn func([]int) error) error {
	nd := len(lo)
	p := append([]int(nil), lo...)
	for {
		if err := fn(p); err != nil {
			return err
		}
		d := nd - 1
		for ; d >= 0; d-- {
			p[d]++
			if p[d] <= hi[d] {
				break
			}
			p[d] = lo[d]
		}
		if d < 0 {
			return nil
		}
	}
}
