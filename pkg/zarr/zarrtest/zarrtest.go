// Package zarrtest builds synthetic Zarr v2 arrays for tests: it encodes a
// dense float64 array into .zarray metadata and compressed chunks.
package zarrtest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"zarrfusion/pkg/zarr"
)

// Blosc configures a blosc frame. Codec is one of "lz4", "snappy", "zlib"
// or "zstd".
type Blosc struct {
	Codec     string
	Shuffle   bool
	Split     bool
	BlockSize int
	Memcpy    bool
}

// Spec describes the array to encode.
type Spec struct {
	Shape  []int
	Chunks []int

	// DType defaults to "<f4"
	DType string

	// Compressor is "", "zlib", "gzip", "zstd", "lz4" or "blosc"
	Compressor string
	Blosc      Blosc

	// Order defaults to "C"
	Order string

	// Separator defaults to "."
	Separator string

	// FillValue is written as the JSON fill_value; nil writes null
	FillValue interface{}

	// Skip leaves out the chunks it returns true for
	Skip func(coords []int) bool
}

// Encode returns the .zarray document and every chunk, keyed relative to
// the array root. data holds the whole array in C order.
func Encode(spec Spec, data []float64) (map[string][]byte, error) {
	spec = withDefaults(spec)
	total := 1
	for _, s := range spec.Shape {
		total *= s
	}
	if len(data) != total {
		return nil, fmt.Errorf("data has %d values, shape %v needs %d", len(data), spec.Shape, total)
	}

	files := make(map[string][]byte)
	meta, err := metadata(spec)
	if err != nil {
		return nil, err
	}
	files[".zarray"] = meta

	nd := len(spec.Shape)
	grid := make([]int, nd)
	for d := range grid {
		grid[d] = (spec.Shape[d] + spec.Chunks[d] - 1) / spec.Chunks[d]
	}
	chunkLen := 1
	for _, c := range spec.Chunks {
		chunkLen *= c
	}
	fill := 0.0
	if f, ok := spec.FillValue.(float64); ok {
		fill = f
	}

	coords := make([]int, nd)
	for {
		if spec.Skip == nil || !spec.Skip(coords) {
			values := make([]float64, chunkLen)
			local := make([]int, nd)
			for i := range values {
				unravel(i, spec.Chunks, spec.Order, local)
				global := 0
				inside := true
				for d := 0; d < nd; d++ {
					g := coords[d]*spec.Chunks[d] + local[d]
					if g >= spec.Shape[d] {
						inside = false
						break
					}
					global = global*spec.Shape[d] + g
				}
				if inside {
					values[i] = data[global]
				} else {
					values[i] = fill
				}
			}
			raw, size, err := encodeValues(spec.DType, values)
			if err != nil {
				return nil, err
			}
			compressed, err := compress(spec, raw, size)
			if err != nil {
				return nil, err
			}
			files[chunkKey(coords, spec.Separator)] = compressed
		}

		d := nd - 1
		for ; d >= 0; d-- {
			coords[d]++
			if coords[d] < grid[d] {
				break
			}
			coords[d] = 0
		}
		if d < 0 {
			break
		}
	}
	return files, nil
}

// MustEncode is Encode for tests.
func MustEncode(tb testing.TB, spec Spec, data []float64) map[string][]byte {
	tb.Helper()
	files, err := Encode(spec, data)
	if err != nil {
		tb.Fatalf("encoding zarr array: %v", err)
	}
	return files
}

// WriteDir writes files below dir/prefix.
func WriteDir(tb testing.TB, dir, prefix string, files map[string][]byte) {
	tb.Helper()
	for key, value := range files {
		path := filepath.Join(dir, filepath.FromSlash(prefix), filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			tb.Fatalf("creating %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, value, 0644); err != nil {
			tb.Fatalf("writing %s: %v", path, err)
		}
	}
}

// Fill copies files into a memory store below prefix.
func Fill(store *zarr.MemoryStore, prefix string, files map[string][]byte) {
	for key, value := range files {
		if prefix != "" {
			key = strings.Trim(prefix, "/") + "/" + key
		}
		store.Set(key, value)
	}
}

func withDefaults(spec Spec) Spec {
	if spec.DType == "" {
		spec.DType = "<f4"
	}
	if spec.Order == "" {
		spec.Order = "C"
	}
	if spec.Separator == "" {
		spec.Separator = "."
	}
	if spec.Compressor == "blosc" && spec.Blosc.BlockSize == 0 {
		spec.Blosc.BlockSize = 4096
	}
	return spec
}

func metadata(spec Spec) ([]byte, error) {
	var compressor interface{}
	if spec.Compressor != "" {
		c := map[string]interface{}{"id": spec.Compressor}
		if spec.Compressor == "blosc" {
			c["cname"] = spec.Blosc.Codec
			c["clevel"] = 5
			c["shuffle"] = 0
			if spec.Blosc.Shuffle {
				c["shuffle"] = 1
			}
		}
		compressor = c
	}
	return json.MarshalIndent(map[string]interface{}{
		"zarr_format":         2,
		"shape":               spec.Shape,
		"chunks":              spec.Chunks,
		"dtype":               spec.DType,
		"compressor":          compressor,
		"fill_value":          spec.FillValue,
		"order":               spec.Order,
		"filters":             nil,
		"dimension_separator": spec.Separator,
	}, "", "    ")
}

func unravel(i int, shape []int, order string, out []int) {
	if order == "F" {
		for d := 0; d < len(shape); d++ {
			out[d] = i % shape[d]
			i /= shape[d]
		}
		return
	}
	for d := len(shape) - 1; d >= 0; d-- {
		out[d] = i % shape[d]
		i /= shape[d]
	}
}

func chunkKey(coords []int, sep string) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, sep)
}

func encodeValues(dtype string, values []float64) ([]byte, int, error) {
	var order binary.ByteOrder = binary.LittleEndian
	if dtype[0] == '>' {
		order = binary.BigEndian
	}
	kind := dtype[1:]
	var buf bytes.Buffer
	var size int
	for _, v := range values {
		var err error
		switch kind {
		case "f4":
			size = 4
			err = binary.Write(&buf, order, float32(v))
		case "f8":
			size = 8
			err = binary.Write(&buf, order, v)
		case "u1":
			size = 1
			err = buf.WriteByte(uint8(v))
		case "i1":
			size = 1
			err = buf.WriteByte(byte(int8(v)))
		case "u2":
			size = 2
			err = binary.Write(&buf, order, uint16(v))
		case "i2":
			size = 2
			err = binary.Write(&buf, order, int16(v))
		case "u4":
			size = 4
			err = binary.Write(&buf, order, uint32(v))
		case "i4":
			size = 4
			err = binary.Write(&buf, order, int32(math.Round(v)))
		default:
			return nil, 0, fmt.Errorf("zarrtest: dtype %q not supported", dtype)
		}
		if err != nil {
			return nil, 0, err
		}
	}
	return buf.Bytes(), size, nil
}

func compress(spec Spec, raw []byte, typesize int) ([]byte, error) {
	switch spec.Compressor {
	case "":
		return raw, nil
	case "zlib":
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "gzip":
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "zstd":
		return zstdEncode(raw)
	case "lz4":
		block, err := lz4Encode(raw)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 4, 4+len(block))
		binary.LittleEndian.PutUint32(out, uint32(len(raw)))
		return append(out, block...), nil
	case "blosc":
		return encodeBlosc(raw, typesize, spec.Blosc)
	}
	return nil, fmt.Errorf("zarrtest: compressor %q not supported", spec.Compressor)
}

func zstdEncode(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

// lz4Encode returns a raw LZ4 block, or nil when the input does not
// compress.
func lz4Encode(raw []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, dst, nil)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

func encodeBlosc(raw []byte, typesize int, b Blosc) ([]byte, error) {
	flags := byte(0)
	codec := map[string]byte{"lz4": 1, "snappy": 2, "zlib": 3, "zstd": 4}[b.Codec]
	flags |= codec << 5
	if b.Shuffle {
		flags |= 0x01
	}
	if !b.Split {
		flags |= 0x10
	}

	header := make([]byte, 16)
	header[0] = 2
	header[1] = 1
	header[3] = byte(typesize)
	binary.LittleEndian.PutUint32(header[4:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(header[8:], uint32(b.BlockSize))

	if b.Memcpy {
		header[2] = flags | 0x02
		out := append(header, raw...)
		binary.LittleEndian.PutUint32(out[12:], uint32(len(out)))
		return out, nil
	}
	header[2] = flags

	nblocks := len(raw) / b.BlockSize
	leftover := len(raw) % b.BlockSize
	if leftover > 0 {
		nblocks++
	}
	out := append(header, make([]byte, 4*nblocks)...)
	for j := 0; j < nblocks; j++ {
		binary.LittleEndian.PutUint32(out[16+4*j:], uint32(len(out)))
		block := raw[j*b.BlockSize : min((j+1)*b.BlockSize, len(raw))]
		leftoverBlock := j == nblocks-1 && leftover > 0
		if b.Shuffle && typesize > 1 {
			block = shuffle(block, typesize)
		}
		nsplits := 1
		if b.Split && typesize <= 16 && len(block)/typesize >= 128 && !leftoverBlock {
			nsplits = typesize
		}
		neblock := len(block) / nsplits
		for s := 0; s < nsplits; s++ {
			part := block[s*neblock : (s+1)*neblock]
			stream, err := bloscStream(b.Codec, part)
			if err != nil {
				return nil, err
			}
			if len(stream) == 0 || len(stream) >= neblock {
				stream = part
			}
			var n [4]byte
			binary.LittleEndian.PutUint32(n[:], uint32(len(stream)))
			out = append(out, n[:]...)
			out = append(out, stream...)
		}
	}
	binary.LittleEndian.PutUint32(out[12:], uint32(len(out)))
	return out, nil
}

func bloscStream(codec string, part []byte) ([]byte, error) {
	switch codec {
	case "lz4":
		return lz4Encode(part)
	case "snappy":
		return snappy.Encode(nil, part), nil
	case "zstd":
		return zstdEncode(part)
	case "zlib":
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(part); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("zarrtest: blosc codec %q not supported", codec)
}

func shuffle(src []byte, typesize int) []byte {
	dst := make([]byte, len(src))
	n := len(src) / typesize
	for i := 0; i < n; i++ {
		for b := 0; b < typesize; b++ {
			dst[b*n+i] = src[i*typesize+b]
		}
	}
	copy(dst[n*typesize:], src[n*typesize:])
	return dst
}
