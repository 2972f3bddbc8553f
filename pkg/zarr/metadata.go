package zarr

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	arrayMetaKey = ".zarray"
	groupMetaKey = ".zgroup"
	attrsKey     = ".zattrs"
)

// ErrUnsupportedFormat is returned for metadata this reader cannot handle.
var ErrUnsupportedFormat = errors.New("zarr: unsupported format")

// ArrayMeta is the content of a Zarr v2 .zarray document.
type ArrayMeta struct {
	ZarrFormat         int             `json:"zarr_format"`
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	DType              string          `json:"dtype"`
	Compressor         json.RawMessage `json:"compressor"`
	FillValue          json.RawMessage `json:"fill_value"`
	Order              string          `json:"order"`
	Filters            json.RawMessage `json:"filters"`
	DimensionSeparator string          `json:"dimension_separator"`
}

// ParseArrayMeta decodes and validates a .zarray document.
func ParseArrayMeta(data []byte) (*ArrayMeta, error) {
	var meta ArrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", arrayMetaKey, err)
	}
	if meta.ZarrFormat != 2 {
		return nil, fmt.Errorf("%w: zarr_format %d", ErrUnsupportedFormat, meta.ZarrFormat)
	}
	if len(meta.Shape) == 0 || len(meta.Shape) != len(meta.Chunks) {
		return nil, fmt.Errorf("invalid array metadata: shape %v, chunks %v", meta.Shape, meta.Chunks)
	}
	for i := range meta.Shape {
		if meta.Shape[i] < 0 || meta.Chunks[i] <= 0 {
			return nil, fmt.Errorf("invalid array metadata: shape %v, chunks %v", meta.Shape, meta.Chunks)
		}
	}
	switch meta.Order {
	case "C", "F":
	case "":
		meta.Order = "C"
	default:
		return nil, fmt.Errorf("%w: order %q", ErrUnsupportedFormat, meta.Order)
	}
	switch meta.DimensionSeparator {
	case ".", "/":
	case "":
		meta.DimensionSeparator = "."
	default:
		return nil, fmt.Errorf("%w: dimension_separator %q", ErrUnsupportedFormat, meta.DimensionSeparator)
	}
	if hasFilters(meta.Filters) {
		return nil, fmt.Errorf("%w: filters %s", ErrUnsupportedFormat, meta.Filters)
	}
	return &meta, nil
}

func hasFilters(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null")) && !bytes.Equal(raw, []byte("[]"))
}

// dataType describes a numpy scalar dtype string such as "<f4".
type dataType struct {
	kind  byte // 'b', 'i', 'u' or 'f'
	size  int
	order binary.ByteOrder
}

func parseDataType(s string) (dataType, error) {
	if len(s) < 3 {
		return dataType{}, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, s)
	}
	var dt dataType
	switch s[0] {
	case '<', '|':
		dt.order = binary.LittleEndian
	case '>':
		dt.order = binary.BigEndian
	default:
		return dataType{}, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, s)
	}
	dt.kind = s[1]
	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return dataType{}, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, s)
	}
	dt.size = size

	valid := false
	switch dt.kind {
	case 'b':
		valid = size == 1
	case 'i', 'u':
		valid = size == 1 || size == 2 || size == 4 || size == 8
	case 'f':
		valid = size == 4 || size == 8
	}
	if !valid {
		return dataType{}, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, s)
	}
	return dt, nil
}

// toFloat32 converts raw element bytes into dst. len(raw) must equal
// len(dst)*dt.size.
func (dt dataType) toFloat32(dst []float32, raw []byte) {
	o := dt.order
	switch {
	case dt.kind == 'b' || (dt.kind == 'u' && dt.size == 1):
		for i := range dst {
			dst[i] = float32(raw[i])
		}
	case dt.kind == 'i' && dt.size == 1:
		for i := range dst {
			dst[i] = float32(int8(raw[i]))
		}
	case dt.kind == 'u' && dt.size == 2:
		for i := range dst {
			dst[i] = float32(o.Uint16(raw[2*i:]))
		}
	case dt.kind == 'i' && dt.size == 2:
		for i := range dst {
			dst[i] = float32(int16(o.Uint16(raw[2*i:])))
		}
	case dt.kind == 'u' && dt.size == 4:
		for i := range dst {
			dst[i] = float32(o.Uint32(raw[4*i:]))
		}
	case dt.kind == 'i' && dt.size == 4:
		for i := range dst {
			dst[i] = float32(int32(o.Uint32(raw[4*i:])))
		}
	case dt.kind == 'u' && dt.size == 8:
		for i := range dst {
			dst[i] = float32(o.Uint64(raw[8*i:]))
		}
	case dt.kind == 'i' && dt.size == 8:
		for i := range dst {
			dst[i] = float32(int64(o.Uint64(raw[8*i:])))
		}
	case dt.kind == 'f' && dt.size == 4:
		for i := range dst {
			dst[i] = math.Float32frombits(o.Uint32(raw[4*i:]))
		}
	case dt.kind == 'f' && dt.size == 8:
		for i := range dst {
			dst[i] = float32(math.Float64frombits(o.Uint64(raw[8*i:])))
		}
	}
}

// parseFillValue interprets the fill_value field. A null fill value reads
// as zero.
func parseFillValue(raw json.RawMessage) (float32, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("decoding fill_value: %w", err)
	}
	switch x := v.(type) {
	case float64:
		return float32(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		switch x {
		case "NaN":
			return float32(math.NaN()), nil
		case "Infinity":
			return float32(math.Inf(1)), nil
		case "-Infinity":
			return float32(math.Inf(-1)), nil
		}
	}
	return 0, fmt.Errorf("%w: fill_value %s", ErrUnsupportedFormat, raw)
}
