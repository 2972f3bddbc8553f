package zarr

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrUnsupportedCodec is returned for compressors this reader cannot decode.
var ErrUnsupportedCodec = errors.New("zarr: unsupported codec")

// Decoder turns a stored chunk into its raw bytes. size is the expected
// decoded length.
type Decoder interface {
	Decode(src []byte, size int) ([]byte, error)
}

type compressorConfig struct {
	ID string `json:"id"`
}

// NewDecoder builds the decoder for a .zarray compressor entry. A null
// compressor means chunks are stored raw.
func NewDecoder(raw json.RawMessage) (Decoder, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return rawDecoder{}, nil
	}
	var cfg compressorConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decoding compressor: %w", err)
	}
	switch cfg.ID {
	case "zlib":
		return zlibDecoder{}, nil
	case "gzip":
		return gzipDecoder{}, nil
	case "zstd":
		return zstdDecoder{}, nil
	case "lz4":
		return lz4Decoder{}, nil
	case "bz2":
		return bz2Decoder{}, nil
	case "blosc":
		return bloscDecoder{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, cfg.ID)
}

func checkSize(codec string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: decoded %d bytes, expected %d", codec, got, want)
	}
	return nil
}

type rawDecoder struct{}

func (rawDecoder) Decode(src []byte, size int) ([]byte, error) {
	if err := checkSize("raw", len(src), size); err != nil {
		return nil, err
	}
	return src, nil
}

func readFull(codec string, r io.Reader, size int) ([]byte, error) {
	dst := make([]byte, size)
	if _, err := io.ReadFull(r, dst); err != nil {
		return nil, fmt.Errorf("%s: %w", codec, err)
	}
	return dst, nil
}

type zlibDecoder struct{}

func (zlibDecoder) Decode(src []byte, size int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()
	return readFull("zlib", r, size)
}

type gzipDecoder struct{}

func (gzipDecoder) Decode(src []byte, size int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer r.Close()
	return readFull("gzip", r, size)
}

type bz2Decoder struct{}

func (bz2Decoder) Decode(src []byte, size int) ([]byte, error) {
	return readFull("bz2", bzip2.NewReader(bytes.NewReader(src)), size)
}

var (
	zstdOnce    sync.Once
	zstdShared  *zstd.Decoder
	zstdInitErr error
)

// sharedZstd returns a process-wide decoder; DecodeAll is safe for
// concurrent use.
func sharedZstd() (*zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdShared, zstdInitErr = zstd.NewReader(nil)
	})
	return zstdShared, zstdInitErr
}

func zstdDecode(src []byte, size int) ([]byte, error) {
	d, err := sharedZstd()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	dst, err := d.DecodeAll(src, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return dst, checkSize("zstd", len(dst), size)
}

type zstdDecoder struct{}

func (zstdDecoder) Decode(src []byte, size int) ([]byte, error) {
	return zstdDecode(src, size)
}

func lz4BlockDecode(src []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	return dst, checkSize("lz4", n, size)
}

// lz4Decoder reads the numcodecs LZ4 framing: a little-endian uint32
// holding the decoded size followed by one LZ4 block.
type lz4Decoder struct{}

func (lz4Decoder) Decode(src []byte, size int) ([]byte, error) {
	if len(src) < 4 {
		return nil, fmt.Errorf("lz4: chunk of %d bytes is too short", len(src))
	}
	if err := checkSize("lz4", int(binary.LittleEndian.Uint32(src)), size); err != nil {
		return nil, err
	}
	return lz4BlockDecode(src[4:], size)
}
