package zarr

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
)

// Blosc frame layout (version 2 header):
//
//	byte 0      format version
//	byte 1      inner codec version
//	byte 2      flags
//	byte 3      typesize
//	bytes 4-7   decoded size
//	bytes 8-11  block size
//	bytes 12-15 frame size
//
// followed, unless the frame is a plain copy, by one int32 offset per block.
const bloscHeaderSize = 16

const (
	bloscDoShuffle    = 0x01
	bloscMemcpyed     = 0x02
	bloscDoBitshuffle = 0x04
	bloscDontSplit    = 0x10
)

// Inner codec identifiers stored in bits 5-7 of the flags.
const (
	bloscBloscLZ = 0
	bloscLZ4     = 1
	bloscSnappy  = 2
	bloscZlib    = 3
	bloscZstd    = 4
)

const (
	bloscMaxSplits    = 16
	bloscMinBlockSize = 128
)

type bloscHeader struct {
	flags     byte
	typesize  int
	nbytes    int
	blocksize int
	cbytes    int
}

func (h bloscHeader) codec() int {
	return int(h.flags>>5) & 0x07
}

func parseBloscHeader(src []byte) (bloscHeader, error) {
	if len(src) < bloscHeaderSize {
		return bloscHeader{}, fmt.Errorf("blosc: frame of %d bytes is too short", len(src))
	}
	h := bloscHeader{
		flags:     src[2],
		typesize:  int(src[3]),
		nbytes:    int(binary.LittleEndian.Uint32(src[4:])),
		blocksize: int(binary.LittleEndian.Uint32(src[8:])),
		cbytes:    int(binary.LittleEndian.Uint32(src[12:])),
	}
	if h.cbytes > len(src) {
		return bloscHeader{}, fmt.Errorf("blosc: header claims %d bytes, frame has %d", h.cbytes, len(src))
	}
	if h.typesize == 0 {
		h.typesize = 1
	}
	return h, nil
}

// bloscDecoder decodes frames produced by c-blosc 1.x.
type bloscDecoder struct{}

func (bloscDecoder) Decode(src []byte, size int) ([]byte, error) {
	h, err := parseBloscHeader(src)
	if err != nil {
		return nil, err
	}
	if err := checkSize("blosc", h.nbytes, size); err != nil {
		return nil, err
	}
	dst := make([]byte, h.nbytes)
	if h.nbytes == 0 {
		return dst, nil
	}

	if h.flags&bloscMemcpyed != 0 {
		if len(src) < bloscHeaderSize+h.nbytes {
			return nil, fmt.Errorf("blosc: copied frame truncated")
		}
		copy(dst, src[bloscHeaderSize:bloscHeaderSize+h.nbytes])
		return dst, nil
	}

	if h.flags&bloscDoBitshuffle != 0 && h.typesize > 1 {
		return nil, fmt.Errorf("%w: blosc bitshuffle", ErrUnsupportedCodec)
	}
	if h.blocksize <= 0 {
		return nil, fmt.Errorf("blosc: invalid block size %d", h.blocksize)
	}

	nblocks := h.nbytes / h.blocksize
	leftover := h.nbytes % h.blocksize
	if leftover > 0 {
		nblocks++
	}
	if len(src) < bloscHeaderSize+4*nblocks {
		return nil, fmt.Errorf("blosc: block offsets truncated")
	}

	tmp := make([]byte, h.blocksize)
	for j := 0; j < nblocks; j++ {
		bsize := h.blocksize
		leftoverBlock := j == nblocks-1 && leftover > 0
		if leftoverBlock {
			bsize = leftover
		}
		start := int(binary.LittleEndian.Uint32(src[bloscHeaderSize+4*j:]))
		out := dst[j*h.blocksize : j*h.blocksize+bsize]

		shuffled := h.flags&bloscDoShuffle != 0 && h.typesize > 1
		target := out
		if shuffled {
			target = tmp[:bsize]
		}
		if err := h.decodeBlock(src, start, target, leftoverBlock); err != nil {
			return nil, fmt.Errorf("blosc block %d: %w", j, err)
		}
		if shuffled {
			unshuffle(out, target, h.typesize)
		}
	}
	return dst, nil
}

// decodeBlock fills out from the streams starting at offset start. A block
// is split into typesize streams unless the frame says otherwise.
func (h bloscHeader) decodeBlock(src []byte, start int, out []byte, leftoverBlock bool) error {
	nsplits := 1
	if h.flags&bloscDontSplit == 0 && h.typesize <= bloscMaxSplits &&
		len(out)/h.typesize >= bloscMinBlockSize && !leftoverBlock {
		nsplits = h.typesize
	}
	neblock := len(out) / nsplits

	pos := start
	for s := 0; s < nsplits; s++ {
		if pos+4 > len(src) {
			return fmt.Errorf("stream header out of range")
		}
		cbytes := int(int32(binary.LittleEndian.Uint32(src[pos:])))
		pos += 4
		if cbytes < 0 || pos+cbytes > len(src) {
			return fmt.Errorf("stream of %d bytes out of range", cbytes)
		}
		stream := src[pos : pos+cbytes]
		pos += cbytes

		part := out[s*neblock : (s+1)*neblock]
		if cbytes == neblock {
			copy(part, stream)
			continue
		}
		decoded, err := h.decodeStream(stream, neblock)
		if err != nil {
			return err
		}
		copy(part, decoded)
	}
	return nil
}

func (h bloscHeader) decodeStream(stream []byte, size int) ([]byte, error) {
	switch h.codec() {
	case bloscLZ4:
		return lz4BlockDecode(stream, size)
	case bloscSnappy:
		dst, err := snappy.Decode(nil, stream)
		if err != nil {
			return nil, fmt.Errorf("snappy: %w", err)
		}
		return dst, checkSize("snappy", len(dst), size)
	case bloscZlib:
		r, err := zlib.NewReader(bytes.NewReader(stream))
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		defer r.Close()
		return readFull("zlib", r, size)
	case bloscZstd:
		return zstdDecode(stream, size)
	case bloscBloscLZ:
		return nil, fmt.Errorf("%w: blosclz", ErrUnsupportedCodec)
	}
	return nil, fmt.Errorf("%w: blosc inner codec %d", ErrUnsupportedCodec, h.codec())
}

// unshuffle reverses blosc's byte shuffle: src holds byte 0 of every
// element, then byte 1 of every element, and so on. Trailing bytes that do
// not fill an element are stored as is.
func unshuffle(dst, src []byte, typesize int) {
	n := len(src) / typesize
	for i := 0; i < n; i++ {
		for b := 0; b < typesize; b++ {
			dst[i*typesize+b] = src[b*n+i]
		}
	}
	copy(dst[n*typesize:], src[n*typesize:])
}
