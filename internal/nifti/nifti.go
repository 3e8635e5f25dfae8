// Package nifti reads single-file NIfTI-1 volumes (.nii / .nii.gz) just
// far enough to stream voxel intensities: header geometry, datatype,
// scaling slope/intercept. Everything heavier (orientation, spatial
// transforms) stays with the external tools.
package nifti

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const headerSize = 348

// NIfTI-1 datatype codes.
const (
	typeUint8   = 2
	typeInt16   = 4
	typeInt32   = 8
	typeFloat32 = 16
	typeFloat64 = 64
	typeInt8    = 256
	typeUint16  = 512
)

// ErrNotNIfTI is returned for files without a valid NIfTI-1 header.
var ErrNotNIfTI = errors.New("not a NIfTI-1 file")

// Header holds the subset of the NIfTI-1 header the pipeline needs.
type Header struct {
	Dim       [8]int16
	Datatype  int16
	Bitpix    int16
	VoxOffset int64
	SclSlope  float32
	SclInter  float32

	order binary.ByteOrder
}

// Voxels returns the total voxel count implied by the dimension array.
func (h *Header) Voxels() int64 {
	n := int64(1)
	for i := int16(1); i <= h.Dim[0]; i++ {
		d := int64(h.Dim[i])
		if d > 0 {
			n *= d
		}
	}
	return n
}

func parseHeader(buf []byte) (*Header, error) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		if order.Uint32(buf[0:4]) != headerSize {
			continue
		}
		magic := string(buf[344:347])
		if magic != "n+1" {
			// "ni1" (split .hdr/.img pairs) is not produced by any
			// stage tool and is not supported.
			return nil, fmt.Errorf("%w: unsupported magic %q", ErrNotNIfTI, magic)
		}
		h := &Header{order: order}
		for i := range h.Dim {
			h.Dim[i] = int16(order.Uint16(buf[40+2*i : 42+2*i]))
		}
		h.Datatype = int16(order.Uint16(buf[70:72]))
		h.Bitpix = int16(order.Uint16(buf[72:74]))
		h.VoxOffset = int64(math.Float32frombits(order.Uint32(buf[108:112])))
		h.SclSlope = math.Float32frombits(order.Uint32(buf[112:116]))
		h.SclInter = math.Float32frombits(order.Uint32(buf[116:120]))

		if h.Dim[0] < 1 || h.Dim[0] > 7 {
			return nil, fmt.Errorf("%w: dim[0]=%d out of range", ErrNotNIfTI, h.Dim[0])
		}
		if h.VoxOffset < headerSize {
			h.VoxOffset = headerSize + 4 // default single-file offset
		}
		return h, nil
	}
	return nil, ErrNotNIfTI
}

// Stream opens the volume at path and calls fn once per voxel with the
// scaled intensity, in on-disk order. Returns the voxel count.
func Stream(path string, fn func(v float64)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	br := bufio.NewReaderSize(r, 1<<16)

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(br, buf); err != nil {
		return 0, fmt.Errorf("%s: %w", path, ErrNotNIfTI)
	}
	h, err := parseHeader(buf)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	if _, err := io.CopyN(io.Discard, br, h.VoxOffset-headerSize); err != nil {
		return 0, fmt.Errorf("%s: truncated before voxel data: %w", path, err)
	}

	elem := int(h.Bitpix) / 8
	if want := elemSize(h.Datatype); want == 0 {
		return 0, fmt.Errorf("%s: unsupported datatype %d", path, h.Datatype)
	} else if elem != want {
		return 0, fmt.Errorf("%s: bitpix %d does not match datatype %d", path, h.Bitpix, h.Datatype)
	}

	slope := float64(h.SclSlope)
	inter := float64(h.SclInter)
	scaled := slope != 0 && !(slope == 1 && inter == 0)

	total := h.Voxels()
	chunk := make([]byte, 4096*elem)
	var read int64
	for read < total {
		n := int64(len(chunk)) / int64(elem)
		if remaining := total - read; remaining < n {
			n = remaining
		}
		b := chunk[:n*int64(elem)]
		if _, err := io.ReadFull(br, b); err != nil {
			return read, fmt.Errorf("%s: voxel data truncated at %d/%d: %w", path, read, total, err)
		}
		for i := int64(0); i < n; i++ {
			v := decode(h, b[i*int64(elem):])
			if scaled {
				v = slope*v + inter
			}
			fn(v)
		}
		read += n
	}
	return read, nil
}

func elemSize(datatype int16) int {
	switch datatype {
	case typeUint8, typeInt8:
		return 1
	case typeInt16, typeUint16:
		return 2
	case typeInt32, typeFloat32:
		return 4
	case typeFloat64:
		return 8
	}
	return 0
}

func decode(h *Header, b []byte) float64 {
	switch h.Datatype {
	case typeUint8:
		return float64(b[0])
	case typeInt8:
		return float64(int8(b[0]))
	case typeInt16:
		return float64(int16(h.order.Uint16(b)))
	case typeUint16:
		return float64(h.order.Uint16(b))
	case typeInt32:
		return float64(int32(h.order.Uint32(b)))
	case typeFloat32:
		return float64(math.Float32frombits(h.order.Uint32(b)))
	case typeFloat64:
		return math.Float64frombits(h.order.Uint64(b))
	}
	return 0
}
