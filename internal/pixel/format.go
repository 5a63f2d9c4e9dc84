// Package pixel holds the pixel format codes exchanged with capture
// backends and the conversions from those formats to 32-bit BGRA.
package pixel

import (
	"errors"
	"strconv"
)

// Format is an opaque pixel format code reported by a capture backend when a
// device is opened. By convention it is a V4L2 FourCC.
type Format uint32

const (
	FormatUnknown Format = 0
	// FormatBGRA is 32-bit B,G,R,A (or B,G,R,X) per pixel.
	FormatBGRA Format = 'B' | 'G'<<8 | 'R'<<16 | '4'<<24
	FormatRGB24 Format = 'R' | 'G'<<8 | 'B'<<16 | '3'<<24
	FormatBGR24 Format = 'B' | 'G'<<8 | 'R'<<16 | '3'<<24
	// FormatYUYV is packed 4:2:2, Y0 U Y1 V.
	FormatYUYV Format = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
	// FormatNV12 is a full Y plane followed by an interleaved U/V plane at half resolution.
	FormatNV12 Format = 'N' | 'V'<<8 | '1'<<16 | '2'<<24
	FormatMJPEG Format = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
)

var (
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	ErrBufferTooSmall    = errors.New("buffer too small")
	ErrShortFrame        = errors.New("frame shorter than expected")
)

// FourCC builds a Format from its four characters.
func FourCC(a, b, c, d byte) Format {
	return Format(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

// String renders the FourCC when it is printable and the decimal value otherwise.
func (f Format) String() string {
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return strconv.FormatUint(uint64(f), 10)
		}
	}
	return string(b[:])
}

// BytesPerPixel returns the packed size of one pixel, or 0 for compressed or
// planar formats whose size is not a whole number of bytes per pixel.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatBGRA:
		return 4
	case FormatRGB24, FormatBGR24:
		return 3
	case FormatYUYV:
		return 2
	default:
		return 0
	}
}

// FrameSize returns the number of bytes an uncompressed frame of the given
// dimensions occupies, or 0 when it cannot be known in advance.
func (f Format) FrameSize(width, height int) int {
	switch f {
	case FormatNV12:
		return width*height + 2*((width+1)/2)*((height+1)/2)
	case FormatYUYV:
		return yuyvStride(width) * height
	}
	return f.BytesPerPixel() * width * height
}
