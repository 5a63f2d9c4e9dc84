package capture

import (
	"fmt"
	"image"
)

// BytesPerUnit is the width of one raw buffer pixel unit.
const BytesPerUnit = 4

// RawBuffer receives frames from a backend in the backend's native format.
// It holds width*height pixel units of BytesPerUnit bytes each, which is
// enough for any uncompressed format up to 32 bits per pixel and for
// compressed frames of the same dimensions.
type RawBuffer struct {
	width  int
	height int
	data   []byte

	// Set by the backend on each published frame.
	n      int
	frameW int
	frameH int
}

// NewRawBuffer allocates a zeroed raw buffer for width x height pixels.
func NewRawBuffer(width, height int) (*RawBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raw buffer size %dx%d", width, height)
	}
	return &RawBuffer{
		width:  width,
		height: height,
		data:   make([]byte, width*height*BytesPerUnit),
	}, nil
}

// PixelUnits returns the number of 4-byte units the buffer holds.
func (b *RawBuffer) PixelUnits() int { return b.width * b.height }

// Cap returns the buffer size in bytes.
func (b *RawBuffer) Cap() int { return len(b.data) }

// Size returns the dimensions the buffer was allocated for.
func (b *RawBuffer) Size() (width, height int) { return b.width, b.height }

// Data exposes the whole backing array for a backend to write into.
func (b *RawBuffer) Data() []byte { return b.data }

// Publish records that the first n bytes of Data hold a complete frame of
// frameW x frameH source pixels.
func (b *RawBuffer) Publish(n, frameW, frameH int) error {
	if n < 0 || n > len(b.data) {
		return fmt.Errorf("publish %d bytes into %d byte raw buffer", n, len(b.data))
	}
	b.n, b.frameW, b.frameH = n, frameW, frameH
	return nil
}

// Fill copies frame into the buffer and publishes it.
func (b *RawBuffer) Fill(frame []byte, frameW, frameH int) error {
	if len(frame) > len(b.data) {
		return fmt.Errorf("frame of %d bytes exceeds %d byte raw buffer", len(frame), len(b.data))
	}
	n := copy(b.data, frame)
	return b.Publish(n, frameW, frameH)
}

// Frame returns the bytes of the last published frame, or nil before the first.
func (b *RawBuffer) Frame() []byte {
	if b.n == 0 {
		return nil
	}
	return b.data[:b.n]
}

// FrameSize returns the source dimensions of the last published frame,
// falling back to the allocated size.
func (b *RawBuffer) FrameSize() (width, height int) {
	if b.frameW <= 0 || b.frameH <= 0 {
		return b.width, b.height
	}
	return b.frameW, b.frameH
}

// FrameBuffer is the post-process buffer: width*height pixels of B,G,R,A.
type FrameBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewFrameBuffer allocates a zeroed post-process buffer.
func NewFrameBuffer(width, height int) (*FrameBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame buffer size %dx%d", width, height)
	}
	return &FrameBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}, nil
}

// Len returns the buffer size in bytes.
func (f *FrameBuffer) Len() int { return len(f.Pix) }

// At returns the stored channels of pixel (x, y) in storage order.
func (f *FrameBuffer) At(x, y int) (b, g, r, a byte) {
	i := (y*f.Width + x) * 4
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]
}

// RGBA returns a copy of the buffer in image.RGBA channel order.
func (f *FrameBuffer) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i+3 < len(f.Pix); i += 4 {
		img.Pix[i+0] = f.Pix[i+2]
		img.Pix[i+1] = f.Pix[i+1]
		img.Pix[i+2] = f.Pix[i+0]
		img.Pix[i+3] = f.Pix[i+3]
	}
	return img
}
