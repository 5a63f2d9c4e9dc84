// Package capturetest provides a scripted capture backend that records every
// call made against it.
package capturetest

import (
	"fmt"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/pixel"
)

// Backend is a scripted capture.Backend.
type Backend struct {
	// OpenErr makes Open fail.
	OpenErr error
	// Format is reported by Open.
	Format pixel.Format
	// DeviceNameBytes is lent by DeviceName; empty means unavailable.
	DeviceNameBytes []byte
	// DeviceNameErr makes DeviceName fail.
	DeviceNameErr error
	// Polls scripts PollFrame results. Once exhausted PollFrame calls
	// OnExhausted (if set) and returns false.
	Polls       []bool
	OnExhausted func()
	// ConvertErr is returned by every Convert.
	ConvertErr error
	// CloseErr is returned by Close.
	CloseErr error

	Calls    []string
	Releases int
	Frames   int

	raw    *capture.RawBuffer
	handle capture.Handle
	polled int
}

var _ capture.Backend = (*Backend)(nil)

func (b *Backend) Name() string    { return "fake" }
func (b *Backend) Available() bool { return true }

// Count returns how many times the named method was called.
func (b *Backend) Count(method string) int {
	n := 0
	for _, c := range b.Calls {
		if c == method {
			n++
		}
	}
	return n
}

func (b *Backend) Open(req capture.OpenRequest, raw *capture.RawBuffer) (capture.Handle, pixel.Format, error) {
	b.Calls = append(b.Calls, "Open")
	if b.OpenErr != nil {
		return capture.Handle{}, 0, b.OpenErr
	}
	b.raw = raw
	b.handle = capture.NewHandle(0xcafe)
	return b.handle, b.Format, nil
}

func (b *Backend) DeviceName(h capture.Handle) (*capture.BorrowedString, error) {
	b.Calls = append(b.Calls, "DeviceName")
	if err := b.check(h); err != nil {
		return nil, err
	}
	if b.DeviceNameErr != nil {
		return nil, b.DeviceNameErr
	}
	if len(b.DeviceNameBytes) == 0 {
		return capture.Borrow(nil, nil), nil
	}
	return capture.Borrow(b.DeviceNameBytes, func() { b.Releases++ }), nil
}

func (b *Backend) PollFrame(h capture.Handle) bool {
	b.Calls = append(b.Calls, "PollFrame")
	if b.check(h) != nil {
		return false
	}
	if b.polled >= len(b.Polls) {
		if b.OnExhausted != nil {
			b.OnExhausted()
		}
		return false
	}
	ok := b.Polls[b.polled]
	b.polled++
	if ok {
		b.Frames++
		data := b.raw.Data()
		for i := range data {
			data[i] = byte(b.Frames)
		}
		_ = b.raw.Publish(len(data), 0, 0)
	}
	return ok
}

func (b *Backend) Convert(dst *capture.FrameBuffer, src *capture.RawBuffer, width, height int, f pixel.Format) error {
	b.Calls = append(b.Calls, "Convert")
	copy(dst.Pix, src.Frame())
	return b.ConvertErr
}

func (b *Backend) Close(h capture.Handle) error {
	b.Calls = append(b.Calls, "Close")
	if err := b.check(h); err != nil {
		return err
	}
	b.handle = capture.Handle{}
	return b.CloseErr
}

func (b *Backend) check(h capture.Handle) error {
	if !h.Valid() || h != b.handle {
		return fmt.Errorf("%w: %s", capture.ErrInvalidHandle, h)
	}
	return nil
}
