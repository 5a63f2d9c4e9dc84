package capture

import (
	"fmt"

	"github.com/bryanchriswhite/camdump/internal/pixel"
)

// Missing stands in for a backend that could not be selected. Every Open
// fails with ErrOpenFailed wrapping err, so callers take their normal device
// failure path.
func Missing(name string, err error) Backend {
	return missing{name: name, err: err}
}

type missing struct {
	name string
	err  error
}

func (m missing) Name() string    { return m.name }
func (m missing) Available() bool { return false }

func (m missing) Open(OpenRequest, *RawBuffer) (Handle, pixel.Format, error) {
	return Handle{}, 0, fmt.Errorf("%w: %v", ErrOpenFailed, m.err)
}

func (m missing) DeviceName(h Handle) (*BorrowedString, error) {
	return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
}

func (m missing) PollFrame(Handle) bool { return false }

func (m missing) Convert(*FrameBuffer, *RawBuffer, int, int, pixel.Format) error {
	return ErrInvalidHandle
}

func (m missing) Close(h Handle) error {
	return fmt.Errorf("%w: %s", ErrInvalidHandle, h)
}
