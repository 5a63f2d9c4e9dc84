package capture

import (
	"errors"

	"github.com/bryanchriswhite/camdump/internal/pixel"
)

var (
	// ErrOpenFailed is returned by Open when the device cannot be initialised.
	ErrOpenFailed = errors.New("cannot open capture device")
	// ErrInvalidHandle is returned when a handle is zero, closed, or was minted by another backend.
	ErrInvalidHandle = errors.New("invalid device handle")
	// ErrAlreadyReleased is returned by a second Release of a borrowed string.
	ErrAlreadyReleased = errors.New("borrowed string already released")
	// ErrUnknownBackend is returned by Select for names nobody registered.
	ErrUnknownBackend = errors.New("unknown capture backend")
	// ErrNoBackend is returned by Select("auto") when nothing is available.
	ErrNoBackend = errors.New("no capture backend available")
)

// OpenRequest carries the capture parameters handed to Backend.Open
type OpenRequest struct {
	Index  int
	Width  int
	Height int
	FPS    float32
}

// Backend is a capture device driver. A backend owns its device handles and
// writes into buffers the caller allocates; it never frees or reallocates
// them. All methods are called from a single goroutine.
type Backend interface {
	// Name returns a short identifier used in configuration
	Name() string

	// Available reports whether the backend can work in this environment
	Available() bool

	// Open initialises device req.Index. Frames are written into raw, which
	// must stay valid until Close. On failure no handle is allocated.
	Open(req OpenRequest, raw *RawBuffer) (Handle, pixel.Format, error)

	// DeviceName lends the device name. A zero-length result means no name
	// is available. The caller must Release the string exactly once.
	DeviceName(h Handle) (*BorrowedString, error)

	// PollFrame reports whether a new frame has been written into the raw
	// buffer. It never blocks waiting for a frame and never publishes a
	// partial one.
	PollFrame(h Handle) bool

	// Convert fully overwrites dst from src. It never reads dst.
	Convert(dst *FrameBuffer, src *RawBuffer, width, height int, f pixel.Format) error

	// Close invalidates the handle
	Close(h Handle) error
}

// DeviceInfo describes an enumerable capture device
type DeviceInfo struct {
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Enumerator is implemented by backends that can list their devices
type Enumerator interface {
	Devices() ([]DeviceInfo, error)
}
