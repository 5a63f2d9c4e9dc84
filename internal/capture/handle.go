package capture

import "fmt"

// Handle is an opaque reference to an open device. Only the backend that
// minted it can map it back to device state.
type Handle struct {
	id uintptr
}

// NewHandle wraps a backend-private identifier. id must be non-zero.
func NewHandle(id uintptr) Handle {
	return Handle{id: id}
}

// ID returns the backend-private identifier.
func (h Handle) ID() uintptr { return h.id }

// Valid reports whether the handle was minted by a backend.
func (h Handle) Valid() bool { return h.id != 0 }

func (h Handle) String() string {
	if !h.Valid() {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%#x)", h.id)
}
