package capture

import (
	"strings"

	"github.com/bryanchriswhite/camdump/internal/logger"
)

// BorrowedString is a byte string owned by a backend and lent to the caller.
// The bytes are valid until Release or until the device is closed.
type BorrowedString struct {
	data     []byte
	release  func()
	released bool
}

// Borrow wraps backend-owned bytes. release returns them to the backend and
// may be nil when nothing needs freeing.
func Borrow(data []byte, release func()) *BorrowedString {
	return &BorrowedString{data: data, release: release}
}

// Len returns the length in bytes; zero means no value is available.
func (s *BorrowedString) Len() int {
	if s == nil {
		return 0
	}
	return len(s.data)
}

// Bytes returns the borrowed bytes without copying.
func (s *BorrowedString) Bytes() []byte {
	if s == nil || s.released {
		return nil
	}
	return s.data
}

// Release hands the string back to the backend. Only the first call reaches
// the backend.
func (s *BorrowedString) Release() error {
	if s == nil {
		return nil
	}
	if s.released {
		return ErrAlreadyReleased
	}
	s.released = true
	s.data = nil
	if s.release != nil {
		s.release()
	}
	return nil
}

// CopyDeviceName borrows the device name, copies it into a Go string and
// releases the borrow. ok is false when the backend has no name to offer.
func CopyDeviceName(b Backend, h Handle) (name string, ok bool) {
	log := logger.WithComponent("capture")

	s, err := b.DeviceName(h)
	if err != nil {
		log.Debug().Err(err).Str("backend", b.Name()).Msg("Device name unavailable")
		return "", false
	}
	defer func() {
		if err := s.Release(); err != nil {
			log.Error().Err(err).Str("backend", b.Name()).Msg("Failed to release device name")
		}
	}()

	if s.Len() == 0 {
		return "", false
	}
	// Invalid UTF-8 sequences decode to U+FFFD.
	return strings.ToValidUTF8(string(s.Bytes()[:s.Len()]), "\uFFFD"), true
}
