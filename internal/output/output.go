package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bryanchriswhite/camdump/internal/capture"
)

// Encoder serializes a post-process frame buffer to an image file format.
// This allows the snapshot format to be swapped:
// - plain-text PPM (the default)
// - BMP / TIFF / PNG / JPEG
type Encoder interface {
	// Encode writes fb to w. fb holds B,G,R,A pixels.
	Encode(w io.Writer, fb *capture.FrameBuffer) error

	// Extension returns the conventional file extension, without the dot
	Extension() string

	// Name returns the format name used in configuration
	Name() string
}

var encoders = map[string]Encoder{}

func register(e Encoder) {
	encoders[e.Name()] = e
}

// ForName returns the encoder registered under name.
func ForName(name string) (Encoder, error) {
	e, ok := encoders[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unsupported snapshot format: %s (use %s)", name, strings.Join(Formats(), ", "))
	}
	return e, nil
}

// Formats lists the supported snapshot format names.
func Formats() []string {
	names := make([]string, 0, len(encoders))
	for n := range encoders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
