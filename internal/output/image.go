package output

import (
	"image/jpeg"
	"image/png"
	"io"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func init() {
	register(BMP{})
	register(TIFF{})
	register(PNG{})
	register(JPEG{Quality: 85})
}

// BMP writes Windows bitmaps
type BMP struct{}

func (BMP) Name() string      { return "bmp" }
func (BMP) Extension() string { return "bmp" }

func (BMP) Encode(w io.Writer, fb *capture.FrameBuffer) error {
	return bmp.Encode(w, fb.RGBA())
}

// TIFF writes deflate-compressed TIFF images
type TIFF struct{}

func (TIFF) Name() string      { return "tiff" }
func (TIFF) Extension() string { return "tiff" }

func (TIFF) Encode(w io.Writer, fb *capture.FrameBuffer) error {
	return tiff.Encode(w, fb.RGBA(), &tiff.Options{Compression: tiff.Deflate})
}

// PNG writes PNG images
type PNG struct{}

func (PNG) Name() string      { return "png" }
func (PNG) Extension() string { return "png" }

func (PNG) Encode(w io.Writer, fb *capture.FrameBuffer) error {
	return png.Encode(w, fb.RGBA())
}

// JPEG writes baseline JPEG at a fixed quality
type JPEG struct {
	Quality int
}

func (JPEG) Name() string      { return "jpeg" }
func (JPEG) Extension() string { return "jpg" }

func (e JPEG) Encode(w io.Writer, fb *capture.FrameBuffer) error {
	return jpeg.Encode(w, fb.RGBA(), &jpeg.Options{Quality: e.Quality})
}
