package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/bryanchriswhite/camdump/internal/capture"
)

func TestFieldsExpand(t *testing.T) {
	f := Fields{"frame": "10", "device": "HD Webcam C270"}
	got := f.Expand("{device} #{frame} {unknown}")
	if want := "HD Webcam C270 #10 {unknown}"; got != want {
		t.Errorf("Expand = %q, want %q", got, want)
	}
}

func TestStampDrawsInsideAnchorBox(t *testing.T) {
	fb, err := capture.NewFrameBuffer(80, 40)
	if err != nil {
		t.Fatal(err)
	}
	c := NewCaption("frame 10")
	c.Background = nil
	c.Stamp(fb)

	lit := func(y0, y1 int) int {
		n := 0
		for y := y0; y < y1; y++ {
			for x := 0; x < fb.Width; x++ {
				if _, g, _, _ := fb.At(x, y); g > 128 {
					n++
				}
			}
		}
		return n
	}
	if n := lit(fb.Height-21, fb.Height); n == 0 {
		t.Error("no caption pixels in the bottom band")
	}
	if n := lit(0, fb.Height-21); n != 0 {
		t.Errorf("%d caption pixels above the bottom band", n)
	}
	// "frame 10" is 8 glyphs of 7px plus 4px padding each side.
	boxW := 8*7 + 8
	for x := 0; x < fb.Width; x++ {
		want := uint8(255)
		if x >= boxW {
			want = 0
		}
		if _, _, _, a := fb.At(x, fb.Height-1); a != want {
			t.Fatalf("alpha at (%d, %d) = %d, want %d", x, fb.Height-1, a, want)
		}
	}
	if _, _, _, a := fb.At(0, 0); a != 0 {
		t.Errorf("alpha above the caption = %d, want 0", a)
	}
}

func TestRenderReturnsCaptionBox(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	c := NewCaption("ab")
	got := c.Render(img)
	want := image.Rect(0, 50-(13+8), 2*7+8, 50)
	if got != want {
		t.Errorf("Render box = %v, want %v", got, want)
	}

	c.Anchor = TopLeft
	if got := c.Render(img); got.Min != (image.Point{}) {
		t.Errorf("TopLeft box = %v, want origin", got)
	}
	if got := NewCaption("").Render(img); !got.Empty() {
		t.Errorf("empty caption box = %v, want empty", got)
	}
}

func TestEmptyCaptionLeavesFrame(t *testing.T) {
	fb, _ := capture.NewFrameBuffer(8, 8)
	for i := range fb.Pix {
		fb.Pix[i] = 7
	}
	NewCaption("").Stamp(fb)
	for i, v := range fb.Pix {
		if v != 7 {
			t.Fatalf("byte %d = %d, want 7", i, v)
		}
	}
}

func TestBlendClipsAndMixes(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			dst.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
		}
	}
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			src.SetRGBA(x, y, color.RGBA{200, 100, 50, 255})
		}
	}

	// Only (1,1) of dst overlaps src placed at (1,1).
	Blend(dst, src, 1, 1, 0.5)

	if got := dst.RGBAAt(0, 0); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("untouched pixel = %v", got)
	}
	if got, want := dst.RGBAAt(1, 1), (color.RGBA{100, 50, 25, 255}); got != want {
		t.Errorf("blended pixel = %v, want %v", got, want)
	}
}
