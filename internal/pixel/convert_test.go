package pixel

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestFormatString(t *testing.T) {
	tests := []struct {
		f    Format
		want string
	}{
		{FormatBGRA, "BGR4"},
		{FormatYUYV, "YUYV"},
		{FormatMJPEG, "MJPG"},
		{FourCC('N', 'V', '1', '2'), "NV12"},
		{Format(22), "22"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("Format(%d).String() = %q, want %q", uint32(tt.f), got, tt.want)
		}
	}
}

func TestConvertBGRAForcesOpaqueAlpha(t *testing.T) {
	src := []byte{1, 2, 3, 0, 4, 5, 6, 7}
	dst := make([]byte, 8)

	if err := Convert(dst, src, 2, 1, 2, 1, FormatBGRA); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := []byte{1, 2, 3, 255, 4, 5, 6, 255}
	if !bytes.Equal(dst, want) {
		t.Errorf("dst = %v, want %v", dst, want)
	}
}

func TestConvertRGB24(t *testing.T) {
	src := []byte{10, 20, 30, 40, 50, 60}
	dst := make([]byte, 8)

	if err := Convert(dst, src, 2, 1, 2, 1, FormatRGB24); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := []byte{30, 20, 10, 255, 60, 50, 40, 255}
	if !bytes.Equal(dst, want) {
		t.Errorf("dst = %v, want %v", dst, want)
	}
}

func TestConvertBGR24(t *testing.T) {
	src := []byte{10, 20, 30}
	dst := make([]byte, 4)

	if err := Convert(dst, src, 1, 1, 1, 1, FormatBGR24); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := []byte{10, 20, 30, 255}
	if !bytes.Equal(dst, want) {
		t.Errorf("dst = %v, want %v", dst, want)
	}
}

func TestConvertYUYV(t *testing.T) {
	// One black and one white pixel sharing neutral chroma.
	src := []byte{0, 128, 255, 128}
	dst := make([]byte, 8)

	if err := Convert(dst, src, 2, 1, 2, 1, FormatYUYV); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := []byte{0, 0, 0, 255, 255, 255, 255, 255}
	if !bytes.Equal(dst, want) {
		t.Errorf("dst = %v, want %v", dst, want)
	}
}

func TestConvertNV12(t *testing.T) {
	// 2x2 white luma, one neutral chroma sample.
	src := []byte{255, 255, 255, 255, 128, 128}
	dst := make([]byte, 16)

	if err := Convert(dst, src, 2, 2, 2, 2, FormatNV12); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for i, v := range dst {
		if v != 255 {
			t.Fatalf("dst[%d] = %d, want 255", i, v)
		}
	}
}

func TestConvertMJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 255, 255, 255
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}

	dst := make([]byte, 8*8*4)
	if err := Convert(dst, buf.Bytes(), 8, 8, 8, 8, FormatMJPEG); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for i := 0; i < len(dst); i += 4 {
		if dst[i] < 250 || dst[i+1] < 250 || dst[i+2] < 250 || dst[i+3] != 255 {
			t.Fatalf("pixel %d = %v, want near white", i/4, dst[i:i+4])
		}
	}
}

func TestConvertRescales(t *testing.T) {
	// A uniform 4x4 red frame scaled down to 2x2 stays red.
	src := make([]byte, 4*4*4)
	for i := 0; i < len(src); i += 4 {
		src[i], src[i+1], src[i+2], src[i+3] = 0, 0, 255, 255
	}
	dst := make([]byte, 2*2*4)

	if err := Convert(dst, src, 4, 4, 2, 2, FormatBGRA); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for i := 0; i < len(dst); i += 4 {
		got := color.RGBA{R: dst[i+2], G: dst[i+1], B: dst[i], A: dst[i+3]}
		if got != (color.RGBA{R: 255, A: 255}) {
			t.Fatalf("pixel %d = %v, want opaque red", i/4, got)
		}
	}
}

func TestConvertErrors(t *testing.T) {
	t.Run("unsupported format zeroes dst", func(t *testing.T) {
		dst := []byte{9, 9, 9, 9}
		err := Convert(dst, []byte{1, 2, 3, 4}, 1, 1, 1, 1, FourCC('H', '2', '6', '4'))
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
		}
		if !bytes.Equal(dst, make([]byte, 4)) {
			t.Errorf("dst = %v, want zeroed", dst)
		}
	})

	t.Run("short destination", func(t *testing.T) {
		err := Convert(make([]byte, 3), make([]byte, 4), 1, 1, 1, 1, FormatBGRA)
		if !errors.Is(err, ErrBufferTooSmall) {
			t.Fatalf("err = %v, want ErrBufferTooSmall", err)
		}
	})

	t.Run("short frame", func(t *testing.T) {
		err := Convert(make([]byte, 16), make([]byte, 4), 2, 2, 2, 2, FormatYUYV)
		if !errors.Is(err, ErrShortFrame) {
			t.Fatalf("err = %v, want ErrShortFrame", err)
		}
	})
}
