package output

import (
	"bytes"
	"image"
	"image/png"
	"strconv"
	"strings"
	"testing"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/spf13/afero"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func frame(t *testing.T, w, h int, pix []byte) *capture.FrameBuffer {
	t.Helper()
	fb, err := capture.NewFrameBuffer(w, h)
	if err != nil {
		t.Fatal(err)
	}
	copy(fb.Pix, pix)
	return fb
}

func TestPPMSwapsBGRAndDropsAlpha(t *testing.T) {
	fb := frame(t, 2, 1, []byte{
		0x00, 0x00, 0xFF, 0xFF, // B=0 G=0 R=255
		0xFF, 0x00, 0x00, 0xFF, // B=255 G=0 R=0
	})

	var buf bytes.Buffer
	if err := (PPM{}).Encode(&buf, fb); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := "P3\n2 1\n255\n255 0 0 0 0 255 \n"
	if got := buf.String(); got != want {
		t.Errorf("PPM =\n%q\nwant\n%q", got, want)
	}
}

func TestPPMRowsAndAlpha(t *testing.T) {
	// Alpha bytes carry a sentinel that must never appear in the output.
	const w, h = 3, 2
	pix := make([]byte, w*h*4)
	for p := 0; p < w*h; p++ {
		pix[p*4+0] = byte(p)      // B
		pix[p*4+1] = byte(p + 10) // G
		pix[p*4+2] = byte(p + 20) // R
		pix[p*4+3] = 199          // A
	}
	fb := frame(t, w, h, pix)

	var buf bytes.Buffer
	if err := (PPM{}).Encode(&buf, fb); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	lines := strings.Split(buf.String(), "\n")
	if lines[0] != "P3" || lines[1] != "3 2" || lines[2] != "255" {
		t.Fatalf("header = %q", lines[:3])
	}
	rows := lines[3 : 3+h]
	for j, row := range rows {
		fields := strings.Fields(row)
		if len(fields) != w*3 {
			t.Fatalf("row %d has %d values, want %d", j, len(fields), w*3)
		}
		for i := 0; i < w; i++ {
			p := j*w + i
			gotR, gotG, gotB := fields[i*3], fields[i*3+1], fields[i*3+2]
			wantR, wantG, wantB := strconv.Itoa(p+20), strconv.Itoa(p+10), strconv.Itoa(p)
			if gotR != wantR || gotG != wantG || gotB != wantB {
				t.Errorf("pixel (%d,%d) = %s %s %s, want %s %s %s", j, i, gotR, gotG, gotB, wantR, wantG, wantB)
			}
		}
		if strings.Contains(row, "199") {
			t.Errorf("row %d leaks alpha: %q", j, row)
		}
	}
}

func TestImageEncodersRoundTrip(t *testing.T) {
	fb := frame(t, 2, 1, []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0xFF})

	decoders := map[string]func(*bytes.Reader) (image.Image, error){
		"bmp":  func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) },
		"tiff": func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) },
		"png":  func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) },
	}
	for name, decode := range decoders {
		t.Run(name, func(t *testing.T) {
			enc, err := ForName(name)
			if err != nil {
				t.Fatal(err)
			}
			var buf bytes.Buffer
			if err := enc.Encode(&buf, fb); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			img, err := decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			r, g, b, _ := img.At(0, 0).RGBA()
			if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
				t.Errorf("pixel 0 = %d,%d,%d, want red", r>>8, g>>8, b>>8)
			}
			r, g, b, _ = img.At(1, 0).RGBA()
			if r>>8 != 0 || g>>8 != 0 || b>>8 != 255 {
				t.Errorf("pixel 1 = %d,%d,%d, want blue", r>>8, g>>8, b>>8)
			}
		})
	}
}

func TestForName(t *testing.T) {
	for _, name := range []string{"ppm", "PPM", " bmp ", "tiff", "png", "jpeg"} {
		if _, err := ForName(name); err != nil {
			t.Errorf("ForName(%q): %v", name, err)
		}
	}
	if _, err := ForName("gif"); err == nil {
		t.Error("ForName(gif) succeeded")
	}
}

func TestSave(t *testing.T) {
	fs := afero.NewMemMapFs()
	fb := frame(t, 1, 1, []byte{3, 2, 1, 0})

	if err := afero.WriteFile(fs, "out/image.ppm", []byte("stale content that is longer"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Save(fs, "out/image.ppm", PPM{}, fb); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := afero.ReadFile(fs, "out/image.ppm")
	if err != nil {
		t.Fatal(err)
	}
	if want := "P3\n1 1\n255\n1 2 3 \n"; string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}
