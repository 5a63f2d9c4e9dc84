package pixel

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/nfnt/resize"
)

// Convert decodes a raw frame of srcW x srcH pixels in format f and writes it
// into dst as dstW x dstH BGRA pixels with opaque alpha. The source is
// rescaled when its dimensions differ from the destination. dst is fully
// overwritten; on error it is left zeroed.
func Convert(dst, src []byte, srcW, srcH, dstW, dstH int, f Format) error {
	need := dstW * dstH * 4
	if len(dst) < need {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrBufferTooSmall, len(dst), need)
	}
	dst = dst[:need]
	if srcW <= 0 || srcH <= 0 {
		srcW, srcH = dstW, dstH
	}

	// Fast path: BGRA of the right size needs no intermediate image.
	if f == FormatBGRA && srcW == dstW && srcH == dstH {
		if len(src) < need {
			clear(dst)
			return fmt.Errorf("%w: %d of %d bytes", ErrShortFrame, len(src), need)
		}
		copy(dst, src[:need])
		for i := 3; i < need; i += 4 {
			dst[i] = 0xff
		}
		return nil
	}

	img, err := Decode(src, srcW, srcH, f)
	if err != nil {
		clear(dst)
		return err
	}

	b := img.Bounds()
	if b.Dx() != dstW || b.Dy() != dstH {
		img = resize.Resize(uint(dstW), uint(dstH), img, resize.Bilinear)
	}

	writeBGRA(dst, img)
	return nil
}

// Decode interprets src as a frame in format f and returns it as an image.
func Decode(src []byte, width, height int, f Format) (image.Image, error) {
	if n := f.FrameSize(width, height); n > 0 && len(src) < n {
		return nil, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrShortFrame, f, n, len(src))
	}

	switch f {
	case FormatBGRA:
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		for i := 0; i < width*height*4; i += 4 {
			img.Pix[i+0] = src[i+2]
			img.Pix[i+1] = src[i+1]
			img.Pix[i+2] = src[i+0]
			img.Pix[i+3] = 0xff
		}
		return img, nil

	case FormatRGB24, FormatBGR24:
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		r, b := 0, 2
		if f == FormatBGR24 {
			r, b = 2, 0
		}
		for p := 0; p < width*height; p++ {
			s, d := p*3, p*4
			img.Pix[d+0] = src[s+r]
			img.Pix[d+1] = src[s+1]
			img.Pix[d+2] = src[s+b]
			img.Pix[d+3] = 0xff
		}
		return img, nil

	case FormatYUYV:
		return fromYUYV(src, width, height), nil

	case FormatNV12:
		return fromNV12(src, width, height), nil

	case FormatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("decode mjpeg frame: %w", err)
		}
		return img, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// writeBGRA stores img into dst as tightly packed BGRA rows.
func writeBGRA(dst []byte, img image.Image) {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	n := b.Dx() * b.Dy() * 4
	for i := 0; i < n && i+3 < len(dst); i += 4 {
		dst[i+0] = rgba.Pix[i+2]
		dst[i+1] = rgba.Pix[i+1]
		dst[i+2] = rgba.Pix[i+0]
		dst[i+3] = 0xff
	}
}

func fromYUYV(src []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	stride := yuyvStride(width)
	for y := 0; y < height; y++ {
		row := src[y*stride : y*stride+stride]
		for x := 0; x < width; x += 2 {
			i := x * 2
			y0, u, y1, v := row[i], row[i+1], row[i+2], row[i+3]

			r, g, b := color.YCbCrToRGB(y0, u, v)
			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, g, b, 0xff

			if x+1 < width {
				r, g, b = color.YCbCrToRGB(y1, u, v)
				img.Pix[o+4], img.Pix[o+5], img.Pix[o+6], img.Pix[o+7] = r, g, b, 0xff
			}
		}
	}
	return img
}

func fromNV12(src []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	uv := src[width*height:]
	cw := (width + 1) / 2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := ((y/2)*cw + x/2) * 2
			r, g, b := color.YCbCrToRGB(src[y*width+x], uv[c], uv[c+1])
			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, g, b, 0xff
		}
	}
	return img
}

// yuyvStride is the row size of a packed 4:2:2 frame; odd widths carry a
// padding pixel so every row holds whole Y0 U Y1 V groups.
func yuyvStride(width int) int {
	return (width + 1) / 2 * 4
}
