// Package overlay stamps text captions onto frames before they are saved.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Anchor is the frame corner a caption is placed against
type Anchor int

const (
	BottomLeft Anchor = iota
	TopLeft
)

// Caption is a single line of text with an optional background box
type Caption struct {
	Text       string
	Anchor     Anchor
	Color      color.RGBA
	Background *color.RGBA
	Opacity    float64 // 0.0 to 1.0
	Padding    int
}

// NewCaption returns white text on a translucent black box in the
// bottom-left corner
func NewCaption(text string) *Caption {
	return &Caption{
		Text:       text,
		Anchor:     BottomLeft,
		Color:      color.RGBA{255, 255, 255, 255},
		Background: &color.RGBA{0, 0, 0, 160},
		Opacity:    1.0,
		Padding:    4,
	}
}

// Fields expands {name} placeholders in a caption template
type Fields map[string]string

// Expand replaces every {key} in text with its value. Unknown placeholders
// are left alone.
func (f Fields) Expand(text string) string {
	pairs := make([]string, 0, len(f)*2)
	for k, v := range f {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Render draws the caption onto img and returns the area it covers
func (c *Caption) Render(img *image.RGBA) image.Rectangle {
	if c.Text == "" {
		return image.Rectangle{}
	}

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, c.Text).Ceil()
	textHeight := face.Metrics().Height.Ceil()
	boxW := textWidth + c.Padding*2
	boxH := textHeight + c.Padding*2

	bounds := img.Bounds()
	x := bounds.Min.X
	y := bounds.Min.Y
	if c.Anchor == BottomLeft {
		y = bounds.Max.Y - boxH
	}

	if c.Background != nil {
		box := image.NewRGBA(image.Rect(0, 0, boxW, boxH))
		draw.Draw(box, box.Bounds(), &image.Uniform{*c.Background}, image.Point{}, draw.Src)
		Blend(img, box, x, y, c.Opacity)
	}

	text := image.NewRGBA(image.Rect(0, 0, textWidth, textHeight))
	d := &font.Drawer{
		Dst:  text,
		Src:  image.NewUniform(c.Color),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: face.Metrics().Ascent},
	}
	d.DrawString(c.Text)
	Blend(img, text, x+c.Padding, y+c.Padding, c.Opacity)

	return image.Rect(x, y, x+boxW, y+boxH).Intersect(bounds)
}

// Stamp renders the caption into a BGRA frame buffer in place. Only the
// caption box is written back, with alpha forced to 255.
func (c *Caption) Stamp(fb *capture.FrameBuffer) {
	if c.Text == "" {
		return
	}
	img := fb.RGBA()
	box := c.Render(img)
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			s := img.PixOffset(x, y)
			d := (y*fb.Width + x) * 4
			fb.Pix[d+0] = img.Pix[s+2]
			fb.Pix[d+1] = img.Pix[s+1]
			fb.Pix[d+2] = img.Pix[s+0]
			fb.Pix[d+3] = 0xff
		}
	}
}

// Blend composites src onto dst at (x, y), scaling src alpha by opacity.
// Pixels falling outside dst are clipped.
func Blend(dst *image.RGBA, src *image.RGBA, x, y int, opacity float64) {
	sb := src.Bounds()
	db := dst.Bounds()

	for sy := sb.Min.Y; sy < sb.Max.Y; sy++ {
		dy := y + sy - sb.Min.Y
		if dy < db.Min.Y || dy >= db.Max.Y {
			continue
		}
		for sx := sb.Min.X; sx < sb.Max.X; sx++ {
			dx := x + sx - sb.Min.X
			if dx < db.Min.X || dx >= db.Max.X {
				continue
			}

			s := src.RGBAAt(sx, sy)
			alpha := float64(s.A) / 255 * opacity
			if alpha <= 0 {
				continue
			}

			d := dst.RGBAAt(dx, dy)
			// Both images hold premultiplied colour.
			mix := func(sc, dc uint8) uint8 {
				v := float64(sc)*opacity + float64(dc)*(1-alpha)
				if v > 255 {
					v = 255
				}
				return uint8(v + 0.5)
			}
			dst.SetRGBA(dx, dy, color.RGBA{
				R: mix(s.R, d.R),
				G: mix(s.G, d.G),
				B: mix(s.B, d.B),
				A: mix(s.A, d.A),
			})
		}
	}
}
