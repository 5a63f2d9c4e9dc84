// Package synthetic implements a capture backend that renders a moving
// colour-bar test pattern. It needs no hardware and is always available.
package synthetic

import (
	"fmt"
	"time"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/bryanchriswhite/camdump/internal/pixel"
)

// Name is the registry name of this backend
const Name = "synthetic"

const deviceName = "Synthetic test pattern"

// SMPTE-style bars in B,G,R order.
var bars = [][3]byte{
	{255, 255, 255},
	{0, 255, 255},
	{255, 255, 0},
	{0, 255, 0},
	{255, 0, 255},
	{0, 0, 255},
	{255, 0, 0},
	{0, 0, 0},
}

func init() {
	capture.Register(Name, -10, func() capture.Backend { return New() })
}

type device struct {
	raw      *capture.RawBuffer
	width    int
	height   int
	interval time.Duration
	last     time.Time
	frame    int
}

// Backend renders frames on a fixed cadence derived from the requested FPS
type Backend struct {
	now     func() time.Time
	nextID  uintptr
	devices map[uintptr]*device
}

// Option configures a Backend
type Option func(*Backend)

// WithClock replaces the wall clock used to pace frames
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New creates a synthetic backend
func New(opts ...Option) *Backend {
	b := &Backend{
		now:     time.Now,
		devices: make(map[uintptr]*device),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string    { return Name }
func (b *Backend) Available() bool { return true }

// Devices lists the single synthetic device
func (b *Backend) Devices() ([]capture.DeviceInfo, error) {
	return []capture.DeviceInfo{{Index: 0, Name: deviceName}}, nil
}

func (b *Backend) Open(req capture.OpenRequest, raw *capture.RawBuffer) (capture.Handle, pixel.Format, error) {
	if req.Index != 0 {
		return capture.Handle{}, 0, fmt.Errorf("%w: synthetic device %d does not exist", capture.ErrOpenFailed, req.Index)
	}
	if raw == nil || raw.PixelUnits() < req.Width*req.Height {
		return capture.Handle{}, 0, fmt.Errorf("%w: raw buffer too small for %dx%d", capture.ErrOpenFailed, req.Width, req.Height)
	}

	var interval time.Duration
	if req.FPS > 0 {
		interval = time.Duration(float64(time.Second) / float64(req.FPS))
	}

	b.nextID++
	id := b.nextID
	b.devices[id] = &device{
		raw:      raw,
		width:    req.Width,
		height:   req.Height,
		interval: interval,
	}

	logger.WithComponent("synthetic").Debug().
		Int("width", req.Width).
		Int("height", req.Height).
		Dur("interval", interval).
		Msg("Opened synthetic device")

	return capture.NewHandle(id), pixel.FormatBGRA, nil
}

func (b *Backend) DeviceName(h capture.Handle) (*capture.BorrowedString, error) {
	if _, err := b.lookup(h); err != nil {
		return nil, err
	}
	return capture.Borrow([]byte(deviceName), nil), nil
}

func (b *Backend) PollFrame(h capture.Handle) bool {
	d, err := b.lookup(h)
	if err != nil {
		return false
	}

	now := b.now()
	if !d.last.IsZero() && now.Sub(d.last) < d.interval {
		return false
	}
	d.last = now
	d.frame++

	render(d.raw.Data(), d.width, d.height, d.frame)
	if err := d.raw.Publish(d.width*d.height*4, d.width, d.height); err != nil {
		return false
	}
	return true
}

func (b *Backend) Convert(dst *capture.FrameBuffer, src *capture.RawBuffer, width, height int, f pixel.Format) error {
	sw, sh := src.FrameSize()
	return pixel.Convert(dst.Pix, src.Frame(), sw, sh, width, height, f)
}

func (b *Backend) Close(h capture.Handle) error {
	if _, err := b.lookup(h); err != nil {
		return err
	}
	delete(b.devices, h.ID())
	return nil
}

func (b *Backend) lookup(h capture.Handle) (*device, error) {
	d, ok := b.devices[h.ID()]
	if !h.Valid() || !ok {
		return nil, fmt.Errorf("%w: %s", capture.ErrInvalidHandle, h)
	}
	return d, nil
}

// render draws colour bars scrolled one column per frame.
func render(dst []byte, width, height, frame int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			bar := bars[((x+frame)*len(bars)/width)%len(bars)]
			i := (y*width + x) * 4
			dst[i+0] = bar[0]
			dst[i+1] = bar[1]
			dst[i+2] = bar[2]
			dst[i+3] = 0xff
		}
	}
}
