// Package x11 exposes an X11 screen as a capture device. Each frame is a grab
// of the top-left width x height region of the screen's root window.
package x11

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/bryanchriswhite/camdump/internal/pixel"
)

// Name is the registry name of this backend
const Name = "x11"

func init() {
	capture.Register(Name, -5, func() capture.Backend { return New() })
}

type screen struct {
	conn     *xgb.Conn
	info     *xproto.ScreenInfo
	index    int
	raw      *capture.RawBuffer
	width    int
	height   int
	interval time.Duration
	last     time.Time
}

// Backend grabs X11 root windows
type Backend struct {
	now     func() time.Time
	nextID  uintptr
	screens map[uintptr]*screen
}

// New creates an X11 backend
func New() *Backend {
	return &Backend{
		now:     time.Now,
		screens: make(map[uintptr]*screen),
	}
}

func (b *Backend) Name() string { return Name }

// Available reports whether an X display is configured
func (b *Backend) Available() bool {
	return os.Getenv("DISPLAY") != ""
}

// Devices lists the screens of the default display
func (b *Backend) Devices() ([]capture.DeviceInfo, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	defer conn.Close()

	setup := xproto.Setup(conn)
	devices := make([]capture.DeviceInfo, 0, len(setup.Roots))
	for i := range setup.Roots {
		devices = append(devices, capture.DeviceInfo{Index: i, Name: screenName(i, &setup.Roots[i])})
	}
	return devices, nil
}

func (b *Backend) Open(req capture.OpenRequest, raw *capture.RawBuffer) (capture.Handle, pixel.Format, error) {
	log := logger.WithComponent("x11-capture")

	conn, err := xgb.NewConn()
	if err != nil {
		return capture.Handle{}, 0, fmt.Errorf("%w: failed to connect to X server: %v", capture.ErrOpenFailed, err)
	}

	setup := xproto.Setup(conn)
	if req.Index < 0 || req.Index >= len(setup.Roots) {
		conn.Close()
		return capture.Handle{}, 0, fmt.Errorf("%w: screen %d does not exist (display has %d)",
			capture.ErrOpenFailed, req.Index, len(setup.Roots))
	}
	info := &setup.Roots[req.Index]

	if info.RootDepth != 24 && info.RootDepth != 32 {
		conn.Close()
		return capture.Handle{}, 0, fmt.Errorf("%w: unsupported root depth %d", capture.ErrOpenFailed, info.RootDepth)
	}
	if req.Width > int(info.WidthInPixels) || req.Height > int(info.HeightInPixels) {
		conn.Close()
		return capture.Handle{}, 0, fmt.Errorf("%w: %dx%d exceeds screen size %dx%d",
			capture.ErrOpenFailed, req.Width, req.Height, info.WidthInPixels, info.HeightInPixels)
	}

	var interval time.Duration
	if req.FPS > 0 {
		interval = time.Duration(float64(time.Second) / float64(req.FPS))
	}

	b.nextID++
	id := b.nextID
	b.screens[id] = &screen{
		conn:     conn,
		info:     info,
		index:    req.Index,
		raw:      raw,
		width:    req.Width,
		height:   req.Height,
		interval: interval,
	}

	log.Info().
		Int("screen", req.Index).
		Uint8("depth", info.RootDepth).
		Msg("X11 screen opened")

	// ZPixmap at depth 24/32 is B,G,R,X per pixel.
	return capture.NewHandle(id), pixel.FormatBGRA, nil
}

func (b *Backend) DeviceName(h capture.Handle) (*capture.BorrowedString, error) {
	s, err := b.lookup(h)
	if err != nil {
		return nil, err
	}
	return capture.Borrow([]byte(screenName(s.index, s.info)), nil), nil
}

// PollFrame grabs the root window once the frame interval has elapsed
func (b *Backend) PollFrame(h capture.Handle) bool {
	s, err := b.lookup(h)
	if err != nil {
		return false
	}

	now := b.now()
	if !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return false
	}
	s.last = now

	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.info.Root),
		0, 0,
		uint16(s.width), uint16(s.height),
		0xffffffff,
	).Reply()
	if err != nil {
		logger.WithComponent("x11-capture").Warn().Err(err).Msg("Failed to get image")
		return false
	}

	if err := s.raw.Fill(reply.Data, s.width, s.height); err != nil {
		logger.WithComponent("x11-capture").Warn().Err(err).Msg("Dropping oversized image")
		return false
	}
	return true
}

func (b *Backend) Convert(dst *capture.FrameBuffer, src *capture.RawBuffer, width, height int, f pixel.Format) error {
	sw, sh := src.FrameSize()
	return pixel.Convert(dst.Pix, src.Frame(), sw, sh, width, height, f)
}

func (b *Backend) Close(h capture.Handle) error {
	s, err := b.lookup(h)
	if err != nil {
		return err
	}
	delete(b.screens, h.ID())
	s.conn.Close()
	return nil
}

func (b *Backend) lookup(h capture.Handle) (*screen, error) {
	s, ok := b.screens[h.ID()]
	if !h.Valid() || !ok {
		return nil, fmt.Errorf("%w: %s", capture.ErrInvalidHandle, h)
	}
	return s, nil
}

func screenName(index int, info *xproto.ScreenInfo) string {
	return fmt.Sprintf("X11 screen %d (%dx%d)", index, info.WidthInPixels, info.HeightInPixels)
}
