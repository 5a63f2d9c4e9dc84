package v4l2

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/blackjack/webcam"
	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/bryanchriswhite/camdump/internal/pixel"
)

// Name is the registry name of this backend
const Name = "v4l2"

const (
	devDir   = "/dev"
	sysfsDir = "/sys/class/video4linux"
)

// Formats in order of preference. Uncompressed first: MJPEG frames cost a
// JPEG decode per conversion.
var preferredFormats = []pixel.Format{
	pixel.FormatYUYV,
	pixel.FormatMJPEG,
	pixel.FormatRGB24,
	pixel.FormatBGRA,
}

func init() {
	capture.Register(Name, 20, func() capture.Backend { return New() })
}

type device struct {
	cam    *webcam.Webcam
	index  int
	raw    *capture.RawBuffer
	format pixel.Format
	width  int
	height int
}

// Backend captures from /dev/videoN
type Backend struct {
	devDir   string
	sysfsDir string
	nextID   uintptr
	devices  map[uintptr]*device
}

// New creates a V4L2 backend
func New() *Backend {
	return &Backend{
		devDir:   devDir,
		sysfsDir: sysfsDir,
		devices:  make(map[uintptr]*device),
	}
}

func (b *Backend) Name() string { return Name }

// Available reports whether any video device node exists
func (b *Backend) Available() bool {
	nodes, _ := filepath.Glob(filepath.Join(b.devDir, "video*"))
	return len(nodes) > 0
}

// Devices enumerates video4linux devices from sysfs
func (b *Backend) Devices() ([]capture.DeviceInfo, error) {
	entries, err := os.ReadDir(b.sysfsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", b.sysfsDir, err)
	}

	var devices []capture.DeviceInfo
	for _, e := range entries {
		idx, ok := parseIndex(e.Name())
		if !ok {
			continue
		}
		devices = append(devices, capture.DeviceInfo{
			Index: idx,
			Name:  b.readName(idx),
			Path:  b.nodePath(idx),
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
	return devices, nil
}

func (b *Backend) Open(req capture.OpenRequest, raw *capture.RawBuffer) (capture.Handle, pixel.Format, error) {
	log := logger.WithComponent("v4l2")
	path := b.nodePath(req.Index)

	cam, err := webcam.Open(path)
	if err != nil {
		return capture.Handle{}, 0, fmt.Errorf("%w: %s: %v", capture.ErrOpenFailed, path, err)
	}

	format, w, h, err := negotiate(cam, req.Width, req.Height)
	if err != nil {
		cam.Close()
		return capture.Handle{}, 0, fmt.Errorf("%w: %s: %v", capture.ErrOpenFailed, path, err)
	}
	if n := format.FrameSize(w, h); n > raw.Cap() {
		cam.Close()
		return capture.Handle{}, 0, fmt.Errorf("%w: %s frame of %dx%d needs %d bytes, raw buffer holds %d",
			capture.ErrOpenFailed, format, w, h, n, raw.Cap())
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return capture.Handle{}, 0, fmt.Errorf("%w: %s: start streaming: %v", capture.ErrOpenFailed, path, err)
	}

	if w != req.Width || h != req.Height {
		log.Info().
			Int("requested_width", req.Width).
			Int("requested_height", req.Height).
			Int("width", w).
			Int("height", h).
			Msg("Device negotiated a different frame size, frames will be rescaled")
	}
	// The driver paces frames itself; the requested rate is advisory.
	log.Debug().
		Str("path", path).
		Stringer("format", format).
		Float32("fps", req.FPS).
		Msg("Streaming started")

	b.nextID++
	id := b.nextID
	b.devices[id] = &device{
		cam:    cam,
		index:  req.Index,
		raw:    raw,
		format: format,
		width:  w,
		height: h,
	}
	return capture.NewHandle(id), format, nil
}

func (b *Backend) DeviceName(h capture.Handle) (*capture.BorrowedString, error) {
	d, err := b.lookup(h)
	if err != nil {
		return nil, err
	}
	return capture.Borrow([]byte(b.readName(d.index)), nil), nil
}

// PollFrame checks for a ready buffer without waiting
func (b *Backend) PollFrame(h capture.Handle) bool {
	d, err := b.lookup(h)
	if err != nil {
		return false
	}

	switch err := d.cam.WaitForFrame(0); err.(type) {
	case nil:
	case *webcam.Timeout:
		return false
	default:
		logger.WithComponent("v4l2").Warn().Err(err).Msg("Wait for frame failed")
		return false
	}

	frame, err := d.cam.ReadFrame()
	if err != nil || len(frame) == 0 {
		if err != nil {
			logger.WithComponent("v4l2").Warn().Err(err).Msg("Read frame failed")
		}
		return false
	}
	if err := d.raw.Fill(frame, d.width, d.height); err != nil {
		logger.WithComponent("v4l2").Warn().Err(err).Msg("Dropping oversized frame")
		return false
	}
	return true
}

func (b *Backend) Convert(dst *capture.FrameBuffer, src *capture.RawBuffer, width, height int, f pixel.Format) error {
	sw, sh := src.FrameSize()
	return pixel.Convert(dst.Pix, src.Frame(), sw, sh, width, height, f)
}

func (b *Backend) Close(h capture.Handle) error {
	d, err := b.lookup(h)
	if err != nil {
		return err
	}
	delete(b.devices, h.ID())

	// Close stops streaming and unmaps the driver buffers.
	if err := d.cam.Close(); err != nil {
		return fmt.Errorf("close %s: %w", b.nodePath(d.index), err)
	}
	return nil
}

func (b *Backend) lookup(h capture.Handle) (*device, error) {
	d, ok := b.devices[h.ID()]
	if !h.Valid() || !ok {
		return nil, fmt.Errorf("%w: %s", capture.ErrInvalidHandle, h)
	}
	return d, nil
}

func (b *Backend) nodePath(index int) string {
	return filepath.Join(b.devDir, "video"+strconv.Itoa(index))
}

func (b *Backend) readName(index int) string {
	data, err := os.ReadFile(filepath.Join(b.sysfsDir, "video"+strconv.Itoa(index), "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// negotiate picks the first preferred format the device supports and asks
// for the requested size. The driver may answer with a different size.
func negotiate(cam *webcam.Webcam, width, height int) (pixel.Format, int, int, error) {
	supported := cam.GetSupportedFormats()

	for _, want := range preferredFormats {
		if _, ok := supported[webcam.PixelFormat(want)]; !ok {
			continue
		}
		got, w, h, err := cam.SetImageFormat(webcam.PixelFormat(want), uint32(width), uint32(height))
		if err != nil {
			return 0, 0, 0, fmt.Errorf("set %s format: %w", want, err)
		}
		return pixel.Format(got), int(w), int(h), nil
	}

	names := make([]string, 0, len(supported))
	for _, desc := range supported {
		names = append(names, desc)
	}
	sort.Strings(names)
	return 0, 0, 0, fmt.Errorf("%w: device offers %s", pixel.ErrUnsupportedFormat, strings.Join(names, ", "))
}

func parseIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "video")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return idx, true
}
