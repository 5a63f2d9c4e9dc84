//go:build gst

package gstreamer

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/bryanchriswhite/camdump/internal/pixel"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

func init() {
	capture.Register(Name, 15, func() capture.Backend { return New() })
}

var initOnce sync.Once

type pipeline struct {
	pipeline *gst.Pipeline
	appsink  *app.Sink
	index    int
	raw      *capture.RawBuffer
	width    int
	height   int
}

// Backend runs an in-process GStreamer pipeline per device and pulls samples
// from an appsink
type Backend struct {
	nextID  uintptr
	devices map[uintptr]*pipeline
}

// New creates a GStreamer backend
func New() *Backend {
	return &Backend{devices: make(map[uintptr]*pipeline)}
}

func (b *Backend) Name() string { return Name }

// Available reports whether the camera source element is installed
func (b *Backend) Available() bool {
	initOnce.Do(func() { gst.Init(nil) })
	return gst.Find(sourceFactory(runtime.GOOS)) != nil
}

func (b *Backend) Open(req capture.OpenRequest, raw *capture.RawBuffer) (capture.Handle, pixel.Format, error) {
	log := logger.WithComponent("gstreamer")
	initOnce.Do(func() { gst.Init(nil) })

	if n := pixel.FormatBGRA.FrameSize(req.Width, req.Height); n > raw.Cap() {
		return capture.Handle{}, 0, fmt.Errorf("%w: %d byte frames do not fit a %d byte raw buffer",
			capture.ErrOpenFailed, n, raw.Cap())
	}

	desc := describe(req.Index, req.Width, req.Height, req.FPS,
		"appsink name=sink emit-signals=false max-buffers=1 drop=true")
	log.Debug().Str("pipeline", desc).Msg("Creating GStreamer pipeline")

	pl, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return capture.Handle{}, 0, fmt.Errorf("%w: create pipeline: %v", capture.ErrOpenFailed, err)
	}
	sinkElement, err := pl.GetElementByName("sink")
	if err != nil {
		pl.SetState(gst.StateNull)
		return capture.Handle{}, 0, fmt.Errorf("%w: get appsink: %v", capture.ErrOpenFailed, err)
	}
	if err := pl.SetState(gst.StatePlaying); err != nil {
		pl.SetState(gst.StateNull)
		return capture.Handle{}, 0, fmt.Errorf("%w: start pipeline: %v", capture.ErrOpenFailed, err)
	}
	if err := waitPlaying(pl, StartTimeout); err != nil {
		pl.SetState(gst.StateNull)
		return capture.Handle{}, 0, fmt.Errorf("%w: device %d: %v", capture.ErrOpenFailed, req.Index, err)
	}

	b.nextID++
	id := b.nextID
	b.devices[id] = &pipeline{
		pipeline: pl,
		appsink:  app.SinkFromElement(sinkElement),
		index:    req.Index,
		raw:      raw,
		width:    req.Width,
		height:   req.Height,
	}
	log.Info().Int("index", req.Index).Msg("GStreamer pipeline started")
	return capture.NewHandle(id), pixel.FormatBGRA, nil
}

// waitPlaying watches the bus until the pipeline reaches PLAYING. Source
// errors such as a missing device only surface here.
func waitPlaying(pl *gst.Pipeline, timeout time.Duration) error {
	bus := pl.GetPipelineBus()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			return msg.ParseError()
		case gst.MessageEOS:
			return fmt.Errorf("end of stream before the first frame")
		case gst.MessageStateChanged:
			if msg.Source() != pl.GetName() {
				continue
			}
			if _, state := msg.ParseStateChanged(); state == gst.StatePlaying {
				return nil
			}
		}
	}
	return fmt.Errorf("pipeline not playing within %s", timeout)
}

func (b *Backend) DeviceName(h capture.Handle) (*capture.BorrowedString, error) {
	p, err := b.lookup(h)
	if err != nil {
		return nil, err
	}
	return capture.Borrow([]byte(source(runtime.GOOS, p.index)), nil), nil
}

// PollFrame pulls a sample without waiting
func (b *Backend) PollFrame(h capture.Handle) bool {
	p, err := b.lookup(h)
	if err != nil {
		return false
	}

	sample := p.appsink.TryPullSample(0)
	if sample == nil {
		return false
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return false
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return false
	}
	defer buffer.Unmap()

	if err := p.raw.Fill(mapInfo.Bytes(), p.width, p.height); err != nil {
		logger.WithComponent("gstreamer").Warn().Err(err).Msg("Dropping oversized sample")
		return false
	}
	return true
}

func (b *Backend) Convert(dst *capture.FrameBuffer, src *capture.RawBuffer, width, height int, f pixel.Format) error {
	sw, sh := src.FrameSize()
	return pixel.Convert(dst.Pix, src.Frame(), sw, sh, width, height, f)
}

func (b *Backend) Close(h capture.Handle) error {
	p, err := b.lookup(h)
	if err != nil {
		return err
	}
	delete(b.devices, h.ID())

	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("stop pipeline: %w", err)
	}
	p.pipeline.Unref()
	logger.WithComponent("gstreamer").Info().Msg("GStreamer pipeline stopped")
	return nil
}

func (b *Backend) lookup(h capture.Handle) (*pipeline, error) {
	p, ok := b.devices[h.ID()]
	if !h.Valid() || !ok {
		return nil, fmt.Errorf("%w: %s", capture.ErrInvalidHandle, h)
	}
	return p, nil
}
