// Package harness drives a capture backend: it opens one device, polls it for
// frames, converts every frame to BGRA and dumps one of them to an image file.
//
// Operator-facing lines go to the configured output writer; diagnostics go
// through the component logger.
package harness

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/bryanchriswhite/camdump/internal/output"
	"github.com/bryanchriswhite/camdump/internal/overlay"
	"github.com/bryanchriswhite/camdump/internal/pixel"
	"github.com/spf13/afero"
)

// Params holds the capture run parameters
type Params struct {
	Request capture.OpenRequest

	// SnapshotFrame is the 1-based successful frame that gets saved
	SnapshotFrame int
	SnapshotPath  string
	Encoder       output.Encoder

	// Caption is stamped onto the saved frame only, never onto the
	// post-process buffer. Empty disables it.
	Caption string

	// PollInterval is slept between empty polls; zero spins
	PollInterval time.Duration

	// WaitForKey blocks for one line of operator input before returning
	WaitForKey bool
}

// Harness runs a single capture session
type Harness struct {
	backend capture.Backend
	params  Params

	fs  afero.Fs
	out io.Writer
	in  io.Reader
	now func() time.Time

	device string
}

// Option configures a Harness
type Option func(*Harness)

// WithFs replaces the filesystem snapshots are written to
func WithFs(fs afero.Fs) Option {
	return func(h *Harness) { h.fs = fs }
}

// WithIO replaces the operator output and input streams
func WithIO(out io.Writer, in io.Reader) Option {
	return func(h *Harness) {
		h.out = out
		h.in = in
	}
}

// WithClock replaces the clock used to time frames
func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

// New creates a harness for backend b
func New(b capture.Backend, p Params, opts ...Option) *Harness {
	if p.Encoder == nil {
		p.Encoder = output.PPM{}
	}
	h := &Harness{
		backend: b,
		params:  p,
		fs:      afero.NewOsFs(),
		out:     os.Stdout,
		in:      os.Stdin,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run opens the device and captures until ctx is cancelled, then closes the
// device, prompts the operator and waits for a line of input. It returns the
// process exit code, which is always 0: a device that cannot be opened ends
// the capture phase only.
func (h *Harness) Run(ctx context.Context) int {
	h.capture(ctx)

	h.println("Program ended. Press a key to exit.")
	if h.params.WaitForKey {
		if _, err := bufio.NewReader(h.in).ReadString('\n'); err != nil && err != io.EOF {
			logger.WithComponent("harness").Debug().Err(err).Msg("Failed to read operator input")
		}
	}
	return 0
}

func (h *Harness) capture(ctx context.Context) {
	log := logger.WithComponent("harness")
	req := h.params.Request

	raw, err := capture.NewRawBuffer(req.Width, req.Height)
	if err != nil {
		log.Error().Err(err).Msg("Failed to allocate raw buffer")
		h.println("Cannot init camera")
		return
	}
	post, err := capture.NewFrameBuffer(req.Width, req.Height)
	if err != nil {
		log.Error().Err(err).Msg("Failed to allocate frame buffer")
		h.println("Cannot init camera")
		return
	}

	handle, format, err := h.backend.Open(req, raw)
	h.printf("format is %d\n", uint32(format))
	if err != nil {
		log.Warn().
			Err(err).
			Str("backend", h.backend.Name()).
			Int("index", req.Index).
			Msg("Device open failed")
		h.println("Cannot init camera")
		return
	}

	log.Info().
		Str("backend", h.backend.Name()).
		Int("index", req.Index).
		Int("width", req.Width).
		Int("height", req.Height).
		Stringer("format", format).
		Msg("Device opened")

	if name, ok := capture.CopyDeviceName(h.backend, handle); ok {
		h.device = name
		h.println("device name is " + name)
	}

	frames := h.loop(ctx, handle, format, raw, post)

	if err := h.backend.Close(handle); err != nil {
		log.Error().Err(err).Str("backend", h.backend.Name()).Msg("Failed to close device")
	}
	log.Info().Int("frames", frames).Msg("Capture stopped")
}

// loop polls until ctx is done and returns the number of frames captured.
func (h *Harness) loop(ctx context.Context, handle capture.Handle, format pixel.Format, raw *capture.RawBuffer, post *capture.FrameBuffer) int {
	log := logger.WithComponent("harness")
	req := h.params.Request

	var idle *time.Timer
	if h.params.PollInterval > 0 {
		idle = time.NewTimer(h.params.PollInterval)
		defer idle.Stop()
	}

	frames := 0
	last := h.now()
	for {
		select {
		case <-ctx.Done():
			return frames
		default:
		}

		if !h.backend.PollFrame(handle) {
			if idle != nil {
				idle.Reset(h.params.PollInterval)
				select {
				case <-ctx.Done():
					return frames
				case <-idle.C:
				}
			}
			continue
		}

		frames++
		now := h.now()
		elapsed := now.Sub(last)
		last = now
		h.printf("got a new image in %d ms\n", elapsed.Milliseconds())

		if err := h.backend.Convert(post, raw, req.Width, req.Height, format); err != nil {
			log.Warn().Err(err).Int("frame", frames).Msg("Frame conversion failed")
		}

		if frames == h.params.SnapshotFrame {
			if err := output.Save(h.fs, h.params.SnapshotPath, h.params.Encoder, h.snapshot(post, frames)); err != nil {
				log.Error().Err(err).Str("path", h.params.SnapshotPath).Msg("Failed to save image")
			} else {
				h.println("image saved")
			}
		}
	}
}

// snapshot returns the frame to save, captioned on a copy when configured.
func (h *Harness) snapshot(post *capture.FrameBuffer, frame int) *capture.FrameBuffer {
	if h.params.Caption == "" {
		return post
	}
	fb := &capture.FrameBuffer{Width: post.Width, Height: post.Height, Pix: append([]byte(nil), post.Pix...)}
	text := overlay.Fields{
		"frame":   strconv.Itoa(frame),
		"device":  h.device,
		"backend": h.backend.Name(),
		"size":    fmt.Sprintf("%dx%d", post.Width, post.Height),
		"time":    h.now().Format(time.RFC3339),
	}.Expand(h.params.Caption)
	overlay.NewCaption(text).Stamp(fb)
	return fb
}

func (h *Harness) println(s string) {
	fmt.Fprintln(h.out, s)
}

func (h *Harness) printf(format string, args ...any) {
	fmt.Fprintf(h.out, format, args...)
}
