//go:build gocv

package opencv

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/bryanchriswhite/camdump/internal/pixel"
	"gocv.io/x/gocv"
)

func init() {
	capture.Register(Name, 10, func() capture.Backend { return New() })
}

// retry is the pause after a failed read so a vanished device does not spin.
const retry = 10 * time.Millisecond

type device struct {
	vc     *gocv.VideoCapture
	index  int
	raw    *capture.RawBuffer
	width  int
	height int

	frames chan []byte
	stop   chan struct{}
	done   sync.WaitGroup
}

// Backend reads frames on a goroutine so PollFrame never blocks on
// VideoCapture.Read
type Backend struct {
	nextID  uintptr
	devices map[uintptr]*device
}

// New creates an OpenCV backend
func New() *Backend {
	return &Backend{devices: make(map[uintptr]*device)}
}

func (b *Backend) Name() string    { return Name }
func (b *Backend) Available() bool { return true }

func (b *Backend) Open(req capture.OpenRequest, raw *capture.RawBuffer) (capture.Handle, pixel.Format, error) {
	log := logger.WithComponent("opencv")

	vc, err := gocv.OpenVideoCapture(req.Index)
	if err != nil {
		return capture.Handle{}, 0, fmt.Errorf("%w: camera %d: %v", capture.ErrOpenFailed, req.Index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return capture.Handle{}, 0, fmt.Errorf("%w: camera %d did not open", capture.ErrOpenFailed, req.Index)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(req.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(req.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(req.FPS))

	log.Info().
		Int("index", req.Index).
		Float64("width", vc.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", vc.Get(gocv.VideoCaptureFrameHeight)).
		Float64("fps", vc.Get(gocv.VideoCaptureFPS)).
		Msg("Camera opened")

	d := &device{
		vc:     vc,
		index:  req.Index,
		raw:    raw,
		width:  req.Width,
		height: req.Height,
		frames: make(chan []byte, 1),
		stop:   make(chan struct{}),
	}
	d.done.Add(1)
	go d.read()

	b.nextID++
	id := b.nextID
	b.devices[id] = d
	return capture.NewHandle(id), pixel.FormatBGRA, nil
}

// read converts every frame to BGRA at the requested size and keeps only the
// newest one queued.
func (d *device) read() {
	defer d.done.Done()
	log := logger.WithComponent("opencv")

	mat := gocv.NewMat()
	defer mat.Close()
	bgra := gocv.NewMat()
	defer bgra.Close()
	size := image.Pt(d.width, d.height)

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		if !d.vc.Read(&mat) || mat.Empty() {
			log.Trace().Msg("Empty read")
			time.Sleep(retry)
			continue
		}

		gocv.CvtColor(mat, &bgra, gocv.ColorBGRToBGRA)
		if bgra.Cols() != d.width || bgra.Rows() != d.height {
			gocv.Resize(bgra, &bgra, size, 0, 0, gocv.InterpolationLinear)
		}

		frame := bgra.ToBytes()
		select {
		case <-d.frames:
		default:
		}
		d.frames <- frame
	}
}

func (b *Backend) DeviceName(h capture.Handle) (*capture.BorrowedString, error) {
	d, err := b.lookup(h)
	if err != nil {
		return nil, err
	}
	return capture.Borrow([]byte(fmt.Sprintf("OpenCV camera %d", d.index)), nil), nil
}

func (b *Backend) PollFrame(h capture.Handle) bool {
	d, err := b.lookup(h)
	if err != nil {
		return false
	}
	select {
	case frame := <-d.frames:
		if err := d.raw.Fill(frame, d.width, d.height); err != nil {
			logger.WithComponent("opencv").Warn().Err(err).Msg("Dropping oversized frame")
			return false
		}
		return true
	default:
		return false
	}
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

	close(d.stop)
	d.done.Wait()
	if err := d.vc.Close(); err != nil {
		return fmt.Errorf("close camera %d: %w", d.index, err)
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
