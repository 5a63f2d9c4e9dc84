package gstreamer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/bryanchriswhite/camdump/internal/pixel"
)

func init() {
	capture.Register(SubprocessName, 8, func() capture.Backend { return NewSubprocess() })
}

const launchBinary = "gst-launch-1.0"

type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
	index  int
	raw    *capture.RawBuffer
	width  int
	height int

	frames chan []byte
	first  chan struct{} // closed once a frame is queued
	exited chan struct{} // closed when the frame reader returns
	done   sync.WaitGroup
}

// Subprocess runs one gst-launch-1.0 per open device and reads BGRA frames
// from its stdout
type Subprocess struct {
	launch  []string
	timeout time.Duration
	nextID  uintptr
	devices map[uintptr]*process
}

// NewSubprocess creates a gst-launch backend
func NewSubprocess() *Subprocess {
	return &Subprocess{
		launch:  []string{launchBinary, "-q"},
		timeout: StartTimeout,
		devices: make(map[uintptr]*process),
	}
}

func (s *Subprocess) Name() string { return SubprocessName }

// Available reports whether gst-launch-1.0 is on PATH
func (s *Subprocess) Available() bool {
	_, err := exec.LookPath(s.launch[0])
	return err == nil
}

func (s *Subprocess) Open(req capture.OpenRequest, raw *capture.RawBuffer) (capture.Handle, pixel.Format, error) {
	log := logger.WithComponent("gst-launch")

	if n := pixel.FormatBGRA.FrameSize(req.Width, req.Height); n > raw.Cap() {
		return capture.Handle{}, 0, fmt.Errorf("%w: %d byte frames do not fit a %d byte raw buffer",
			capture.ErrOpenFailed, n, raw.Cap())
	}

	pipeline := describe(req.Index, req.Width, req.Height, req.FPS, "fdsink fd=1 sync=false")
	args := append(append([]string{}, s.launch[1:]...), strings.Fields(pipeline)...)
	cmd := exec.Command(s.launch[0], args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return capture.Handle{}, 0, fmt.Errorf("%w: stdout pipe: %v", capture.ErrOpenFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return capture.Handle{}, 0, fmt.Errorf("%w: stderr pipe: %v", capture.ErrOpenFailed, err)
	}

	log.Debug().Str("pipeline", pipeline).Msg("Starting gst-launch")
	if err := cmd.Start(); err != nil {
		return capture.Handle{}, 0, fmt.Errorf("%w: start %s: %v", capture.ErrOpenFailed, s.launch[0], err)
	}

	p := &process{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		index:  req.Index,
		raw:    raw,
		width:  req.Width,
		height: req.Height,
		frames: make(chan []byte, 1),
		first:  make(chan struct{}),
		exited: make(chan struct{}),
	}
	p.done.Add(2)
	go p.readFrames()
	go p.logStderr()

	// The device counts as open once the pipeline delivers its first frame.
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-p.first:
	case <-p.exited:
		select {
		case <-p.first:
		default:
			p.stop()
			return capture.Handle{}, 0, fmt.Errorf("%w: %s exited before the first frame of device %d",
				capture.ErrOpenFailed, s.launch[0], req.Index)
		}
	case <-timer.C:
		p.stop()
		return capture.Handle{}, 0, fmt.Errorf("%w: no frame from device %d within %s",
			capture.ErrOpenFailed, req.Index, s.timeout)
	}

	log.Info().Int("index", req.Index).Int("pid", cmd.Process.Pid).Msg("gst-launch started")

	s.nextID++
	id := s.nextID
	s.devices[id] = p
	return capture.NewHandle(id), pixel.FormatBGRA, nil
}

// readFrames reads whole frames until the process exits, keeping only the
// newest one queued.
func (p *process) readFrames() {
	defer p.done.Done()
	defer close(p.exited)
	log := logger.WithComponent("gst-launch")

	reader := bufio.NewReaderSize(p.stdout, p.width*p.height*4)
	frames := 0
	for {
		frame := make([]byte, p.width*p.height*4)
		if _, err := io.ReadFull(reader, frame); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Warn().Err(err).Msg("Error reading frame")
			}
			log.Debug().Int("frames", frames).Msg("Frame reader stopped")
			return
		}
		frames++

		select {
		case <-p.frames:
		default:
		}
		p.frames <- frame
		if frames == 1 {
			close(p.first)
		}
	}
}

func (p *process) logStderr() {
	defer p.done.Done()
	log := logger.WithComponent("gst-launch")

	scanner := bufio.NewScanner(p.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}

func (s *Subprocess) DeviceName(h capture.Handle) (*capture.BorrowedString, error) {
	p, err := s.lookup(h)
	if err != nil {
		return nil, err
	}
	return capture.Borrow([]byte(source(runtime.GOOS, p.index)), nil), nil
}

func (s *Subprocess) PollFrame(h capture.Handle) bool {
	p, err := s.lookup(h)
	if err != nil {
		return false
	}
	select {
	case frame := <-p.frames:
		if err := p.raw.Fill(frame, p.width, p.height); err != nil {
			logger.WithComponent("gst-launch").Warn().Err(err).Msg("Dropping oversized frame")
			return false
		}
		return true
	default:
		return false
	}
}

func (s *Subprocess) Convert(dst *capture.FrameBuffer, src *capture.RawBuffer, width, height int, f pixel.Format) error {
	sw, sh := src.FrameSize()
	return pixel.Convert(dst.Pix, src.Frame(), sw, sh, width, height, f)
}

func (s *Subprocess) Close(h capture.Handle) error {
	p, err := s.lookup(h)
	if err != nil {
		return err
	}
	delete(s.devices, h.ID())
	return p.stop()
}

// stop kills the subprocess and waits for its readers to drain
func (p *process) stop() error {
	var killErr error
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		killErr = fmt.Errorf("kill gst-launch: %w", err)
	}
	p.done.Wait()
	if err := p.cmd.Wait(); err != nil {
		logger.WithComponent("gst-launch").Debug().Err(err).Msg("gst-launch exited")
	}
	return killErr
}

func (s *Subprocess) lookup(h capture.Handle) (*process, error) {
	p, ok := s.devices[h.ID()]
	if !h.Valid() || !ok {
		return nil, fmt.Errorf("%w: %s", capture.ErrInvalidHandle, h)
	}
	return p, nil
}
