package escapi

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/bryanchriswhite/camdump/internal/pixel"
	"golang.org/x/sys/windows"
)

func init() {
	capture.Register(Name, 20, func() capture.Backend { return New(DLLPath()) })
}

type procs struct {
	numDevices       *windows.LazyProc
	allocateI32      *windows.LazyProc
	allocateU8       *windows.LazyProc
	initDevice       *windows.LazyProc
	getDeviceName    *windows.LazyProc
	freeString       *windows.LazyProc
	getCaptureBuffer *windows.LazyProc
	postConvert      *windows.LazyProc
	freeDevice       *windows.LazyProc
}

func bind(dll *windows.LazyDLL) procs {
	return procs{
		numDevices:       dll.NewProc("num_devices"),
		allocateI32:      dll.NewProc("allocate_buffer_i32"),
		allocateU8:       dll.NewProc("allocate_buffer_u8"),
		initDevice:       dll.NewProc("init"),
		getDeviceName:    dll.NewProc("get_device_name"),
		freeString:       dll.NewProc("free_string"),
		getCaptureBuffer: dll.NewProc("get_capture_buffer"),
		postConvert:      dll.NewProc("post_convert"),
		freeDevice:       dll.NewProc("free_device"),
	}
}

type device struct {
	ptr    uintptr
	raw    *capture.RawBuffer
	width  int
	height int

	// Native buffers allocated by the DLL. The DLL exports no way to free
	// them, so they live until the process exits.
	nativeRaw  uintptr
	nativePost uintptr
}

// Backend calls into the escapi DLL
type Backend struct {
	path    string
	dll     *windows.LazyDLL
	procs   procs
	devices map[uintptr]*device
}

// New creates a backend for the DLL at path. The DLL is loaded lazily.
func New(path string) *Backend {
	dll := windows.NewLazyDLL(path)
	return &Backend{
		path:    path,
		dll:     dll,
		procs:   bind(dll),
		devices: make(map[uintptr]*device),
	}
}

func (b *Backend) Name() string { return Name }

// Available reports whether the DLL loads and exports init
func (b *Backend) Available() bool {
	if err := b.dll.Load(); err != nil {
		return false
	}
	return b.procs.initDevice.Find() == nil
}

// Devices lists devices by index. The DLL only reports names for an
// initialised device, so entries carry no name.
func (b *Backend) Devices() ([]capture.DeviceInfo, error) {
	if err := b.procs.numDevices.Find(); err != nil {
		return nil, fmt.Errorf("load %s: %w", b.path, err)
	}
	n, _, _ := b.procs.numDevices.Call()
	devices := make([]capture.DeviceInfo, 0, int(int32(n)))
	for i := 0; i < int(int32(n)); i++ {
		devices = append(devices, capture.DeviceInfo{Index: i})
	}
	return devices, nil
}

func (b *Backend) Open(req capture.OpenRequest, raw *capture.RawBuffer) (capture.Handle, pixel.Format, error) {
	log := logger.WithComponent("escapi")

	if err := b.procs.initDevice.Find(); err != nil {
		return capture.Handle{}, 0, fmt.Errorf("%w: load %s: %v", capture.ErrOpenFailed, b.path, err)
	}

	var nativeRaw, nativePost uintptr
	b.procs.allocateI32.Call(uintptr(req.Width), uintptr(req.Height), uintptr(unsafe.Pointer(&nativeRaw)))
	b.procs.allocateU8.Call(uintptr(req.Width*req.Height*capture.BytesPerUnit), uintptr(unsafe.Pointer(&nativePost)))
	if nativeRaw == 0 || nativePost == 0 {
		return capture.Handle{}, 0, fmt.Errorf("%w: DLL failed to allocate buffers", capture.ErrOpenFailed)
	}

	var ptr uintptr
	var format uint32
	// The float lands in XMM3; the runtime mirrors every argument into the
	// matching XMM register on windows/amd64.
	ok, _, _ := b.procs.initDevice.Call(
		uintptr(req.Index),
		uintptr(req.Width),
		uintptr(req.Height),
		uintptr(math.Float32bits(req.FPS)),
		nativeRaw,
		uintptr(unsafe.Pointer(&ptr)),
		uintptr(unsafe.Pointer(&format)),
	)
	if int32(ok) == 0 || ptr == 0 {
		return capture.Handle{}, pixel.Format(format), fmt.Errorf("%w: init of device %d failed", capture.ErrOpenFailed, req.Index)
	}

	b.devices[ptr] = &device{
		ptr:        ptr,
		raw:        raw,
		width:      req.Width,
		height:     req.Height,
		nativeRaw:  nativeRaw,
		nativePost: nativePost,
	}
	log.Debug().Str("dll", b.path).Uint32("format", format).Msg("Device initialised")
	return capture.NewHandle(ptr), pixel.Format(format), nil
}

func (b *Backend) DeviceName(h capture.Handle) (*capture.BorrowedString, error) {
	d, err := b.lookup(h)
	if err != nil {
		return nil, err
	}

	var str uintptr
	n, _, _ := b.procs.getDeviceName.Call(d.ptr, uintptr(unsafe.Pointer(&str)))
	if int32(n) <= 0 || str == 0 {
		return capture.Borrow(nil, nil), nil
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(str)), int(int32(n)))
	return capture.Borrow(data, func() { b.procs.freeString.Call(str) }), nil
}

// PollFrame asks the DLL for a completed capture and copies it into the raw
// buffer
func (b *Backend) PollFrame(h capture.Handle) bool {
	d, err := b.lookup(h)
	if err != nil {
		return false
	}

	got, _, _ := b.procs.getCaptureBuffer.Call(d.ptr)
	if int32(got) == 0 {
		return false
	}

	n := d.width * d.height * capture.BytesPerUnit
	frame := unsafe.Slice((*byte)(unsafe.Pointer(d.nativeRaw)), n)
	if err := d.raw.Fill(frame, d.width, d.height); err != nil {
		logger.WithComponent("escapi").Warn().Err(err).Msg("Dropping oversized frame")
		return false
	}
	return true
}

// Convert runs the DLL's post conversion for format code f. The raw frame is
// staged into the native input buffer and the result copied out to dst.
func (b *Backend) Convert(dst *capture.FrameBuffer, src *capture.RawBuffer, width, height int, f pixel.Format) error {
	d, err := b.deviceFor(src)
	if err != nil {
		return err
	}
	n := width * height * capture.BytesPerUnit
	if width != d.width || height != d.height || len(dst.Pix) < n {
		return fmt.Errorf("%w: convert %dx%d against a %dx%d device", pixel.ErrBufferTooSmall, width, height, d.width, d.height)
	}

	copy(unsafe.Slice((*byte)(unsafe.Pointer(d.nativeRaw)), n), src.Frame())
	b.procs.postConvert.Call(d.nativePost, d.nativeRaw, uintptr(width), uintptr(height), uintptr(f))
	copy(dst.Pix[:n], unsafe.Slice((*byte)(unsafe.Pointer(d.nativePost)), n))
	return nil
}

func (b *Backend) Close(h capture.Handle) error {
	d, err := b.lookup(h)
	if err != nil {
		return err
	}
	delete(b.devices, h.ID())
	b.procs.freeDevice.Call(d.ptr)
	return nil
}

func (b *Backend) lookup(h capture.Handle) (*device, error) {
	d, ok := b.devices[h.ID()]
	if !h.Valid() || !ok {
		return nil, fmt.Errorf("%w: %s", capture.ErrInvalidHandle, h)
	}
	return d, nil
}

// deviceFor finds the open device that publishes into raw.
func (b *Backend) deviceFor(raw *capture.RawBuffer) (*device, error) {
	for _, d := range b.devices {
		if d.raw == raw {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: raw buffer belongs to no open device", capture.ErrInvalidHandle)
}
