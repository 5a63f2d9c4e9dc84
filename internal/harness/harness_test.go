package harness

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/capture/capturetest"
	"github.com/bryanchriswhite/camdump/internal/capture/synthetic"
	"github.com/bryanchriswhite/camdump/internal/output"
	"github.com/bryanchriswhite/camdump/internal/pixel"
	"github.com/spf13/afero"
)

const prompt = "Program ended. Press a key to exit."

type run struct {
	out  *bytes.Buffer
	fs   afero.Fs
	code int
}

func params(w, h int) Params {
	return Params{
		Request:       capture.OpenRequest{Index: 0, Width: w, Height: h, FPS: 30},
		SnapshotFrame: 10,
		SnapshotPath:  "image.ppm",
		Encoder:       output.PPM{},
		WaitForKey:    true,
	}
}

// runFake runs the harness against fake until its poll script is used up.
func runFake(t *testing.T, fake *capturetest.Backend, p Params, opts ...Option) run {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake.OnExhausted = cancel

	r := run{out: &bytes.Buffer{}, fs: afero.NewMemMapFs()}
	opts = append([]Option{WithIO(r.out, strings.NewReader("\n")), WithFs(r.fs)}, opts...)
	r.code = New(fake, p, opts...).Run(ctx)
	return r
}

func lines(b *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
}

func TestOpenFailureNeverTouchesDevice(t *testing.T) {
	fake := &capturetest.Backend{OpenErr: capture.ErrOpenFailed}
	r := runFake(t, fake, params(4, 4))

	if r.code != 0 {
		t.Errorf("exit code = %d, want 0", r.code)
	}
	for _, m := range []string{"DeviceName", "PollFrame", "Convert", "Close"} {
		if n := fake.Count(m); n != 0 {
			t.Errorf("%s called %d times after failed open", m, n)
		}
	}
	want := []string{"format is 0", "Cannot init camera", prompt}
	if got := lines(r.out); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestDeviceNameIsCopiedAndReleasedOnce(t *testing.T) {
	fake := &capturetest.Backend{
		Format:          pixel.FormatYUYV,
		DeviceNameBytes: []byte("HD Webcam C270"),
	}
	r := runFake(t, fake, params(2, 2))

	if fake.Releases != 1 {
		t.Errorf("releases = %d, want 1", fake.Releases)
	}
	got := lines(r.out)
	if len(got) < 2 || got[0] != "format is 1448695129" || got[1] != "device name is HD Webcam C270" {
		t.Errorf("output = %q", got)
	}
}

func TestMissingDeviceNameIsSkipped(t *testing.T) {
	fake := &capturetest.Backend{}
	r := runFake(t, fake, params(2, 2))

	if strings.Contains(r.out.String(), "device name") {
		t.Errorf("output mentions a device name: %q", r.out.String())
	}
	if fake.Releases != 0 {
		t.Errorf("releases = %d, want 0", fake.Releases)
	}
}

func TestSnapshotOnTenthSuccessfulFrame(t *testing.T) {
	// Failed polls are interleaved and must not advance the counter.
	var polls []bool
	for i := 0; i < 15; i++ {
		polls = append(polls, false, true, false)
	}
	fake := &capturetest.Backend{Polls: polls}
	r := runFake(t, fake, params(2, 1))

	if got := fake.Count("Convert"); got != 15 {
		t.Errorf("Convert called %d times, want 15", got)
	}

	out := lines(r.out)
	saved := 0
	framesBeforeSave := 0
	for _, l := range out {
		if l == "image saved" {
			saved++
		}
		if strings.HasPrefix(l, "got a new image in ") && saved == 0 {
			framesBeforeSave++
		}
	}
	if saved != 1 {
		t.Fatalf("image saved %d times, want 1", saved)
	}
	if framesBeforeSave != 10 {
		t.Errorf("saved after %d frames, want 10", framesBeforeSave)
	}

	// The fake fills every byte of frame n with n.
	data, err := afero.ReadFile(r.fs, "image.ppm")
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if want := "P3\n2 1\n255\n10 10 10 10 10 10 \n"; string(data) != want {
		t.Errorf("snapshot = %q, want %q", data, want)
	}
}

func TestNoSnapshotBeforeTenFrames(t *testing.T) {
	fake := &capturetest.Backend{Polls: []bool{true, true, true}}
	r := runFake(t, fake, params(2, 2))

	if strings.Contains(r.out.String(), "image saved") {
		t.Error("image saved before the tenth frame")
	}
	if ok, _ := afero.Exists(r.fs, "image.ppm"); ok {
		t.Error("snapshot file written before the tenth frame")
	}
}

func TestCloseRunsOnCancellation(t *testing.T) {
	fake := &capturetest.Backend{Polls: []bool{true, false, true}}
	r := runFake(t, fake, params(2, 2))

	if n := fake.Count("Close"); n != 1 {
		t.Errorf("Close called %d times, want 1", n)
	}
	if calls := fake.Calls; calls[len(calls)-1] != "Close" {
		t.Errorf("last call = %s, want Close", calls[len(calls)-1])
	}
	if got := lines(r.out); got[len(got)-1] != prompt {
		t.Errorf("last line = %q, want prompt", got[len(got)-1])
	}
}

func TestElapsedTime(t *testing.T) {
	base := time.Unix(0, 0)
	ticks := []time.Duration{0, 40 * time.Millisecond, 73 * time.Millisecond}
	i := 0
	clock := func() time.Time {
		d := ticks[i]
		if i < len(ticks)-1 {
			i++
		}
		return base.Add(d)
	}

	fake := &capturetest.Backend{Polls: []bool{true, false, true}}
	r := runFake(t, fake, params(2, 2), WithClock(clock))

	out := r.out.String()
	if !strings.Contains(out, "got a new image in 40 ms\n") {
		t.Errorf("missing first frame timing in %q", out)
	}
	if !strings.Contains(out, "got a new image in 33 ms\n") {
		t.Errorf("missing second frame timing in %q", out)
	}
}

func TestConvertErrorDoesNotStopCapture(t *testing.T) {
	fake := &capturetest.Backend{
		Polls:      []bool{true, true},
		ConvertErr: errors.New("bad frame"),
	}
	r := runFake(t, fake, params(2, 2))

	if got := strings.Count(r.out.String(), "got a new image"); got != 2 {
		t.Errorf("frames reported = %d, want 2", got)
	}
}

func TestCloseErrorIsNotShownToOperator(t *testing.T) {
	fake := &capturetest.Backend{CloseErr: errors.New("leak")}
	r := runFake(t, fake, params(2, 2))

	if strings.Contains(r.out.String(), "leak") {
		t.Errorf("close error leaked to operator output: %q", r.out.String())
	}
}

func TestInvalidSizeReportsInitFailure(t *testing.T) {
	fake := &capturetest.Backend{}
	r := runFake(t, fake, params(0, 480))

	if fake.Count("Open") != 0 {
		t.Error("Open called with an unallocatable buffer")
	}
	want := []string{"Cannot init camera", prompt}
	if got := lines(r.out); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestWaitsForOperatorLine(t *testing.T) {
	in := strings.NewReader("first\nsecond\n")
	fake := &capturetest.Backend{OpenErr: capture.ErrOpenFailed}
	New(fake, params(2, 2), WithIO(&bytes.Buffer{}, in), WithFs(afero.NewMemMapFs())).Run(context.Background())

	if in.Len() == len("first\nsecond\n") {
		t.Error("harness did not read operator input")
	}
}

func TestPollIntervalStillCaptures(t *testing.T) {
	p := params(2, 2)
	p.PollInterval = time.Millisecond
	fake := &capturetest.Backend{Polls: []bool{false, false, true}}
	r := runFake(t, fake, p)

	if got := strings.Count(r.out.String(), "got a new image"); got != 1 {
		t.Errorf("frames reported = %d, want 1", got)
	}
}

func TestCaptionIsStampedOnSnapshotOnly(t *testing.T) {
	p := params(64, 24)
	p.SnapshotFrame = 1
	p.Caption = "#{frame}"
	fake := &capturetest.Backend{Polls: []bool{true}}
	r := runFake(t, fake, p)

	data, err := afero.ReadFile(r.fs, "image.ppm")
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	// The fake frame is all 1s, so white can only come from the caption.
	if !strings.Contains(string(data), "255 255 255 ") {
		t.Error("caption not drawn into snapshot")
	}
	if want := "P3\n64 24\n255\n"; !strings.HasPrefix(string(data), want) {
		t.Errorf("header = %q", data[:len(want)])
	}
}

func TestSyntheticEndToEnd(t *testing.T) {
	clk := time.Unix(100, 0)
	b := synthetic.New(synthetic.WithClock(func() time.Time {
		clk = clk.Add(50 * time.Millisecond)
		return clk
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	fs := afero.NewMemMapFs()
	p := params(8, 2)
	p.SnapshotFrame = 3

	done := make(chan int)
	go func() {
		done <- New(b, p, WithIO(&out, strings.NewReader("")), WithFs(fs)).Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for {
		if ok, _ := afero.Exists(fs, "image.ppm"); ok {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("snapshot never written")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	data, err := afero.ReadFile(fs, "image.ppm")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "P3\n8 2\n255\n") {
		t.Errorf("snapshot header = %q", data)
	}
}
