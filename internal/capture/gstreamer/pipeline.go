// Package gstreamer captures webcams through GStreamer. Two backends share
// one pipeline description: "gstreamer" links libgstreamer in-process and is
// compiled with the gst build tag, while "gst-launch" runs gst-launch-1.0 as
// a subprocess and reads raw frames from its stdout.
package gstreamer

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"
)

// Names in the backend registry
const (
	Name           = "gstreamer"
	SubprocessName = "gst-launch"
)

// StartTimeout bounds how long Open waits for a pipeline to start delivering.
const StartTimeout = 5 * time.Second

// source returns the platform camera source element for device index.
func source(goos string, index int) string {
	switch goos {
	case "windows":
		return fmt.Sprintf("ksvideosrc device-index=%d", index)
	case "darwin":
		return fmt.Sprintf("avfvideosrc device-index=%d", index)
	default:
		return fmt.Sprintf("v4l2src device=/dev/video%d", index)
	}
}

// sourceFactory is the element factory name of the platform source.
func sourceFactory(goos string) string {
	return strings.Fields(source(goos, 0))[0]
}

// framerate renders fps as a caps fraction. Non-integral rates keep three
// decimals.
func framerate(fps float32) string {
	if fps <= 0 {
		return ""
	}
	if fps == float32(math.Trunc(float64(fps))) {
		return fmt.Sprintf("%d/1", int(fps))
	}
	return fmt.Sprintf("%d/1000", int(math.Round(float64(fps)*1000)))
}

// caps is the BGRA caps filter every pipeline ends in.
func caps(width, height int, fps float32) string {
	c := fmt.Sprintf("video/x-raw,format=BGRA,width=%d,height=%d", width, height)
	if r := framerate(fps); r != "" {
		c += ",framerate=" + r
	}
	return c
}

// describe builds the pipeline from the camera to sink.
func describe(index, width, height int, fps float32, sink string) string {
	elems := []string{
		source(runtime.GOOS, index),
		"videoconvert",
		"videoscale",
	}
	if fps > 0 {
		elems = append(elems, "videorate")
	}
	elems = append(elems, caps(width, height, fps), sink)
	return strings.Join(elems, " ! ")
}
