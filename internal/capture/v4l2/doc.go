// Package v4l2 implements a capture backend for Video4Linux2 webcams using
// memory-mapped streaming I/O. It registers itself only on Linux.
package v4l2
