// Package opencv captures from webcams through OpenCV's VideoCapture via
// gocv. It needs the OpenCV shared libraries and is only compiled with the
// gocv build tag.
package opencv

// Name is the registry name of this backend
const Name = "opencv"
