// Package escapi drives webcams on Windows through the escapi_rust DLL.
//
// The DLL owns its capture and conversion buffers. Frames are copied between
// those native buffers and the Go raw and frame buffers at the call boundary,
// so no Go memory is ever retained by native code.
package escapi

import "sync"

// Name is the registry name of this backend
const Name = "escapi"

// DefaultDLL is the library loaded when no path is configured.
const DefaultDLL = "escapi_rust.dll"

var (
	mu      sync.Mutex
	dllPath = DefaultDLL
)

// SetDLLPath changes the library loaded by backends created afterwards.
// An empty path restores DefaultDLL.
func SetDLLPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	if path == "" {
		path = DefaultDLL
	}
	dllPath = path
}

// DLLPath returns the configured library path.
func DLLPath() string {
	mu.Lock()
	defer mu.Unlock()
	return dllPath
}
