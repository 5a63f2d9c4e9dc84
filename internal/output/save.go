package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/spf13/afero"
)

// Save encodes fb into path on fs, creating or truncating the file.
func Save(fs afero.Fs, path string, enc Encoder, fb *capture.FrameBuffer) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close snapshot: %w", cerr)
		}
	}()

	if err := enc.Encode(f, fb); err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", enc.Name(), err)
	}

	logger.WithComponent("output").Debug().
		Str("path", path).
		Str("format", enc.Name()).
		Int("width", fb.Width).
		Int("height", fb.Height).
		Msg("Snapshot written")
	return nil
}
