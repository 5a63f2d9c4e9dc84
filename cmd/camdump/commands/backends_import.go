package commands

// Capture backends register themselves with the capture router.
import (
	_ "github.com/bryanchriswhite/camdump/internal/capture/escapi"
	_ "github.com/bryanchriswhite/camdump/internal/capture/gstreamer"
	_ "github.com/bryanchriswhite/camdump/internal/capture/opencv"
	_ "github.com/bryanchriswhite/camdump/internal/capture/synthetic"
	_ "github.com/bryanchriswhite/camdump/internal/capture/v4l2"
	_ "github.com/bryanchriswhite/camdump/internal/capture/x11"
)
