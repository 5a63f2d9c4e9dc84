package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/config"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// appFs holds snapshots and written config files
var appFs afero.Fs = afero.NewOsFs()

var (
	cfgFile  string
	exitCode int
	rootCmd  = &cobra.Command{
		Use:   "camdump",
		Short: "camdump - webcam capture harness",
		Long: `camdump opens a camera through one of its capture backends, polls it for
frames as fast as they arrive, converts every frame to BGRA and saves one of
them as an image.

With no subcommand it runs a capture session with the configured settings:
device 0 at 640x480 and 30 fps, saving the 10th frame to image.ppm.

Backends:
  • v4l2        Video4Linux2 webcams (Linux)
  • escapi      escapi_rust.dll (Windows)
  • gstreamer   in-process GStreamer (built with -tags gst)
  • opencv      OpenCV VideoCapture (built with -tags gocv)
  • gst-launch  gst-launch-1.0 subprocess
  • x11         X11 screen grab
  • synthetic   moving colour bars, no hardware needed`,
		Args:          cobra.NoArgs,
		RunE:          runCapture,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()

	// Global flags
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./camdump.yaml or $HOME/.config/camdump/camdump.yaml)")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human readable logs on stderr")
	flags.StringP("backend", "b", "", fmt.Sprintf("capture backend: auto, %s", strings.Join(capture.Names(), ", ")))

	// Capture flags
	d := config.Defaults()
	flags.IntP("index", "i", d.Camera.Index, "camera index")
	flags.Int("width", d.Camera.Width, "requested frame width")
	flags.Int("height", d.Camera.Height, "requested frame height")
	flags.Float32("fps", d.Camera.FPS, "requested frame rate")
	flags.Duration("poll-interval", d.Camera.PollInterval, "sleep between empty polls (0 spins)")
	flags.Int("snapshot-frame", d.Snapshot.Frame, "successful frame number to save")
	flags.StringP("snapshot-path", "o", d.Snapshot.Path, "snapshot file")
	flags.String("snapshot-format", d.Snapshot.Format, "snapshot encoding (ppm, bmp, tiff, png, jpeg)")
	flags.String("caption", d.Snapshot.Caption, "text stamped onto the snapshot, e.g. \"{device} {time}\"")
	flags.Bool("wait", d.WaitForKey, "wait for a line of input before exiting")
	flags.String("escapi-dll", d.Escapi.DLLPath, "path to escapi_rust.dll")

	bindFlags(viper.GetViper())
}

// bindFlags binds the persistent flags to their configuration keys
func bindFlags(v *viper.Viper) {
	flags := rootCmd.PersistentFlags()
	for key, flag := range map[string]string{
		"log_level":            "log-level",
		"log_pretty":           "log-pretty",
		"backend":              "backend",
		"camera.index":         "index",
		"camera.width":         "width",
		"camera.height":        "height",
		"camera.fps":           "fps",
		"camera.poll_interval": "poll-interval",
		"snapshot.frame":       "snapshot-frame",
		"snapshot.path":        "snapshot-path",
		"snapshot.format":      "snapshot-format",
		"snapshot.caption":     "caption",
		"wait_for_key":         "wait",
		"escapi.dll_path":      "escapi-dll",
	} {
		v.BindPFlag(key, flags.Lookup(flag))
	}
}

// loadConfig builds the configuration and initialises logging from it
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, nil
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return exitCode
}
