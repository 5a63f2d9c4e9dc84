package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/capture/escapi"
	"github.com/bryanchriswhite/camdump/internal/config"
	"github.com/bryanchriswhite/camdump/internal/harness"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/bryanchriswhite/camdump/internal/output"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a capture session",
	Long: `Open the configured camera, poll it for frames until interrupted and save
one frame as an image. This is what camdump does with no subcommand.

Ctrl+C stops the capture and closes the device. The program then waits for
a line of input before exiting, unless --wait=false is given.`,
	Example: `  # Capture from the first webcam with the default settings
  camdump run

  # Try the harness without a camera
  camdump run --backend synthetic --wait=false

  # Save the 30th frame of camera 1 as PNG
  camdump run -i 1 --snapshot-frame 30 --snapshot-format png -o frame.png

  # Sleep 1ms between empty polls instead of spinning
  camdump run --poll-interval 1ms`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("camdump")

	enc, err := output.ForName(cfg.Snapshot.Format)
	if err != nil {
		return err
	}

	backend, err := selectBackend(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// A second interrupt while waiting for the operator kills the process.
		<-ctx.Done()
		stop()
	}()

	log.Debug().
		Str("backend", backend.Name()).
		Str("config", configMgr.GetConfigPath()).
		Msg("Starting capture")

	h := harness.New(backend, harness.Params{
		Request: capture.OpenRequest{
			Index:  cfg.Camera.Index,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		},
		SnapshotFrame: cfg.Snapshot.Frame,
		SnapshotPath:  cfg.Snapshot.Path,
		Encoder:       enc,
		Caption:       cfg.Snapshot.Caption,
		PollInterval:  cfg.Camera.PollInterval,
		WaitForKey:    cfg.WaitForKey,
	}, harness.WithIO(cmd.OutOrStdout(), cmd.InOrStdin()), harness.WithFs(appFs))

	exitCode = h.Run(ctx)
	return nil
}

// selectBackend resolves cfg.Backend. With nothing available the harness
// still runs and reports the device failure to the operator.
func selectBackend(cfg *config.Config) (capture.Backend, error) {
	escapi.SetDLLPath(cfg.Escapi.DLLPath)

	backend, err := capture.Select(cfg.Backend)
	switch {
	case err == nil:
		return backend, nil
	case errors.Is(err, capture.ErrNoBackend):
		logger.WithComponent("camdump").Warn().Err(err).Msg("No capture backend available")
		return capture.Missing(cfg.Backend, err), nil
	default:
		return nil, fmt.Errorf("failed to select backend: %w", err)
	}
}
