package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/bryanchriswhite/camdump/internal/logger"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	Long: `List the devices each capture backend can open.

With --backend auto (the default) every available backend that can enumerate
its devices is asked. Naming a backend lists only its devices.`,
	Example: `  # List devices of every available backend
  camdump devices

  # List V4L2 devices as JSON
  camdump devices --backend v4l2 --format json`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var devicesFormat string

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "output format (table or json)")
}

type deviceRow struct {
	Backend string `json:"backend"`
	capture.DeviceInfo
}

func runDevices(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("devices")

	var backends []capture.Backend
	if name := strings.ToLower(strings.TrimSpace(cfg.Backend)); name == "" || name == capture.AutoBackend {
		for _, b := range capture.All() {
			if b.Available() {
				backends = append(backends, b)
			}
		}
	} else {
		b, err := selectBackend(cfg)
		if err != nil {
			return err
		}
		backends = append(backends, b)
	}

	rows := make([]deviceRow, 0)
	for _, b := range backends {
		e, ok := b.(capture.Enumerator)
		if !ok {
			log.Debug().Str("backend", b.Name()).Msg("Backend cannot enumerate devices")
			continue
		}
		devices, err := e.Devices()
		if err != nil {
			log.Warn().Err(err).Str("backend", b.Name()).Msg("Failed to list devices")
			continue
		}
		for _, d := range devices {
			rows = append(rows, deviceRow{Backend: b.Name(), DeviceInfo: d})
		}
	}

	out := cmd.OutOrStdout()
	switch devicesFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	case "table":
		return printDevicesTable(out, rows)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", devicesFormat)
	}
}

func printDevicesTable(out io.Writer, rows []deviceRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "BACKEND\tINDEX\tNAME\tPATH")
	fmt.Fprintln(w, "-------\t-----\t----\t----")

	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Backend, r.Index, r.Name, r.Path)
	}

	return nil
}
