package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/bryanchriswhite/camdump/internal/capture"
	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List capture backends",
	Long: `List the capture backends compiled into this binary, in the order
--backend auto tries them, and whether each can run here.`,
	Args: cobra.NoArgs,
	RunE: runBackends,
}

var backendsFormat string

func init() {
	rootCmd.AddCommand(backendsCmd)

	backendsCmd.Flags().StringVarP(&backendsFormat, "format", "f", "table", "output format (table or json)")
}

type backendRow struct {
	Name       string `json:"name"`
	Available  bool   `json:"available"`
	Enumerates bool   `json:"enumerates"`
}

func runBackends(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	rows := make([]backendRow, 0)
	for _, b := range capture.All() {
		_, enumerates := b.(capture.Enumerator)
		rows = append(rows, backendRow{Name: b.Name(), Available: b.Available(), Enumerates: enumerates})
	}

	out := cmd.OutOrStdout()
	switch backendsFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	case "table":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "NAME\tAVAILABLE\tDEVICES")
		fmt.Fprintln(w, "----\t---------\t-------")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, yesNo(r.Available), yesNo(r.Enumerates))
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", backendsFormat)
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
