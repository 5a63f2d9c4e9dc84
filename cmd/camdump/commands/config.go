package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/bryanchriswhite/camdump/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage camdump configuration",
	Long:  `View and manage camdump configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long:  `Display the configuration after the file, CAMDUMP_* environment variables and flags are applied.`,
	Example: `  # Show configuration as YAML (default)
  camdump config show

  # Show configuration as JSON
  camdump config show --format json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Example: `  # Get the requested frame width
  camdump config get camera.width`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write a configuration file",
	Long: `Write the effective configuration as YAML, by default to
$HOME/.config/camdump/camdump.yaml. An existing file is kept unless --force
is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path of the configuration file in use, if any.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var (
	formatFlag string
	forceFlag  bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
	configInitCmd.Flags().BoolVar(&forceFlag, "force", false, "overwrite an existing file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	cfg := configMgr.Get()
	out := cmd.OutOrStdout()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	v := configMgr.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		dir, err := config.DefaultDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "camdump.yaml")
	}

	if exists, _ := afero.Exists(appFs, path); exists && !forceFlag {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.Save(appFs, configMgr.Get(), path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	path := configMgr.GetConfigPath()
	if path == "" {
		path = "(none, using defaults)"
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
