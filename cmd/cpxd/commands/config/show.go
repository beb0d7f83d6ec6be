package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opencpx/cpx/pkg/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Print the effective configuration after merging the configuration file,
environment variables, and defaults.

Examples:
  # Show effective config
  cpxd config show

  # Show with a custom config file
  cpxd config show --config /etc/cpx/config.yaml`,
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
