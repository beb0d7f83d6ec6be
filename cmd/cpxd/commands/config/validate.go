package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the cpxd configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  cpxd config validate

  # Validate specific config file
  cpxd config validate --config /etc/cpx/config.yaml`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if _, err := os.Stat(cfg.Key.Path); err != nil {
		warnings = append(warnings, fmt.Sprintf("RSA key not found at %s - logins will fail (run 'cpxd config init')", cfg.Key.Path))
	}
	if _, err := os.Stat(cfg.WWW.AgentRoot); err != nil {
		warnings = append(warnings, fmt.Sprintf("agent root %s not found - the console will 404", cfg.WWW.AgentRoot))
	}
	if cfg.Server.WriteTimeout <= cfg.Session.PollTimeout {
		warnings = append(warnings, "server write_timeout does not exceed session poll_timeout - long polls will be cut short")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Store type:      %s\n", cfg.Store.Type)
	fmt.Printf("  Listen address:  %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Cluster node:    %s\n", nodeName(cfg))
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}

func nodeName(cfg *config.Config) string {
	if cfg.Cluster.NodeName != "" {
		return cfg.Cluster.NodeName
	}
	host, err := os.Hostname()
	if err != nil {
		return "(hostname)"
	}
	return host
}
