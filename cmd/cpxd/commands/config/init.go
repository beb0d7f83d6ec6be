package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/pkg/config"
	"github.com/opencpx/cpx/pkg/identity"
	"github.com/opencpx/cpx/pkg/keyring"
	"github.com/opencpx/cpx/pkg/store"
)

const (
	demoLogin       = "demo"
	demoPassword    = "demo1234"
	loginKeyBits    = 2048
	demoSupervisor  = "super"
	demoSupPassword = "super1234"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration, key, and store",
	Long: `Initialize a cpxd configuration file, generate the RSA login key, and
seed the store with a demo tenant (one queue, one client, release options,
and demo agent accounts).

By default, the configuration file is created at
$XDG_CONFIG_HOME/cpx/config.yaml. Use --config to specify a custom path.

Examples:
  # Initialize with default location
  cpxd config init

  # Initialize with custom path
  cpxd config init --config /etc/cpx/config.yaml

  # Force overwrite an existing config file
  cpxd config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()
	cfg.Key.Path = filepath.Join(filepath.Dir(configPath), "cpx_key.pem")

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return err
	}
	fmt.Printf("Configuration file created at: %s\n", configPath)

	if _, err := os.Stat(cfg.Key.Path); os.IsNotExist(err) {
		if err := keyring.Generate(cfg.Key.Path, loginKeyBits); err != nil {
			return fmt.Errorf("failed to generate RSA key: %w", err)
		}
		fmt.Printf("RSA login key generated at: %s\n", cfg.Key.Path)
	} else {
		fmt.Printf("RSA login key already present at: %s\n", cfg.Key.Path)
	}

	if err := seedStore(cmd.Context(), cfg); err != nil {
		return err
	}

	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the daemon with: cpxd start")
	fmt.Printf("  3. Log in to the agent console as '%s' (password '%s')\n", demoLogin, demoPassword)
	fmt.Println("\nSecurity note:")
	fmt.Println("  The demo accounts are for evaluation only. Replace them before")
	fmt.Println("  exposing the daemon to agents.")

	return nil
}

// seedStore opens the configured store, seeds the baseline catalog, and
// creates the demo agent and supervisor accounts.
func seedStore(ctx context.Context, cfg *config.Config) error {
	st, err := store.New(&cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("failed to seed store defaults: %w", err)
	}

	accounts := []struct {
		login, password, level string
	}{
		{demoLogin, demoPassword, string(store.SecurityAgent)},
		{demoSupervisor, demoSupPassword, string(store.SecuritySupervisor)},
	}
	for _, acct := range accounts {
		hash, err := identity.HashPassword(acct.password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		_, err = st.CreateAgent(ctx, &store.AgentModel{
			Login:         acct.login,
			PasswordHash:  hash,
			Profile:       "Default",
			SecurityLevel: acct.level,
			Enabled:       true,
		})
		if err != nil && !errors.Is(err, store.ErrDuplicateAgent) {
			return fmt.Errorf("failed to create account %q: %w", acct.login, err)
		}
	}

	fmt.Println("Store seeded with demo tenant (queue, client, release options, accounts)")
	return nil
}
