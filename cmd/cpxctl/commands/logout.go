package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/internal/cli/credentials"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored username",
	Long: `Forget the username saved in the current context.

Sessions are per-invocation and die with the process, so there is no
token to revoke; this only stops future commands from pre-filling the
username. The server URL is kept for easy re-login.

Examples:
  # Logout from current context
  cpxctl logout`,
	RunE: runLogout,
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	contextName := store.GetCurrentContextName()
	if contextName == "" {
		return fmt.Errorf("no current context")
	}

	ctx, err := store.GetContext(contextName)
	if err != nil {
		return fmt.Errorf("failed to get context: %w", err)
	}
	ctx.Username = ""
	if err := store.SetContext(contextName, ctx); err != nil {
		return fmt.Errorf("failed to update context: %w", err)
	}

	fmt.Printf("Logged out from context: %s\n", contextName)
	return nil
}
