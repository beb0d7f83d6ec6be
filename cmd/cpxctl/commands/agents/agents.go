// Package agents implements the cpxctl agents subcommands.
package agents

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for agent observation.
var Cmd = &cobra.Command{
	Use:   "agents",
	Short: "Observe logged-in agents",
	Long: `Observe agent availability and channel activity.

These commands need a live session: the password for the context's user
is prompted and the session is logged out when the command finishes.`,
}

func init() {
	Cmd.AddCommand(whoCmd)
	Cmd.AddCommand(statusCmd)
}
