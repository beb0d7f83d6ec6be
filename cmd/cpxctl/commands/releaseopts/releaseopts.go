// Package releaseopts implements the cpxctl release-opts subcommands.
package releaseopts

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for release option management.
var Cmd = &cobra.Command{
	Use:     "release-opts",
	Aliases: []string{"release-options"},
	Short:   "Inspect release options",
	Long:    `List the release reasons agents may pick when going unavailable.`,
}

func init() {
	Cmd.AddCommand(listCmd)
}
