// Package brand implements the cpxctl brand subcommands.
package brand

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for brand (client) management.
var Cmd = &cobra.Command{
	Use:     "brand",
	Aliases: []string{"brands"},
	Short:   "Inspect configured brands",
	Long:    `List the client brands configured on the CPX server.`,
}

func init() {
	Cmd.AddCommand(listCmd)
}
