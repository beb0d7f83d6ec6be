// Package queue implements the cpxctl queue subcommands.
package queue

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for queue management.
var Cmd = &cobra.Command{
	Use:     "queue",
	Aliases: []string{"queues"},
	Short:   "Manage call queues",
	Long:    `List configured queues and register queues in the cluster.`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(queryCmd)
}
