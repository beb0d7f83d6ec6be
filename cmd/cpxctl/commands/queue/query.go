package queue

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/cmd/cpxctl/cmdutil"
)

var queryCmd = &cobra.Command{
	Use:   "query <name>",
	Short: "Check whether a queue is registered",
	Long: `Check whether a queue is registered anywhere in the cluster.

Examples:
  cpxctl queue query support`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	exists, err := client.QueryQueue(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to query queue: %w", err)
	}

	if exists {
		fmt.Printf("Queue '%s' is registered\n", args[0])
	} else {
		fmt.Printf("Queue '%s' is not registered\n", args[0])
	}
	return nil
}
