package queue

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/cmd/cpxctl/cmdutil"
	"github.com/opencpx/cpx/pkg/apiclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured queues",
	Long: `List the queues configured on the CPX server.

Examples:
  # List queues as table
  cpxctl queues list

  # List as JSON
  cpxctl queues list -o json`,
	RunE: runList,
}

// QueueList is a list of queues for table rendering.
type QueueList []apiclient.QueueInfo

// Headers implements TableRenderer.
func (ql QueueList) Headers() []string {
	return []string{"NAME"}
}

// Rows implements TableRenderer.
func (ql QueueList) Rows() [][]string {
	rows := make([][]string, 0, len(ql))
	for _, q := range ql {
		rows = append(rows, []string{q.Name})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	queues, err := client.QueueList(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list queues: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, queues, len(queues) == 0, "No queues configured.", QueueList(queues))
}
