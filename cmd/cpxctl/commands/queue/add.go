package queue

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/cmd/cpxctl/cmdutil"
	"github.com/opencpx/cpx/internal/cli/output"
	"github.com/opencpx/cpx/pkg/apiclient"
)

var (
	addRecipe string
	addWeight int
)

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a queue in the cluster",
	Long: `Register a queue in the cluster registry, starting a worker on the node
that owns it. Adding a queue that already exists is a no-op and reports
the existing registration.

Examples:
  # Register a queue with defaults
  cpxctl queue add support

  # Register with an explicit recipe and weight
  cpxctl queue add support --recipe skills --weight 5`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addRecipe, "recipe", "", "Dispatch recipe (default: server default)")
	addCmd.Flags().IntVar(&addWeight, "weight", 0, "Queue weight (default: server default)")
}

// queueEntryTable renders one registry entry.
type queueEntryTable struct {
	entry apiclient.QueueEntry
}

// Headers implements TableRenderer.
func (t queueEntryTable) Headers() []string {
	return []string{"NAME", "NODE", "WEIGHT", "RECIPE", "EXISTED"}
}

// Rows implements TableRenderer.
func (t queueEntryTable) Rows() [][]string {
	return [][]string{{
		t.entry.Name,
		t.entry.Node,
		fmt.Sprintf("%d", t.entry.Weight),
		t.entry.Recipe,
		cmdutil.BoolToYesNo(t.entry.Existed),
	}}
}

func runAdd(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	entry, err := client.AddQueue(cmd.Context(), args[0], addRecipe, addWeight)
	if err != nil {
		return fmt.Errorf("failed to add queue: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		if entry.Existed {
			fmt.Printf("Queue '%s' already registered on node %s\n", entry.Name, entry.Node)
		} else {
			fmt.Printf("Queue '%s' registered on node %s\n", entry.Name, entry.Node)
		}
	}
	return cmdutil.PrintResource(os.Stdout, entry, queueEntryTable{entry})
}
