package agents

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/cmd/cpxctl/cmdutil"
	"github.com/opencpx/cpx/pkg/apiclient"
)

var whoCmd = &cobra.Command{
	Use:   "who",
	Short: "List available agents",
	Long: `List agents that are currently idle with no active channel.

Examples:
  # List available agents
  cpxctl agents who

  # List as JSON
  cpxctl agents who -o json`,
	RunE: runWho,
}

// AgentList is a list of agent snapshots for table rendering.
type AgentList []apiclient.AgentSnapshot

// Headers implements TableRenderer.
func (al AgentList) Headers() []string {
	return []string{"LOGIN", "PROFILE", "STATE", "SINCE", "SKILLS"}
}

// Rows implements TableRenderer.
func (al AgentList) Rows() [][]string {
	rows := make([][]string, 0, len(al))
	for _, a := range al {
		since := time.Unix(a.StateTime, 0).Format(time.RFC3339)
		rows = append(rows, []string{
			a.Login,
			a.Profile,
			a.State,
			since,
			cmdutil.EmptyOr(strings.Join(a.Skills, ","), "-"),
		})
	}
	return rows
}

func runWho(cmd *cobra.Command, args []string) error {
	client, cleanup, err := cmdutil.GetSessionClient(cmd.Context())
	if err != nil {
		return cmdutil.HandleAbort(err)
	}
	defer cleanup()

	agents, err := client.AvailableAgents(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, agents, len(agents) == 0, "No agents available.", AgentList(agents))
}
