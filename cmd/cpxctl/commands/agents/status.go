package agents

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/cmd/cpxctl/cmdutil"
	"github.com/opencpx/cpx/internal/cli/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Dump the channel property registry",
	Long: `Dump the channel property registry: every live channel with its agent,
state, and call metadata. Requires a supervisor account.

Examples:
  cpxctl agents status
  cpxctl agents status -o json`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, cleanup, err := cmdutil.GetSessionClient(cmd.Context())
	if err != nil {
		return cmdutil.HandleAbort(err)
	}
	defer cleanup()

	raw, err := client.SupervisorStatus(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format == output.FormatYAML {
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			return err
		}
		return output.PrintYAML(os.Stdout, data)
	}

	var pretty any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		return err
	}
	return output.PrintJSON(os.Stdout, pretty)
}
