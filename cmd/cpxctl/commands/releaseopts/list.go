package releaseopts

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/cmd/cpxctl/cmdutil"
	"github.com/opencpx/cpx/pkg/apiclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List release options",
	Long: `List the release reasons configured on the CPX server.

The bias column shows how a release reason counts in utilisation
reporting: positive counts as working time, negative as personal time.

Examples:
  # List release options as table
  cpxctl release-opts list

  # List as JSON
  cpxctl release-opts list -o json`,
	RunE: runList,
}

// OptionList is a list of release options for table rendering.
type OptionList []apiclient.ReleaseOption

// Headers implements TableRenderer.
func (ol OptionList) Headers() []string {
	return []string{"ID", "LABEL", "BIAS"}
}

// Rows implements TableRenderer.
func (ol OptionList) Rows() [][]string {
	rows := make([][]string, 0, len(ol))
	for _, o := range ol {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(o.ID), 10),
			o.Label,
			strconv.Itoa(o.Bias),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	opts, err := client.ReleaseOptions(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list release options: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, opts, len(opts) == 0, "No release options configured.", OptionList(opts))
}
