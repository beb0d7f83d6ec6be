package brand

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/cmd/cpxctl/cmdutil"
	"github.com/opencpx/cpx/pkg/apiclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured brands",
	Long: `List the client brands configured on the CPX server.

Examples:
  # List brands as table
  cpxctl brands list

  # List as JSON
  cpxctl brands list -o json`,
	RunE: runList,
}

// BrandList is a list of brands for table rendering.
type BrandList []apiclient.Brand

// Headers implements TableRenderer.
func (bl BrandList) Headers() []string {
	return []string{"ID", "LABEL"}
}

// Rows implements TableRenderer.
func (bl BrandList) Rows() [][]string {
	rows := make([][]string, 0, len(bl))
	for _, b := range bl {
		rows = append(rows, []string{b.ID, b.Label})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	brands, err := client.BrandList(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list brands: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, brands, len(brands) == 0, "No brands configured.", BrandList(brands))
}
