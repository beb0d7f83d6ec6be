// Package commands implements the CLI commands for the cpxctl client.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/cmd/cpxctl/cmdutil"
	agentscmd "github.com/opencpx/cpx/cmd/cpxctl/commands/agents"
	brandcmd "github.com/opencpx/cpx/cmd/cpxctl/commands/brand"
	ctxcmd "github.com/opencpx/cpx/cmd/cpxctl/commands/context"
	queuecmd "github.com/opencpx/cpx/cmd/cpxctl/commands/queue"
	releasecmd "github.com/opencpx/cpx/cmd/cpxctl/commands/releaseopts"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cpxctl",
	Short: "CPX Control - Remote management client",
	Long: `cpxctl is the command-line client for inspecting and managing CPX
servers remotely.

Use this tool to list queues, brands, and release options, to register
queues in the cluster, and to observe agent availability through the
agent API.

Use "cpxctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Sync flags to cmdutil.Flags for subcommands
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "Server URL (overrides stored context)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(ctxcmd.Cmd)
	rootCmd.AddCommand(queuecmd.Cmd)
	rootCmd.AddCommand(brandcmd.Cmd)
	rootCmd.AddCommand(releasecmd.Cmd)
	rootCmd.AddCommand(agentscmd.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
