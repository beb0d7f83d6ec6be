// Package cmdutil provides shared utilities for cpxctl commands.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/opencpx/cpx/internal/cli/credentials"
	"github.com/opencpx/cpx/internal/cli/output"
	"github.com/opencpx/cpx/internal/cli/prompt"
	"github.com/opencpx/cpx/pkg/apiclient"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL string
	Output    string
	NoColor   bool
	Verbose   bool
}

// ResolveServerURL returns the server URL from the --server flag or the
// current context.
func ResolveServerURL() (string, error) {
	if Flags.ServerURL != "" {
		return Flags.ServerURL, nil
	}

	store, err := credentials.NewStore()
	if err != nil {
		return "", fmt.Errorf("failed to initialize credential store: %w", err)
	}
	ctx, err := store.GetCurrentContext()
	if err != nil || ctx.ServerURL == "" {
		return "", fmt.Errorf("no server URL configured. Run 'cpxctl login --server <url>' first")
	}
	return ctx.ServerURL, nil
}

// GetClient returns an API client for the configured server. The agent
// API is cookie-based: the client carries no credentials, and public
// catalog calls need none.
func GetClient() (*apiclient.Client, error) {
	url, err := ResolveServerURL()
	if err != nil {
		return nil, err
	}
	return apiclient.New(url)
}

// GetSessionClient returns an API client holding a live session. The
// session exists for this invocation only: the username comes from the
// current context (or the --server flag plus a prompt), the password is
// prompted, and the returned cleanup logs the session out.
func GetSessionClient(ctx context.Context) (*apiclient.Client, func(), error) {
	client, err := GetClient()
	if err != nil {
		return nil, nil, err
	}

	username := ""
	if store, err := credentials.NewStore(); err == nil {
		if cur, err := store.GetCurrentContext(); err == nil {
			username = cur.Username
		}
	}
	if username == "" {
		username, err = prompt.InputRequired("Username")
		if err != nil {
			return nil, nil, err
		}
	}

	password, err := prompt.Password(fmt.Sprintf("Password for %s", username))
	if err != nil {
		return nil, nil, err
	}

	if _, err := client.Login(ctx, username, password, apiclient.LoginOptions{}); err != nil {
		return nil, nil, fmt.Errorf("login failed: %w", err)
	}

	cleanup := func() { _ = client.Logout(context.Background()) }
	return client, cleanup, nil
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// IsColorDisabled returns whether color output is disabled.
func IsColorDisabled() bool {
	return Flags.NoColor
}

// IsVerbose returns whether verbose output is enabled.
func IsVerbose() bool {
	return Flags.Verbose
}

// PrintOutput prints data in the specified format (JSON, YAML, or table).
// For table format, it displays emptyMsg if data is empty, otherwise uses
// the tableRenderer.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintResource prints a resource in the specified format. For table
// format, it uses the provided tableRenderer.
func PrintResource(w io.Writer, data any, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintSuccess prints a success message if the output format is table.
func PrintSuccess(msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	printer := output.NewPrinter(os.Stdout, format, !IsColorDisabled())
	printer.Success(msg)
}

// RunDeleteWithConfirmation prompts for confirmation (unless force is
// true) and runs deleteFn.
func RunDeleteWithConfirmation(resourceType, name string, force bool, deleteFn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete %s '%s'?", resourceType, name), force)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("\nAborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	if err := deleteFn(); err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("%s '%s' deleted successfully", resourceType, name))
	return nil
}

// BoolToYesNo converts a boolean to "yes" or "no" string.
func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// EmptyOr returns the value if not empty, otherwise returns the fallback.
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// HandleAbort checks if error is an abort (Ctrl+C) and prints a message.
// Returns nil for abort (user cancelled), otherwise the original error.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}
