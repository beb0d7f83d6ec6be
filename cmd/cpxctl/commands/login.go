package commands

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/cmd/cpxctl/cmdutil"
	"github.com/opencpx/cpx/internal/cli/credentials"
	"github.com/opencpx/cpx/internal/cli/prompt"
	"github.com/opencpx/cpx/pkg/apiclient"
)

var (
	loginServer   string
	loginUsername string
	loginPassword string
	loginContext  string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify credentials and save a server context",
	Long: `Verify credentials against a CPX server and save the server URL and
username as the current context.

The agent API uses cookie sessions, so no token is stored: commands that
need a session prompt for the password and log in for that invocation.
Login here proves the credentials work and records where to connect.

Examples:
  # First login to a server
  cpxctl login --server http://localhost:5050 --username demo

  # Login with password on the command line (less secure)
  cpxctl login --server http://localhost:5050 -u demo -p demo

  # Re-verify the stored context
  cpxctl login`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginServer, "server", "", "Server URL (required on first login)")
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Agent login")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password")
	loginCmd.Flags().StringVar(&loginContext, "context", "", "Context name to save under (default: current or \"default\")")
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	serverURL := loginServer
	if serverURL == "" {
		cur, err := store.GetCurrentContext()
		if err != nil || cur.ServerURL == "" {
			return fmt.Errorf("no server URL specified and no saved context found\n\n" +
				"Specify server URL:\n" +
				"  cpxctl login --server http://localhost:5050")
		}
		serverURL = cur.ServerURL
	}

	parsed, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
		serverURL = parsed.String()
	}

	username := loginUsername
	if username == "" {
		username, err = prompt.InputRequired("Username")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	password := loginPassword
	if password == "" {
		password, err = prompt.Password("Password")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	client, err := apiclient.New(serverURL)
	if err != nil {
		return err
	}

	fmt.Printf("Logging in to %s as %s...\n", serverURL, username)
	reply, err := client.Login(cmd.Context(), username, password, apiclient.LoginOptions{})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	_ = client.Logout(context.Background())

	contextName := loginContext
	if contextName == "" {
		contextName = store.GetCurrentContextName()
	}
	if contextName == "" {
		contextName = "default"
	}

	if err := store.SetContext(contextName, &credentials.Context{
		ServerURL: serverURL,
		Username:  username,
	}); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}

	fmt.Printf("Logged in successfully as %s (profile: %s)\n", username, reply.Profile)
	fmt.Printf("Context: %s\n", contextName)
	fmt.Printf("Saved to: %s\n", store.ConfigPath())

	return nil
}
