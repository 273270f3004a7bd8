package cmd

import (
	"fmt"
	"time"

	"appauth/internal/appauth"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

var (
	loginHint  string
	loginExtra map[string]string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in via the system browser",
	Long: `Sign in to the configured provider using the OAuth authorization
code flow with PKCE.

A browser window opens at the provider's login page; after you
authenticate, the provider redirects back to a local listener and the
session is stored on disk.

Examples:
  appauth login
  appauth login --login-hint user@example.com
  appauth login --param prompt=consent`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginHint, "login-hint", "", "Pre-fill the provider's login form with this identifier")
	loginCmd.Flags().StringToStringVar(&loginExtra, "param", nil, "Additional authorization request parameters (key=value)")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	client, err := newSessionClient()
	if err != nil {
		return err
	}
	defer client.Close()

	payload := &appauth.AuthenticationPayload{
		LoginHint:   loginHint,
		ExtraParams: loginExtra,
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for browser sign-in..."
	s.Start()

	tokens, err := client.Authorize(cmd.Context(), payload)
	s.Stop()
	if err != nil {
		return err
	}

	fmt.Println("Signed in.")
	if !tokens.ExpiresAt.IsZero() {
		fmt.Printf("Access token valid until %s\n", tokens.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}
