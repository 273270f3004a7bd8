package cmd

import (
	"fmt"

	"appauth/pkg/logging"

	"github.com/spf13/cobra"
)

var logoutRevoke bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the local session",
	Long: `Clear the stored token set. Discovered provider metadata is kept
so the next login skips re-discovery.

With --revoke, tokens are also revoked at the provider first.
Revocation is best-effort: the local session is cleared even when the
provider rejects the revocation.`,
	RunE: runLogout,
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutRevoke, "revoke", false, "Also revoke tokens at the provider")
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	client, err := newSessionClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if logoutRevoke {
		if err := client.RevokeAll(cmd.Context()); err != nil {
			logging.Warn("cli", "Revocation failed, clearing local session anyway: %v", err)
		}
	}

	if err := client.SignOut(); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}
