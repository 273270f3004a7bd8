package cmd

import (
	"fmt"

	"appauth/internal/appauth"

	"github.com/spf13/cobra"
)

var revokeAll bool

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke the stored access token at the provider",
	Long: `Revoke the stored access token at the provider's revocation
endpoint. With --all, the refresh token is revoked first, then the
access token.

The local session is kept; use logout to clear it.`,
	RunE: runRevoke,
}

func init() {
	revokeCmd.Flags().BoolVar(&revokeAll, "all", false, "Revoke the refresh token as well")
	rootCmd.AddCommand(revokeCmd)
}

func runRevoke(cmd *cobra.Command, args []string) error {
	client, err := newSessionClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if revokeAll {
		if err := client.RevokeAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Revoked refresh and access tokens.")
		return nil
	}

	if err := client.Revoke(cmd.Context(), appauth.AccessTokenKind); err != nil {
		return err
	}
	fmt.Println("Revoked access token.")
	return nil
}
