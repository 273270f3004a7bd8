package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the access token if it is expired or near expiry",
	RunE:  runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	client, err := newSessionClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.EnsureFreshToken(cmd.Context()); err != nil {
		return err
	}

	tokens := client.Tokens()
	if tokens != nil && !tokens.ExpiresAt.IsZero() {
		fmt.Printf("Access token valid until %s\n", tokens.ExpiresAt.Local().Format(time.RFC1123))
	} else {
		fmt.Println("Access token is fresh.")
	}
	return nil
}
