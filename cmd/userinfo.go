package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var userinfoCmd = &cobra.Command{
	Use:   "userinfo",
	Short: "Fetch the userinfo claims for the current session",
	RunE:  runUserinfo,
}

func init() {
	rootCmd.AddCommand(userinfoCmd)
}

func runUserinfo(cmd *cobra.Command, args []string) error {
	client, err := newSessionClient()
	if err != nil {
		return err
	}
	defer client.Close()

	claims, err := client.UserInfo(cmd.Context())
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
