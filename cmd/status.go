package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newSessionClient()
	if err != nil {
		return err
	}
	defer client.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Field", "Value"})

	tokens := client.Tokens()
	if tokens == nil {
		t.AppendRow(table.Row{"Session", "not authenticated"})
		t.Render()
		return nil
	}

	t.AppendRow(table.Row{"Session", "authenticated"})
	if tokens.ExpiresAt.IsZero() {
		t.AppendRow(table.Row{"Access token", "no expiry reported"})
	} else if time.Now().Before(tokens.ExpiresAt) {
		t.AppendRow(table.Row{"Access token", fmt.Sprintf("valid until %s", tokens.ExpiresAt.Local().Format(time.RFC1123))})
	} else {
		t.AppendRow(table.Row{"Access token", "expired"})
	}
	t.AppendRow(table.Row{"Refresh token", yesNo(tokens.RefreshToken != "")})
	t.AppendRow(table.Row{"ID token", yesNo(tokens.IDToken != "")})
	if tokens.Scope != "" {
		t.AppendRow(table.Row{"Scope", tokens.Scope})
	}
	t.Render()
	return nil
}

func yesNo(present bool) string {
	if present {
		return "present"
	}
	return "absent"
}
