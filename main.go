package main

import (
	"appauth/cmd"
	"appauth/internal/appauth"
)

func main() {
	cmd.SetVersion(appauth.Version)
	cmd.Execute()
}
