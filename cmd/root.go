package cmd

import (
	"errors"
	"fmt"
	"os"

	"appauth/internal/appauth"
	"appauth/internal/config"
	"appauth/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates no valid session is available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

var (
	configPath string
	debug      bool
)

// rootCmd is the entry point when the application is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "appauth",
	Short: "Authenticate against an OpenID Connect provider",
	Long: `appauth manages an OAuth 2.0 / OpenID Connect session for a
registered client: browser-based login with PKCE, persisted tokens,
transparent refresh, and revocation.`,
	// SilenceUsage prevents Cobra from printing the usage message on
	// errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if debug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.config/appauth/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "appauth version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to semantic exit codes for scripting.
func getExitCode(err error) int {
	if errors.Is(err, appauth.ErrNoRefreshToken) || errors.Is(err, appauth.ErrNotConfigured) {
		return ExitCodeAuthRequired
	}

	var authErr *appauth.AuthorizationError
	if errors.As(err, &authErr) {
		return ExitCodeAuthFailed
	}
	var stateErr *appauth.StateMismatchError
	if errors.As(err, &stateErr) {
		return ExitCodeAuthFailed
	}
	var idErr *appauth.IDTokenValidationError
	if errors.As(err, &idErr) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

// newSessionClient loads the configuration and builds a client with a
// loopback redirect dispatcher, shared by all subcommands.
func newSessionClient() (*appauth.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	registry := appauth.NewRedirectRegistry()
	dispatcher := appauth.NewLoopbackDispatcher(cfg.CallbackPort, registry)

	account, err := appauth.NewAccountBuilder().
		ClientID(cfg.ClientID).
		RedirectURI(cfg.RedirectURI).
		EndSessionRedirectURI(cfg.EndSessionRedirectURI).
		IssuerURI(cfg.IssuerURI).
		Scopes(cfg.Scopes...).
		Registry(registry).
		Build()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return appauth.NewClient(account,
		appauth.WithDispatcher(dispatcher),
		appauth.WithStorePath(cfg.StoragePath),
	)
}
