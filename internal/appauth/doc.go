// Package appauth implements an OAuth 2.0 / OpenID Connect
// relying-party session client: provider discovery, authorization code
// flow with PKCE, persisted token state, transparent single-flight
// refresh, revocation, and authorized request execution.
//
// A Client owns one account's session. All network operations are
// serialized on a background worker per client, so the package is safe
// for concurrent use. Token values are never logged.
package appauth
