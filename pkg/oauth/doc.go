// Package oauth contains the protocol-level building blocks shared by
// the session client: PKCE and state/nonce generation, OIDC discovery
// and token endpoint wire types, and the OAuth 2.0 token error code
// enumeration.
//
// The package is deliberately free of any session or storage concerns;
// orchestration lives in internal/appauth.
package oauth
