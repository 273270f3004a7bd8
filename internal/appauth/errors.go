package appauth

import (
	"errors"
	"fmt"

	"appauth/pkg/oauth"
)

// Sentinel errors surfaced by the session client.
var (
	// ErrNotConfigured is returned when an operation needs server
	// metadata but discovery has not run yet.
	ErrNotConfigured = errors.New("server metadata not available, run discovery first")

	// ErrNoPendingRequest is returned when a redirect arrives with no
	// authorization request in flight.
	ErrNoPendingRequest = errors.New("no pending authorization request")

	// ErrAlreadyResolved is returned for duplicate redirect deliveries
	// against a request that has already produced its single outcome.
	ErrAlreadyResolved = errors.New("authorization request already resolved")

	// ErrCancelled is returned when an authorization flow is abandoned
	// before the browser delivers a result, or when the client is
	// closed with a flow in flight.
	ErrCancelled = errors.New("authorization flow cancelled")

	// ErrNoRefreshToken is returned when the access token is expired
	// and no refresh token is available; the caller must run a full
	// authorization flow.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrInvalidClient is returned when the revocation endpoint rejects
	// the client (HTTP 401).
	ErrInvalidClient = errors.New("revocation rejected: invalid client")

	// ErrNoRevocationEndpoint is returned when the discovered metadata
	// does not declare a revocation endpoint.
	ErrNoRevocationEndpoint = errors.New("server metadata declares no revocation endpoint")

	// ErrClientClosed is returned by operations submitted after Close.
	ErrClientClosed = errors.New("session client is closed")

	// ErrRedirectNotRegistered is returned at configuration time when
	// no handler claims the redirect URI scheme.
	ErrRedirectNotRegistered = errors.New("redirect URI scheme is not registered by any handler")

	// ErrAmbiguousRedirectHandler is returned at configuration time
	// when more than one handler claims the redirect URI scheme, which
	// would allow redirect hijacking.
	ErrAmbiguousRedirectHandler = errors.New("redirect URI scheme is claimed by multiple handlers")
)

// ConfigurationError indicates an invalid account configuration. It is
// fatal: the account must be rebuilt before the client can be used.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
	}
	return "invalid configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DiscoveryError indicates that fetching or parsing the OIDC discovery
// document failed. Discovery is never retried automatically.
type DiscoveryError struct {
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return "discovery failed: " + e.Reason
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// NetworkError indicates a transport-level failure. It is the only
// error class callers may reasonably retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MalformedResponseError indicates a non-conformant server response.
// Not retried: the server is misbehaving, not the network.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response during %s: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// TokenRequestError is a semantic OAuth failure from the token endpoint,
// carrying the RFC 6749 error code enumeration.
type TokenRequestError struct {
	Code        oauth.ErrorCode
	Description string
}

func (e *TokenRequestError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token request failed: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("token request failed: %s", e.Code)
}

// AuthorizationError is an error redirect from the authorization
// endpoint (the user denied access, the request was malformed, ...).
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
	}
	return "authorization failed: " + e.Code
}

// StateMismatchError indicates that a redirect carried a state value
// that does not match the pending authorization request. Any code in
// the redirect is discarded.
type StateMismatchError struct {
	Expected string
	Got      string
}

func (e *StateMismatchError) Error() string {
	return "state mismatch: authorization response does not match the pending request"
}

// IDTokenValidationError indicates that the ID token returned by the
// token endpoint failed validation. The whole token set is discarded
// and never persisted: the ID token is the identity assertion, so this
// fails closed even though an access token was received.
type IDTokenValidationError struct {
	Reason string
	Err    error
}

func (e *IDTokenValidationError) Error() string {
	return "ID token validation failed: " + e.Reason
}

func (e *IDTokenValidationError) Unwrap() error { return e.Err }

// RevocationError indicates a revocation endpoint failure other than
// HTTP 401 (which maps to ErrInvalidClient).
type RevocationError struct {
	StatusCode int
}

func (e *RevocationError) Error() string {
	return fmt.Sprintf("revocation failed with status %d", e.StatusCode)
}

// StorageError indicates that the persisted session record could not be
// written or read. Fatal for the session: the persisted and in-memory
// views may disagree, so the session must be treated as unrecoverable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// HTTPError classifies a non-2xx response to an authorized request.
// It is a result, not an authorization-layer failure: the request went
// out with a fresh token and the resource server rejected it.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("authorized request failed with status %d", e.StatusCode)
}
