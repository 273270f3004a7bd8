package appauth

import (
	"context"
	"net/http"
	"net/url"

	"appauth/pkg/logging"
)

// TokenKind identifies which stored token an operation targets.
type TokenKind string

const (
	// AccessTokenKind selects the stored access token.
	AccessTokenKind TokenKind = "access_token"
	// RefreshTokenKind selects the stored refresh token.
	RefreshTokenKind TokenKind = "refresh_token"
)

// revoker talks to the provider's revocation endpoint.
type revoker struct {
	httpClient *http.Client
	userAgent  string
	store      *Store
}

// Revoke revokes the selected stored token at the provider. A token
// kind that is not present in the store is a no-op.
func (r *revoker) Revoke(ctx context.Context, account *AccountConfig, kind TokenKind) error {
	state, err := r.store.Current()
	if err != nil {
		return err
	}
	if state.Metadata == nil {
		return ErrNotConfigured
	}
	if state.Metadata.RevocationEndpoint == "" {
		return ErrNoRevocationEndpoint
	}
	if state.Tokens == nil {
		return nil
	}

	var token string
	switch kind {
	case RefreshTokenKind:
		token = state.Tokens.RefreshToken
	default:
		token = state.Tokens.AccessToken
	}
	if token == "" {
		return nil
	}

	return r.revokeToken(ctx, account, state.Metadata.RevocationEndpoint, token, kind)
}

// RevokeAll revokes the refresh token first, then the access token.
// Revoking the refresh token first matters: some providers cascade it
// to derived access tokens, and if it fails there is no point burning
// the access token revocation. Failure of either step aborts.
func (r *revoker) RevokeAll(ctx context.Context, account *AccountConfig) error {
	if err := r.Revoke(ctx, account, RefreshTokenKind); err != nil {
		return err
	}
	return r.Revoke(ctx, account, AccessTokenKind)
}

func (r *revoker) revokeToken(ctx context.Context, account *AccountConfig, endpoint, token string, kind TokenKind) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return &ConfigurationError{Field: "revocation_endpoint", Reason: "not a valid URL", Err: err}
	}
	query := u.Query()
	query.Set("token", token)
	query.Set("client_id", account.ClientID)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return &MalformedResponseError{Op: "revocation", Err: err}
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "revocation", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		logging.Debug("oauth", "Revoked %s", kind)
		return nil
	case http.StatusUnauthorized:
		return ErrInvalidClient
	default:
		return &RevocationError{StatusCode: resp.StatusCode}
	}
}
