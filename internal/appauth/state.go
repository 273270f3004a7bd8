package appauth

import (
	"time"

	"golang.org/x/oauth2"

	"appauth/pkg/oauth"
)

// tokenExpiryMargin is subtracted from the access token lifetime when
// checking freshness, covering clock skew and request latency.
const tokenExpiryMargin = 30 * time.Second

// TokenSet holds the tokens of the live session. Exactly one TokenSet
// exists per session; it is replaced as a whole, never edited in place.
type TokenSet struct {
	// AccessToken is the opaque bearer token.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// IDToken is the validated OIDC identity assertion (optional).
	IDToken string `json:"id_token,omitempty"`

	// ExpiresAt is the access token expiry instant, computed from the
	// issuance time plus the server-declared lifetime.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Scope is the granted scope string.
	Scope string `json:"scope,omitempty"`

	// ObtainedAt is when the token set was issued.
	ObtainedAt time.Time `json:"obtained_at,omitempty"`
}

// newTokenSet builds a TokenSet from a token endpoint response.
func newTokenSet(resp *oauth.TokenResponse, now time.Time) *TokenSet {
	ts := &TokenSet{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		RefreshToken: resp.RefreshToken,
		IDToken:      resp.IDToken,
		Scope:        resp.Scope,
		ObtainedAt:   now,
	}
	if resp.ExpiresIn > 0 {
		ts.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return ts
}

// IsExpired reports whether the access token is expired at now, or
// will expire within the given margin. Tokens without an expiry never
// expire.
func (t *TokenSet) IsExpired(now time.Time, margin time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(margin).After(t.ExpiresAt)
}

// clone returns a copy of the token set.
func (t *TokenSet) clone() *TokenSet {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// ToOAuth2Token converts the token set to a golang.org/x/oauth2 token
// for interoperability with oauth2-aware HTTP clients.
func (t *TokenSet) ToOAuth2Token() *oauth2.Token {
	if t == nil {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
	if t.IDToken != "" {
		tok = tok.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}
	return tok
}

// SessionState is the whole persisted unit: account configuration,
// discovered server metadata, and the current token set. It is mutated
// only through whole-state replacement in the Store.
type SessionState struct {
	// Account is the immutable client configuration.
	Account *AccountConfig

	// Metadata is the discovered server configuration; nil until a
	// discovery fetch succeeds. Invalidated when the account hash
	// changes.
	Metadata *oauth.Metadata

	// Tokens is the live token set; nil when unauthenticated.
	Tokens *TokenSet
}

// Authorized reports whether the session holds an access token.
func (s *SessionState) Authorized() bool {
	return s != nil && s.Tokens != nil && s.Tokens.AccessToken != ""
}

// clone returns a copy suitable for read-modify-write: the account and
// metadata are shared (immutable once set), the token set is copied.
func (s *SessionState) clone() *SessionState {
	return &SessionState{
		Account:  s.Account,
		Metadata: s.Metadata,
		Tokens:   s.Tokens.clone(),
	}
}
