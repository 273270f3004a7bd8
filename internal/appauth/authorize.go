package appauth

import (
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/google/uuid"

	"appauth/pkg/oauth"
)

// reservedAuthParams are authorization request parameters owned by the
// flow itself. AuthenticationPayload extra parameters must not collide
// with them.
var reservedAuthParams = map[string]struct{}{
	"client_id":             {},
	"redirect_uri":          {},
	"response_type":         {},
	"scope":                 {},
	"state":                 {},
	"nonce":                 {},
	"code_challenge":        {},
	"code_challenge_method": {},
}

// AuthenticationPayload carries per-login customization of the
// authorization request.
type AuthenticationPayload struct {
	// LoginHint pre-fills the provider's login form.
	LoginHint string

	// State overrides the generated state value. Leave empty to let the
	// flow generate a random one.
	State string

	// ExtraParams are additional authorization request parameters, for
	// example prompt or acr_values.
	ExtraParams map[string]string
}

func (p *AuthenticationPayload) validate() error {
	if p == nil {
		return nil
	}
	for name := range p.ExtraParams {
		if _, reserved := reservedAuthParams[name]; reserved {
			return &ConfigurationError{Field: "extra_params", Reason: fmt.Sprintf("parameter %q is managed by the flow and cannot be overridden", name)}
		}
	}
	return nil
}

// AuthorizationRequest holds everything needed to build an
// authorization URL and later correlate and exchange its response.
type AuthorizationRequest struct {
	ID            string
	ClientID      string
	RedirectURI   string
	Scope         string
	State         string
	Nonce         string
	PKCE          *oauth.PKCEChallenge
	LoginHint     string
	ExtraParams   map[string]string
	AuthEndpoint  string
	TokenEndpoint string
}

// newAuthorizationRequest builds a request from the account, the
// discovered metadata, and an optional payload.
func newAuthorizationRequest(account *AccountConfig, metadata *oauth.Metadata, payload *AuthenticationPayload) (*AuthorizationRequest, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}

	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return nil, err
	}

	state := ""
	loginHint := ""
	var extra map[string]string
	if payload != nil {
		state = payload.State
		loginHint = payload.LoginHint
		if len(payload.ExtraParams) > 0 {
			extra = make(map[string]string, len(payload.ExtraParams))
			for k, v := range payload.ExtraParams {
				extra[k] = v
			}
		}
	}
	if state == "" {
		state, err = oauth.GenerateState()
		if err != nil {
			return nil, err
		}
	}

	nonce, err := oauth.GenerateNonce()
	if err != nil {
		return nil, err
	}

	return &AuthorizationRequest{
		ID:            uuid.NewString(),
		ClientID:      account.ClientID,
		RedirectURI:   account.RedirectURI,
		Scope:         account.ScopeString(),
		State:         state,
		Nonce:         nonce,
		PKCE:          pkce,
		LoginHint:     loginHint,
		ExtraParams:   extra,
		AuthEndpoint:  metadata.AuthorizationEndpoint,
		TokenEndpoint: metadata.TokenEndpoint,
	}, nil
}

// URL renders the authorization endpoint URL with all request
// parameters attached.
func (r *AuthorizationRequest) URL() (string, error) {
	u, err := url.Parse(r.AuthEndpoint)
	if err != nil {
		return "", &ConfigurationError{Field: "authorization_endpoint", Reason: "not a valid URL", Err: err}
	}

	query := u.Query()
	query.Set("response_type", "code")
	query.Set("client_id", r.ClientID)
	query.Set("redirect_uri", r.RedirectURI)
	query.Set("scope", r.Scope)
	query.Set("state", r.State)
	query.Set("nonce", r.Nonce)
	query.Set("code_challenge", r.PKCE.CodeChallenge)
	query.Set("code_challenge_method", r.PKCE.CodeChallengeMethod)
	if r.LoginHint != "" {
		query.Set("login_hint", r.LoginHint)
	}
	for name, value := range r.ExtraParams {
		query.Set(name, value)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// PendingRequest tracks an in-flight authorization request until its
// redirect is consumed. Resolution is single-shot: the first redirect
// (or cancellation) wins and later deliveries are rejected.
type PendingRequest struct {
	Request  *AuthorizationRequest
	resolved atomic.Bool
}

func newPendingRequest(req *AuthorizationRequest) *PendingRequest {
	return &PendingRequest{Request: req}
}

// resolve claims the request. It returns ErrAlreadyResolved if the
// request was already completed or cancelled.
func (p *PendingRequest) resolve() error {
	if !p.resolved.CompareAndSwap(false, true) {
		return ErrAlreadyResolved
	}
	return nil
}

// Resolved reports whether the request has been consumed.
func (p *PendingRequest) Resolved() bool {
	return p.resolved.Load()
}

// matchState verifies the redirect state against the request, claiming
// the request first so a forged duplicate cannot race a valid one.
func (p *PendingRequest) matchState(got string) error {
	if err := p.resolve(); err != nil {
		return err
	}
	if got != p.Request.State {
		return &StateMismatchError{Expected: p.Request.State, Got: got}
	}
	return nil
}
