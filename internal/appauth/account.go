package appauth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// oidcDiscoveryPath is the well-known location of the OIDC discovery
// document relative to the issuer.
const oidcDiscoveryPath = "/.well-known/openid-configuration"

// AccountConfig is the immutable description of an OAuth client:
// client id, redirect URIs, issuer, and requested scopes. Build one
// with NewAccountBuilder; validation happens at build time.
type AccountConfig struct {
	ClientID              string   `json:"client_id" yaml:"client_id"`
	RedirectURI           string   `json:"redirect_uri" yaml:"redirect_uri"`
	EndSessionRedirectURI string   `json:"end_session_redirect_uri" yaml:"end_session_redirect_uri"`
	IssuerURI             string   `json:"issuer_uri" yaml:"issuer_uri"`
	Scopes                []string `json:"scopes" yaml:"scopes"`
}

// DiscoveryURL returns the URL of the issuer's discovery document.
func (a *AccountConfig) DiscoveryURL() string {
	return strings.TrimSuffix(a.IssuerURI, "/") + oidcDiscoveryPath
}

// ScopeString returns the scopes as a space-delimited request value,
// preserving the configured order.
func (a *AccountConfig) ScopeString() string {
	return strings.Join(a.Scopes, " ")
}

// Hash returns a fingerprint of the configuration. Scope order is
// irrelevant, so scopes are sorted before hashing. A changed hash
// invalidates previously discovered metadata and stored tokens.
func (a *AccountConfig) Hash() string {
	scopes := append([]string(nil), a.Scopes...)
	sort.Strings(scopes)

	h := sha256.New()
	for _, field := range []string{
		a.ClientID,
		a.RedirectURI,
		a.EndSessionRedirectURI,
		a.IssuerURI,
		strings.Join(scopes, " "),
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AccountBuilder assembles and validates an AccountConfig.
type AccountBuilder struct {
	cfg      AccountConfig
	registry *RedirectRegistry
}

// NewAccountBuilder creates a builder that validates redirect scheme
// registration against the default registry.
func NewAccountBuilder() *AccountBuilder {
	return &AccountBuilder{registry: DefaultRegistry}
}

// ClientID sets the OAuth client id.
func (b *AccountBuilder) ClientID(id string) *AccountBuilder {
	b.cfg.ClientID = id
	return b
}

// RedirectURI sets the authorization redirect URI.
func (b *AccountBuilder) RedirectURI(uri string) *AccountBuilder {
	b.cfg.RedirectURI = uri
	return b
}

// EndSessionRedirectURI sets the post-logout redirect URI.
func (b *AccountBuilder) EndSessionRedirectURI(uri string) *AccountBuilder {
	b.cfg.EndSessionRedirectURI = uri
	return b
}

// IssuerURI sets the https issuer from which the discovery document is
// derived.
func (b *AccountBuilder) IssuerURI(uri string) *AccountBuilder {
	b.cfg.IssuerURI = uri
	return b
}

// Scopes sets the requested scope set.
func (b *AccountBuilder) Scopes(scopes ...string) *AccountBuilder {
	b.cfg.Scopes = append([]string(nil), scopes...)
	return b
}

// Registry overrides the redirect registry consulted at build time.
func (b *AccountBuilder) Registry(r *RedirectRegistry) *AccountBuilder {
	b.registry = r
	return b
}

// Build validates the configuration and returns it. All URIs must be
// absolute, hierarchical, and credential-free; the issuer must be
// https; the redirect scheme must be claimed by exactly one registered
// handler so another application cannot intercept the redirect.
func (b *AccountBuilder) Build() (*AccountConfig, error) {
	if b.cfg.ClientID == "" {
		return nil, &ConfigurationError{Field: "client_id", Reason: "must not be empty"}
	}
	if len(b.cfg.Scopes) == 0 {
		return nil, &ConfigurationError{Field: "scopes", Reason: "at least one scope is required"}
	}

	redirect, err := validateURI("redirect_uri", b.cfg.RedirectURI)
	if err != nil {
		return nil, err
	}
	if b.cfg.EndSessionRedirectURI != "" {
		if _, err := validateURI("end_session_redirect_uri", b.cfg.EndSessionRedirectURI); err != nil {
			return nil, err
		}
	}
	issuer, err := validateURI("issuer_uri", b.cfg.IssuerURI)
	if err != nil {
		return nil, err
	}
	if issuer.Scheme != "https" {
		return nil, &ConfigurationError{Field: "issuer_uri", Reason: "must use https"}
	}

	switch n := b.registry.HandlerCount(redirect.Scheme); {
	case n == 0:
		return nil, &ConfigurationError{
			Field:  "redirect_uri",
			Reason: "scheme " + redirect.Scheme + " has no registered handler",
			Err:    ErrRedirectNotRegistered,
		}
	case n > 1:
		return nil, &ConfigurationError{
			Field:  "redirect_uri",
			Reason: "scheme " + redirect.Scheme + " is claimed by multiple handlers",
			Err:    ErrAmbiguousRedirectHandler,
		}
	}

	cfg := b.cfg
	cfg.Scopes = append([]string(nil), b.cfg.Scopes...)
	return &cfg, nil
}

// validateURI checks that a URI is absolute, hierarchical, and carries
// no embedded credentials.
func validateURI(field, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, &ConfigurationError{Field: field, Reason: "must not be empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigurationError{Field: field, Reason: "not a valid URI", Err: err}
	}
	if u.Scheme == "" {
		return nil, &ConfigurationError{Field: field, Reason: "must be absolute"}
	}
	if u.Opaque != "" {
		return nil, &ConfigurationError{Field: field, Reason: "must be hierarchical"}
	}
	if u.User != nil {
		return nil, &ConfigurationError{Field: field, Reason: "must not contain credentials"}
	}
	return u, nil
}
