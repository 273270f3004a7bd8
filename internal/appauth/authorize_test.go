package appauth

import (
	"errors"
	"net/url"
	"testing"

	"appauth/pkg/oauth"
)

func testMetadata(issuer string) *oauth.Metadata {
	return &oauth.Metadata{
		Issuer:                issuer,
		AuthorizationEndpoint: issuer + "/authorize",
		TokenEndpoint:         issuer + "/token",
	}
}

func TestAuthorizationRequestURL(t *testing.T) {
	account, err := NewAccountBuilder().
		ClientID("abc").
		RedirectURI("app:/cb").
		IssuerURI("https://issuer.example.com").
		Scopes("openid", "profile").
		Registry(testRegistry(t, "app")).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	req, err := newAuthorizationRequest(account, testMetadata("https://issuer.example.com"), nil)
	if err != nil {
		t.Fatalf("newAuthorizationRequest failed: %v", err)
	}

	rawURL, err := req.URL()
	if err != nil {
		t.Fatalf("URL failed: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	query := u.Query()

	if got := query.Get("response_type"); got != "code" {
		t.Errorf("response_type = %q", got)
	}
	if got := query.Get("client_id"); got != "abc" {
		t.Errorf("client_id = %q", got)
	}
	if got := query.Get("redirect_uri"); got != "app:/cb" {
		t.Errorf("redirect_uri = %q", got)
	}
	if got := query.Get("scope"); got != "openid profile" {
		t.Errorf("scope = %q", got)
	}
	if got := query.Get("code_challenge_method"); got != "S256" {
		t.Errorf("code_challenge_method = %q", got)
	}
	if query.Get("state") == "" || query.Get("nonce") == "" || query.Get("code_challenge") == "" {
		t.Error("state, nonce and code_challenge must all be present")
	}
	if got := oauth.DeriveChallenge(req.PKCE.CodeVerifier); got != query.Get("code_challenge") {
		t.Error("code_challenge does not derive from the request's verifier")
	}
}

func TestAuthorizationRequestPayload(t *testing.T) {
	account := testAccount(t, "https://issuer.example.com")
	metadata := testMetadata("https://issuer.example.com")

	t.Run("login hint and extra params", func(t *testing.T) {
		req, err := newAuthorizationRequest(account, metadata, &AuthenticationPayload{
			LoginHint:   "user@example.com",
			ExtraParams: map[string]string{"prompt": "consent"},
		})
		if err != nil {
			t.Fatalf("newAuthorizationRequest failed: %v", err)
		}
		rawURL, err := req.URL()
		if err != nil {
			t.Fatalf("URL failed: %v", err)
		}
		u, _ := url.Parse(rawURL)
		if got := u.Query().Get("login_hint"); got != "user@example.com" {
			t.Errorf("login_hint = %q", got)
		}
		if got := u.Query().Get("prompt"); got != "consent" {
			t.Errorf("prompt = %q", got)
		}
	})

	t.Run("caller-supplied state", func(t *testing.T) {
		req, err := newAuthorizationRequest(account, metadata, &AuthenticationPayload{State: "fixed-state"})
		if err != nil {
			t.Fatalf("newAuthorizationRequest failed: %v", err)
		}
		if req.State != "fixed-state" {
			t.Errorf("state = %q", req.State)
		}
	})

	t.Run("reserved extra param rejected", func(t *testing.T) {
		_, err := newAuthorizationRequest(account, metadata, &AuthenticationPayload{
			ExtraParams: map[string]string{"code_challenge": "evil"},
		})
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigurationError, got %v", err)
		}
	})
}

func TestAuthorizationRequestRandomness(t *testing.T) {
	account := testAccount(t, "https://issuer.example.com")
	metadata := testMetadata("https://issuer.example.com")

	a, err := newAuthorizationRequest(account, metadata, nil)
	if err != nil {
		t.Fatalf("newAuthorizationRequest failed: %v", err)
	}
	b, err := newAuthorizationRequest(account, metadata, nil)
	if err != nil {
		t.Fatalf("newAuthorizationRequest failed: %v", err)
	}

	if a.State == b.State {
		t.Error("state must be unique per request")
	}
	if a.Nonce == b.Nonce {
		t.Error("nonce must be unique per request")
	}
	if a.PKCE.CodeVerifier == b.PKCE.CodeVerifier {
		t.Error("verifier must be unique per request")
	}
	if a.ID == b.ID {
		t.Error("request id must be unique")
	}
}

func TestPendingRequestResolution(t *testing.T) {
	account := testAccount(t, "https://issuer.example.com")
	metadata := testMetadata("https://issuer.example.com")

	newPending := func(t *testing.T) *PendingRequest {
		req, err := newAuthorizationRequest(account, metadata, nil)
		if err != nil {
			t.Fatalf("newAuthorizationRequest failed: %v", err)
		}
		return newPendingRequest(req)
	}

	t.Run("state match consumes the request", func(t *testing.T) {
		pending := newPending(t)
		if err := pending.matchState(pending.Request.State); err != nil {
			t.Fatalf("matchState failed: %v", err)
		}
		if !pending.Resolved() {
			t.Error("request should be resolved after a match")
		}
	})

	t.Run("state mismatch", func(t *testing.T) {
		pending := newPending(t)
		err := pending.matchState("wrong-state")
		var mismatch *StateMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected StateMismatchError, got %v", err)
		}
	})

	t.Run("duplicate delivery rejected", func(t *testing.T) {
		pending := newPending(t)
		if err := pending.matchState(pending.Request.State); err != nil {
			t.Fatalf("first matchState failed: %v", err)
		}
		if err := pending.matchState(pending.Request.State); !errors.Is(err, ErrAlreadyResolved) {
			t.Errorf("expected ErrAlreadyResolved, got %v", err)
		}
	})
}
