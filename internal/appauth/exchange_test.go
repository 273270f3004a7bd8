package appauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appauth/pkg/oauth"
)

func makeIDToken(t *testing.T, issuer, audience, nonce string, expiresAt time.Time) string {
	t.Helper()
	builder := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{audience}).
		Subject("user-1").
		IssuedAt(time.Now()).
		Expiration(expiresAt)
	if nonce != "" {
		builder = builder.Claim("nonce", nonce)
	}
	token, err := builder.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte("test-key")))
	require.NoError(t, err)
	return string(signed)
}

func newTestRequester(client *http.Client) *tokenRequester {
	return &tokenRequester{httpClient: client, userAgent: "test", now: time.Now}
}

func newExchangeRequest(t *testing.T, account *AccountConfig, tokenEndpoint string) *AuthorizationRequest {
	t.Helper()
	metadata := testMetadata(account.IssuerURI)
	metadata.TokenEndpoint = tokenEndpoint
	req, err := newAuthorizationRequest(account, metadata, nil)
	require.NoError(t, err)
	return req
}

func TestExchangeCode(t *testing.T) {
	var issuer string
	var gotForm map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}

		account := testAccount(t, issuer)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "AT1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "RT1",
			"id_token":      makeIDToken(t, issuer, account.ClientID, r.PostForm.Get("nonce"), time.Now().Add(time.Hour)),
			"scope":         "openid profile",
		})
	})
	server := httptest.NewTLSServer(mux)
	defer server.Close()
	issuer = server.URL

	account := testAccount(t, issuer)
	requester := newTestRequester(server.Client())
	req := newExchangeRequest(t, account, issuer+"/token")

	// The stub endpoint cannot know the request's nonce, so skip the
	// nonce check for this scenario.
	req.Nonce = ""

	resp, err := requester.exchangeCode(context.Background(), account, req, "code-1")
	require.NoError(t, err)

	assert.Equal(t, "AT1", resp.AccessToken)
	assert.Equal(t, "RT1", resp.RefreshToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	assert.Equal(t, "authorization_code", gotForm["grant_type"])
	assert.Equal(t, "code-1", gotForm["code"])
	assert.Equal(t, account.ClientID, gotForm["client_id"])
	assert.Equal(t, account.RedirectURI, gotForm["redirect_uri"])
	assert.Equal(t, req.PKCE.CodeVerifier, gotForm["code_verifier"])
}

func TestExchangeCodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(*testing.T, error)
	}{
		{
			name:   "oauth error response",
			status: http.StatusBadRequest,
			body:   `{"error": "invalid_grant", "error_description": "code expired"}`,
			check: func(t *testing.T, err error) {
				var reqErr *TokenRequestError
				require.ErrorAs(t, err, &reqErr)
				assert.Equal(t, oauth.ErrorCodeInvalidGrant, reqErr.Code)
				assert.Equal(t, "code expired", reqErr.Description)
			},
		},
		{
			name:   "error body with HTTP 200",
			status: http.StatusOK,
			body:   `{"error": "invalid_grant", "error_description": "code expired"}`,
			check: func(t *testing.T, err error) {
				var reqErr *TokenRequestError
				require.ErrorAs(t, err, &reqErr)
				assert.Equal(t, oauth.ErrorCodeInvalidGrant, reqErr.Code)
				assert.Equal(t, "code expired", reqErr.Description)
			},
		},
		{
			name:   "unknown error code folds to other",
			status: http.StatusBadRequest,
			body:   `{"error": "server_meltdown"}`,
			check: func(t *testing.T, err error) {
				var reqErr *TokenRequestError
				require.ErrorAs(t, err, &reqErr)
				assert.Equal(t, oauth.ErrorCodeOther, reqErr.Code)
			},
		},
		{
			name:   "unparseable error body",
			status: http.StatusInternalServerError,
			body:   "boom",
			check: func(t *testing.T, err error) {
				var reqErr *TokenRequestError
				require.ErrorAs(t, err, &reqErr)
				assert.Equal(t, oauth.ErrorCodeOther, reqErr.Code)
			},
		},
		{
			name:   "malformed success body",
			status: http.StatusOK,
			body:   "{nope",
			check: func(t *testing.T, err error) {
				var malformed *MalformedResponseError
				require.ErrorAs(t, err, &malformed)
			},
		},
		{
			name:   "missing access token",
			status: http.StatusOK,
			body:   `{"token_type": "Bearer"}`,
			check: func(t *testing.T, err error) {
				var malformed *MalformedResponseError
				require.ErrorAs(t, err, &malformed)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()

			account := testAccount(t, server.URL)
			requester := newTestRequester(server.Client())
			req := newExchangeRequest(t, account, server.URL+"/token")

			_, err := requester.exchangeCode(context.Background(), account, req, "code-1")
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestValidateIDToken(t *testing.T) {
	issuer := "https://issuer.example.com"
	account := testAccount(t, issuer)
	now := time.Now()
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		token   string
		nonce   string
		wantErr string
	}{
		{
			name:  "valid",
			token: makeIDToken(t, issuer, account.ClientID, "n1", future),
			nonce: "n1",
		},
		{
			name:  "trailing slash issuer accepted",
			token: makeIDToken(t, issuer+"/", account.ClientID, "n1", future),
			nonce: "n1",
		},
		{
			name:  "no nonce expected",
			token: makeIDToken(t, issuer, account.ClientID, "", future),
		},
		{
			name:    "garbage token",
			token:   "not-a-jwt",
			wantErr: "parse",
		},
		{
			name:    "issuer mismatch",
			token:   makeIDToken(t, "https://other.example.com", account.ClientID, "n1", future),
			nonce:   "n1",
			wantErr: "issuer",
		},
		{
			name:    "audience mismatch",
			token:   makeIDToken(t, issuer, "someone-else", "n1", future),
			nonce:   "n1",
			wantErr: "audience",
		},
		{
			name:    "expired",
			token:   makeIDToken(t, issuer, account.ClientID, "n1", now.Add(-time.Minute)),
			nonce:   "n1",
			wantErr: "expired",
		},
		{
			name:    "nonce mismatch",
			token:   makeIDToken(t, issuer, account.ClientID, "wrong", future),
			nonce:   "n1",
			wantErr: "nonce",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateIDToken(tc.token, account, tc.nonce, now)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var valErr *IDTokenValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Contains(t, valErr.Reason, tc.wantErr)
		})
	}
}
