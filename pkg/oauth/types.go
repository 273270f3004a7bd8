package oauth

// Metadata is the OIDC discovery document published by the authorization
// server under /.well-known/openid-configuration.
type Metadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	UserinfoEndpoint              string   `json:"userinfo_endpoint,omitempty"`
	EndSessionEndpoint            string   `json:"end_session_endpoint,omitempty"`
	RevocationEndpoint            string   `json:"revocation_endpoint,omitempty"`
	JwksURI                       string   `json:"jwks_uri,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported,omitempty"`
	ClaimsSupported               []string `json:"claims_supported,omitempty"`
	IDTokenSigningAlgsSupported   []string `json:"id_token_signing_alg_values_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// TokenResponse is the JSON body returned by the token endpoint on
// success. Error responses are represented by ErrorResponse.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ErrorResponse is the JSON body returned by the token endpoint when the
// request is rejected.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}

// ErrorCode is a token endpoint error code from RFC 6749 §5.2.
// Unrecognized codes map to ErrorCodeOther.
type ErrorCode string

const (
	ErrorCodeInvalidRequest       ErrorCode = "invalid_request"
	ErrorCodeInvalidClient        ErrorCode = "invalid_client"
	ErrorCodeInvalidGrant         ErrorCode = "invalid_grant"
	ErrorCodeInvalidScope         ErrorCode = "invalid_scope"
	ErrorCodeUnauthorizedClient   ErrorCode = "unauthorized_client"
	ErrorCodeUnsupportedGrantType ErrorCode = "unsupported_grant_type"
	ErrorCodeOther                ErrorCode = "other"
)

// ParseErrorCode maps a raw error string from the token endpoint to the
// fixed enumeration, folding unrecognized values into ErrorCodeOther.
func ParseErrorCode(raw string) ErrorCode {
	switch ErrorCode(raw) {
	case ErrorCodeInvalidRequest,
		ErrorCodeInvalidClient,
		ErrorCodeInvalidGrant,
		ErrorCodeInvalidScope,
		ErrorCodeUnauthorizedClient,
		ErrorCodeUnsupportedGrantType:
		return ErrorCode(raw)
	default:
		return ErrorCodeOther
	}
}
