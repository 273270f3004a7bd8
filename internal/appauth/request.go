package appauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"

	"appauth/pkg/logging"
)

// RequestSpec describes an outbound HTTP request to be executed with a
// bearer token attached.
type RequestSpec struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// requestExecutor attaches fresh bearer tokens to arbitrary requests.
type requestExecutor struct {
	// client never follows redirects: a redirect away from the intended
	// host must not carry the bearer token along.
	client    *http.Client
	refresher *refresher
	userAgent string
}

func newRequestExecutor(base *http.Client, refresher *refresher, userAgent string) *requestExecutor {
	client := *base
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &requestExecutor{
		client:    &client,
		refresher: refresher,
		userAgent: userAgent,
	}
}

// Do executes the spec with a fresh access token. On a 401 it forces a
// refresh and retries exactly once; any other non-2xx status is
// returned as HTTPError together with the response body.
func (e *requestExecutor) Do(ctx context.Context, account *AccountConfig, spec *RequestSpec) ([]byte, error) {
	tokens, err := e.refresher.EnsureFresh(ctx, account)
	if err != nil {
		return nil, err
	}

	status, body, err := e.execute(ctx, spec, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		logging.Debug("oauth", "Authorized request got 401, forcing refresh and retrying once")
		tokens, err = e.refresher.ForceRefresh(ctx, account)
		if err != nil {
			return nil, err
		}
		status, body, err = e.execute(ctx, spec, tokens.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status > 299 {
		return body, &HTTPError{StatusCode: status}
	}
	return body, nil
}

func (e *requestExecutor) execute(ctx context.Context, spec *RequestSpec, accessToken string) (int, []byte, error) {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if len(spec.Body) > 0 {
		bodyReader = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, spec.URL, bodyReader)
	if err != nil {
		return 0, nil, &MalformedResponseError{Op: "authorized request", Err: err}
	}
	for name, values := range spec.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Op: "authorized request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &NetworkError{Op: "authorized request", Err: err}
	}
	return resp.StatusCode, body, nil
}

// UserInfo fetches the userinfo endpoint claims for the current
// session.
func (e *requestExecutor) UserInfo(ctx context.Context, account *AccountConfig, store *Store) (map[string]any, error) {
	state, err := store.Current()
	if err != nil {
		return nil, err
	}
	if state.Metadata == nil {
		return nil, ErrNotConfigured
	}
	if state.Metadata.UserinfoEndpoint == "" {
		return nil, &ConfigurationError{Field: "userinfo_endpoint", Reason: "provider does not advertise a userinfo endpoint"}
	}

	body, err := e.Do(ctx, account, &RequestSpec{Method: http.MethodGet, URL: state.Metadata.UserinfoEndpoint})
	if err != nil {
		return nil, err
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, &MalformedResponseError{Op: "userinfo", Err: err}
	}
	return claims, nil
}

// buildUserAgent produces the descriptive User-Agent sent on all
// outbound requests.
func buildUserAgent(version string) string {
	return fmt.Sprintf("appauth/%s go/%s %s/%s", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
