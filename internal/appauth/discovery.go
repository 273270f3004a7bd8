package appauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"appauth/pkg/logging"
	"appauth/pkg/oauth"
)

// discoveryClient fetches provider configuration documents.
type discoveryClient struct {
	httpClient *http.Client
	userAgent  string
}

// Fetch retrieves and validates the OIDC discovery document for the
// account. The returned metadata always carries the three endpoints a
// code flow needs; optional endpoints may be empty.
func (d *discoveryClient) Fetch(ctx context.Context, account *AccountConfig) (*oauth.Metadata, error) {
	discoveryURL := account.DiscoveryURL()
	logging.Debug("oauth", "Fetching provider configuration from %s", discoveryURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, &DiscoveryError{Reason: "building discovery request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &DiscoveryError{Reason: "fetching provider configuration", Err: &NetworkError{Op: "discovery", Err: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DiscoveryError{Reason: fmt.Sprintf("provider configuration request returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &DiscoveryError{Reason: "reading provider configuration", Err: &NetworkError{Op: "discovery", Err: err}}
	}

	var metadata oauth.Metadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, &DiscoveryError{Reason: "parsing provider configuration", Err: &MalformedResponseError{Op: "discovery", Err: err}}
	}

	if err := validateMetadata(&metadata); err != nil {
		return nil, err
	}

	logging.Debug("oauth", "Discovered endpoints for issuer %s", metadata.Issuer)
	return &metadata, nil
}

// validateMetadata checks the fields the authorization code flow cannot
// work without.
func validateMetadata(m *oauth.Metadata) error {
	switch {
	case m.Issuer == "":
		return &DiscoveryError{Reason: "provider configuration missing issuer"}
	case m.AuthorizationEndpoint == "":
		return &DiscoveryError{Reason: "provider configuration missing authorization_endpoint"}
	case m.TokenEndpoint == "":
		return &DiscoveryError{Reason: "provider configuration missing token_endpoint"}
	}
	return nil
}
