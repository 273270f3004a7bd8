package appauth

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"appauth/pkg/logging"
	"appauth/pkg/oauth"

	"github.com/google/uuid"
)

// Version is reported in the User-Agent and by the CLI.
const Version = "0.4.0"

// Client is a relying-party session client for one account against one
// OpenID provider. It owns the persisted session state and serializes
// all network operations on a single background worker, so callers may
// use it from multiple goroutines.
//
// Construct it once at the application's composition root and pass it
// down; there is no global instance.
type Client struct {
	account    *AccountConfig
	store      *Store
	dispatcher RedirectDispatcher
	worker     *worker

	discovery *discoveryClient
	requester *tokenRequester
	refresher *refresher
	revoker   *revoker
	executor  *requestExecutor

	userAgent string

	// mu guards pending and closed.
	mu      sync.Mutex
	pending *PendingRequest
	closed  bool
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	dispatcher RedirectDispatcher
	storePath  string
	now        func() time.Time
}

// WithHTTPClient sets the HTTP client used for all provider traffic.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithDispatcher sets the redirect dispatcher used by Authorize.
func WithDispatcher(d RedirectDispatcher) ClientOption {
	return func(o *clientOptions) { o.dispatcher = d }
}

// WithStorePath sets where the session state file lives.
func WithStorePath(path string) ClientOption {
	return func(o *clientOptions) { o.storePath = path }
}

// WithClock overrides the time source. Tests use this to control token
// expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(o *clientOptions) { o.now = now }
}

// NewClient validates the account configuration and creates a client.
// Configuration errors, including a missing or ambiguous redirect
// handler, are fatal here rather than at first use.
func NewClient(account *AccountConfig, opts ...ClientOption) (*Client, error) {
	options := &clientOptions{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.storePath == "" {
		options.storePath = defaultStorePath()
	}

	userAgent := buildUserAgent(Version)
	store := NewStore(options.storePath, account)
	store.now = options.now

	requester := &tokenRequester{httpClient: options.httpClient, userAgent: userAgent, now: options.now}
	ref := &refresher{requester: requester, store: store}

	c := &Client{
		account:    account,
		store:      store,
		dispatcher: options.dispatcher,
		worker:     newWorker(),
		discovery:  &discoveryClient{httpClient: options.httpClient, userAgent: userAgent},
		requester:  requester,
		refresher:  ref,
		revoker:    &revoker{httpClient: options.httpClient, userAgent: userAgent, store: store},
		executor:   newRequestExecutor(options.httpClient, ref, userAgent),
		userAgent:  userAgent,
	}
	return c, nil
}

// Discover fetches the provider configuration and persists it. Calling
// it again with an unchanged document is idempotent.
func (c *Client) Discover(ctx context.Context) (*oauth.Metadata, error) {
	return submitWait(ctx, c.worker, func(ctx context.Context) (*oauth.Metadata, error) {
		metadata, err := c.discovery.Fetch(ctx, c.account)
		if err != nil {
			return nil, err
		}
		if err := c.store.UpdateAfterDiscovery(metadata); err != nil {
			return nil, err
		}
		return metadata, nil
	})
}

// ensureMetadata returns the discovered metadata, fetching it first if
// the session has none.
func (c *Client) ensureMetadata(ctx context.Context) (*oauth.Metadata, error) {
	state, err := c.store.Current()
	if err != nil {
		return nil, err
	}
	if state.Metadata != nil {
		return state.Metadata, nil
	}
	return c.Discover(ctx)
}

// BeginAuthorization builds a new authorization request and registers
// it as the pending request. Any previous pending request is
// invalidated; its redirect will be rejected.
func (c *Client) BeginAuthorization(ctx context.Context, payload *AuthenticationPayload) (*PendingRequest, string, error) {
	metadata, err := c.ensureMetadata(ctx)
	if err != nil {
		return nil, "", err
	}

	req, err := newAuthorizationRequest(c.account, metadata, payload)
	if err != nil {
		return nil, "", err
	}
	authURL, err := req.URL()
	if err != nil {
		return nil, "", err
	}

	pending := newPendingRequest(req)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, "", ErrClientClosed
	}
	if c.pending != nil && !c.pending.Resolved() {
		logging.Debug("oauth", "Superseding pending authorization request %s", c.pending.Request.ID)
		_ = c.pending.resolve()
	}
	c.pending = pending
	c.mu.Unlock()

	logging.Debug("oauth", "Built authorization request %s", req.ID)
	return pending, authURL, nil
}

// CompleteAuthorization correlates a redirect result with the pending
// request and exchanges its code for tokens. Every failure path leaves
// the stored session exactly as it was before the call.
func (c *Client) CompleteAuthorization(ctx context.Context, result *RedirectResult) (*TokenSet, error) {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()

	if pending == nil {
		return nil, ErrNoPendingRequest
	}

	if result == nil || result.Cancelled {
		_ = pending.resolve()
		return nil, ErrCancelled
	}
	if result.IsError() {
		_ = pending.resolve()
		return nil, &AuthorizationError{Code: result.Error, Description: result.ErrorDescription}
	}

	if err := pending.matchState(result.State); err != nil {
		return nil, err
	}

	return submitWait(ctx, c.worker, func(ctx context.Context) (*TokenSet, error) {
		resp, err := c.requester.exchangeCode(ctx, c.account, pending.Request, result.Code)
		if err != nil {
			return nil, err
		}
		return c.store.UpdateAfterAuthorization(resp)
	})
}

// Authorize runs the whole login flow: discovery if needed, browser
// dispatch, redirect correlation, and code exchange.
func (c *Client) Authorize(ctx context.Context, payload *AuthenticationPayload) (*TokenSet, error) {
	if c.dispatcher == nil {
		return nil, &ConfigurationError{Field: "dispatcher", Reason: "no redirect dispatcher configured"}
	}

	_, authURL, err := c.BeginAuthorization(ctx, payload)
	if err != nil {
		return nil, err
	}

	result, err := c.dispatcher.Dispatch(ctx, authURL)
	if err != nil {
		return nil, err
	}

	return c.CompleteAuthorization(ctx, result)
}

// EnsureFreshToken guarantees the stored access token is valid for at
// least the freshness margin, refreshing it if needed. Concurrent
// callers share a single refresh request.
func (c *Client) EnsureFreshToken(ctx context.Context) error {
	_, err := c.refresher.EnsureFresh(ctx, c.account)
	return err
}

// Tokens returns the current token set, or nil when the session is
// unauthenticated.
func (c *Client) Tokens() *TokenSet {
	state, err := c.store.Current()
	if err != nil {
		logging.Error("oauth", err, "Failed to load session state")
		return nil
	}
	return state.Tokens.clone()
}

// Authorized reports whether the session currently holds tokens.
func (c *Client) Authorized() bool {
	return c.Tokens() != nil
}

// PerformAuthorizedRequest executes spec with a fresh bearer token,
// retrying once after a forced refresh if the server answers 401.
func (c *Client) PerformAuthorizedRequest(ctx context.Context, spec *RequestSpec) ([]byte, error) {
	return submitWait(ctx, c.worker, func(ctx context.Context) ([]byte, error) {
		return c.executor.Do(ctx, c.account, spec)
	})
}

// UserInfo fetches the userinfo claims for the current session.
func (c *Client) UserInfo(ctx context.Context) (map[string]any, error) {
	return submitWait(ctx, c.worker, func(ctx context.Context) (map[string]any, error) {
		return c.executor.UserInfo(ctx, c.account, c.store)
	})
}

// Revoke revokes the selected stored token at the provider. The local
// session is left untouched; pair with SignOut to clear it.
func (c *Client) Revoke(ctx context.Context, kind TokenKind) error {
	_, err := submitWait(ctx, c.worker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.revoker.Revoke(ctx, c.account, kind)
	})
	return err
}

// RevokeAll revokes the refresh token and then the access token,
// aborting on the first failure.
func (c *Client) RevokeAll(ctx context.Context) error {
	_, err := submitWait(ctx, c.worker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.revoker.RevokeAll(ctx, c.account)
	})
	return err
}

// SignOut clears the stored token set. Discovered metadata is kept so
// the next login skips re-discovery.
func (c *Client) SignOut() error {
	return c.store.SignOut()
}

// EndSessionURL builds the provider's RP-initiated logout URL for the
// current session, with the ID token as a hint and the configured
// post-logout redirect.
func (c *Client) EndSessionURL() (string, error) {
	state, err := c.store.Current()
	if err != nil {
		return "", err
	}
	if state.Metadata == nil {
		return "", ErrNotConfigured
	}
	if state.Metadata.EndSessionEndpoint == "" {
		return "", &ConfigurationError{Field: "end_session_endpoint", Reason: "provider does not advertise an end-session endpoint"}
	}

	u, err := url.Parse(state.Metadata.EndSessionEndpoint)
	if err != nil {
		return "", &ConfigurationError{Field: "end_session_endpoint", Reason: "not a valid URL", Err: err}
	}
	query := u.Query()
	if state.Tokens != nil && state.Tokens.IDToken != "" {
		query.Set("id_token_hint", state.Tokens.IDToken)
	}
	if c.account.EndSessionRedirectURI != "" {
		query.Set("post_logout_redirect_uri", c.account.EndSessionRedirectURI)
	}
	query.Set("state", uuid.NewString())
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Suspend abandons any pending authorization flow. Persisted state is
// already on disk; nothing further is flushed.
func (c *Client) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		_ = c.pending.resolve()
		c.pending = nil
	}
}

// Resume drops the in-memory session snapshot so the next read picks
// up whatever a previous process persisted.
func (c *Client) Resume() {
	c.store.Reload()
}

// Close stops the worker and releases the dispatcher. In-flight
// operations are abandoned; a waiting authorization flow observes
// cancellation.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.pending != nil {
		_ = c.pending.resolve()
		c.pending = nil
	}
	c.mu.Unlock()

	c.worker.close()
	if c.dispatcher != nil {
		return c.dispatcher.Close()
	}
	return nil
}
