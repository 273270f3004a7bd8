package appauth

import (
	"context"

	"golang.org/x/sync/singleflight"

	"appauth/pkg/logging"
)

// refresher coalesces concurrent refresh attempts into a single token
// endpoint request. All callers that arrive while a refresh is in
// flight share its outcome.
type refresher struct {
	group     singleflight.Group
	requester *tokenRequester
	store     *Store
}

// EnsureFresh returns a token set whose access token is valid for at
// least the expiry margin, refreshing it first if necessary.
func (r *refresher) EnsureFresh(ctx context.Context, account *AccountConfig) (*TokenSet, error) {
	state, err := r.store.Current()
	if err != nil {
		return nil, err
	}
	if state.Metadata == nil {
		return nil, ErrNotConfigured
	}
	if !state.Tokens.IsExpired(r.store.now(), tokenExpiryMargin) {
		return state.Tokens.clone(), nil
	}

	result, err, _ := r.group.Do("refresh", func() (any, error) {
		return r.refresh(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return result.(*TokenSet), nil
}

// ForceRefresh performs a refresh even when the access token still
// looks fresh locally, for example after the server rejected it with a
// 401. Concurrent forced refreshes still coalesce.
func (r *refresher) ForceRefresh(ctx context.Context, account *AccountConfig) (*TokenSet, error) {
	result, err, _ := r.group.Do("refresh", func() (any, error) {
		return r.refreshNow(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return result.(*TokenSet), nil
}

// refresh performs one refresh grant and persists the outcome. It
// re-reads the store under the single-flight lock so a refresh finished
// by a racing caller is reused instead of repeated.
func (r *refresher) refresh(ctx context.Context, account *AccountConfig) (*TokenSet, error) {
	state, err := r.store.Current()
	if err != nil {
		return nil, err
	}
	if state.Metadata == nil {
		return nil, ErrNotConfigured
	}
	if !state.Tokens.IsExpired(r.store.now(), tokenExpiryMargin) {
		return state.Tokens.clone(), nil
	}
	return r.refreshNow(ctx, account)
}

// refreshNow performs the refresh grant unconditionally.
func (r *refresher) refreshNow(ctx context.Context, account *AccountConfig) (*TokenSet, error) {
	state, err := r.store.Current()
	if err != nil {
		return nil, err
	}
	if state.Metadata == nil {
		return nil, ErrNotConfigured
	}
	if state.Tokens == nil || state.Tokens.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	logging.Debug("oauth", "Refreshing access token")
	resp, err := r.requester.refreshToken(ctx, account, state.Metadata.TokenEndpoint, state.Tokens.RefreshToken)
	if err != nil {
		return nil, err
	}

	updated, err := r.store.UpdateAfterTokenResponse(resp)
	if err != nil {
		return nil, err
	}
	return updated, nil
}
