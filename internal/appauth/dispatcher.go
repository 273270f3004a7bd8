package appauth

import (
	"context"
	"sync"
)

// RedirectResult is the outcome delivered by the external browser:
// exactly one of a success redirect (code + state), an error redirect,
// or a cancellation signal (the user backed out, no redirect at all).
type RedirectResult struct {
	// Code is the authorization code on a success redirect.
	Code string

	// State is the echoed state parameter.
	State string

	// Error is the OAuth error code on an error redirect.
	Error string

	// ErrorDescription is the human-readable error description.
	ErrorDescription string

	// Cancelled is set when the flow ended without any redirect.
	Cancelled bool
}

// IsError reports whether the redirect carried an error parameter.
func (r *RedirectResult) IsError() bool {
	return r.Error != ""
}

// RedirectDispatcher is the boundary with the external browser. The
// client hands it an authorization URL and it blocks until the browser
// delivers exactly one RedirectResult, the context is cancelled, or the
// dispatcher is closed.
//
// LoopbackDispatcher is the built-in implementation; host applications
// with their own redirect transport provide their own.
type RedirectDispatcher interface {
	// Dispatch opens the authorization URL and waits for the redirect.
	Dispatch(ctx context.Context, authURL string) (*RedirectResult, error)

	// RedirectURI returns the redirect URI this dispatcher receives.
	RedirectURI() string

	// Close releases browser-session resources. A flow blocked in
	// Dispatch is unblocked with a cancelled RedirectResult.
	Close() error
}

// RedirectRegistry tracks which handlers claim each redirect URI
// scheme. Account validation requires exactly one handler per scheme:
// zero means the redirect would be lost, more than one means another
// handler could hijack it.
type RedirectRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]string
}

// NewRedirectRegistry creates an empty registry.
func NewRedirectRegistry() *RedirectRegistry {
	return &RedirectRegistry{handlers: make(map[string][]string)}
}

// DefaultRegistry is the process-wide registry consulted by
// NewAccountBuilder.
var DefaultRegistry = NewRedirectRegistry()

// Register records that the named handler claims the given scheme.
func (r *RedirectRegistry) Register(scheme, handler string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[scheme] = append(r.handlers[scheme], handler)
}

// Unregister removes the named handler's claim on the given scheme.
func (r *RedirectRegistry) Unregister(scheme, handler string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	claims := r.handlers[scheme]
	kept := claims[:0]
	for _, h := range claims {
		if h != handler {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(r.handlers, scheme)
		return
	}
	r.handlers[scheme] = kept
}

// HandlerCount returns the number of handlers claiming a scheme.
func (r *RedirectRegistry) HandlerCount(scheme string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[scheme])
}
