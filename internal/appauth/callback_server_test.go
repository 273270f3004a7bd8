package appauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"
)

// dispatchWithBrowser runs Dispatch with a fake browser that GETs the
// callback URL derived from the authorization URL's redirect_uri.
func dispatchWithBrowser(t *testing.T, callbackQuery string) (*RedirectResult, error) {
	t.Helper()

	registry := NewRedirectRegistry()
	d := NewLoopbackDispatcher(0, registry, WithBrowserOpener(func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		redirectURI := u.Query().Get("redirect_uri")
		go func() {
			resp, err := http.Get(redirectURI + "?" + callbackQuery)
			if err == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}()
		return nil
	}))
	defer d.Close()

	// Dispatch derives the listener from its own port; hand it an auth
	// URL carrying the matching redirect_uri.
	authURL := fmt.Sprintf("https://issuer.example.com/authorize?redirect_uri=%s", url.QueryEscape(d.RedirectURI()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.Dispatch(ctx, authURL)
}

func TestLoopbackDispatcherDeliversCode(t *testing.T) {
	result, err := dispatchWithBrowser(t, "code=code-1&state=state-1")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if result.Code != "code-1" || result.State != "state-1" {
		t.Errorf("unexpected result %+v", result)
	}
	if result.IsError() || result.Cancelled {
		t.Errorf("result should be a plain success: %+v", result)
	}
}

func TestLoopbackDispatcherDeliversError(t *testing.T) {
	result, err := dispatchWithBrowser(t, "error=access_denied&error_description=user+said+no&state=state-1")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !result.IsError() {
		t.Fatalf("expected error result, got %+v", result)
	}
	if result.Error != "access_denied" {
		t.Errorf("error = %q", result.Error)
	}
}

func TestLoopbackDispatcherCloseUnblocks(t *testing.T) {
	registry := NewRedirectRegistry()
	d := NewLoopbackDispatcher(0, registry, WithBrowserOpener(func(string) error { return nil }))

	resultCh := make(chan *RedirectResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := d.Dispatch(context.Background(), "https://issuer.example.com/authorize")
		resultCh <- result
		errCh <- err
	}()

	// Give Dispatch time to start its listener before closing.
	time.Sleep(50 * time.Millisecond)
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case result := <-resultCh:
		if err := <-errCh; err != nil {
			t.Fatalf("Dispatch returned error: %v", err)
		}
		if !result.Cancelled {
			t.Errorf("expected cancelled result, got %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not unblock after Close")
	}
}

func TestLoopbackDispatcherClosedRejectsDispatch(t *testing.T) {
	d := NewLoopbackDispatcher(0, NewRedirectRegistry())
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_, err := d.Dispatch(context.Background(), "https://issuer.example.com/authorize")
	if !errors.Is(err, ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}

func TestLoopbackDispatcherRegistersScheme(t *testing.T) {
	registry := NewRedirectRegistry()
	d := NewLoopbackDispatcher(0, registry)
	if got := registry.HandlerCount("http"); got != 1 {
		t.Errorf("expected one http handler, got %d", got)
	}
	d.Close()
	if got := registry.HandlerCount("http"); got != 0 {
		t.Errorf("expected no http handlers after Close, got %d", got)
	}
}

func TestCallbackServerDuplicateDelivery(t *testing.T) {
	server := newCallbackServer(0)
	t.Cleanup(server.stop)

	redirectURI, err := server.start()
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	first, err := http.Get(redirectURI + "?code=c1&state=s1")
	if err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	io.Copy(io.Discard, first.Body)
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Errorf("first delivery status = %d", first.StatusCode)
	}

	second, err := http.Get(redirectURI + "?code=c2&state=s1")
	if err != nil {
		t.Fatalf("second delivery failed: %v", err)
	}
	io.Copy(io.Discard, second.Body)
	second.Body.Close()
	if second.StatusCode != http.StatusBadRequest {
		t.Errorf("second delivery status = %d, want 400", second.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := server.wait(ctx)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if result.Code != "c1" {
		t.Errorf("resolved code = %q, want the first delivery", result.Code)
	}
}
