package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
client_id: client-123
issuer_uri: https://issuer.example.com
scopes:
  - openid
  - profile
callback_port: 9999
storage_path: /tmp/session.json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ClientID != "client-123" {
		t.Errorf("client id = %q", cfg.ClientID)
	}
	if cfg.IssuerURI != "https://issuer.example.com" {
		t.Errorf("issuer = %q", cfg.IssuerURI)
	}
	if len(cfg.Scopes) != 2 {
		t.Errorf("scopes = %v", cfg.Scopes)
	}
	if cfg.CallbackPort != 9999 {
		t.Errorf("callback port = %d", cfg.CallbackPort)
	}
	if cfg.RedirectURI != "http://localhost:9999/callback" {
		t.Errorf("redirect uri = %q", cfg.RedirectURI)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
client_id: client-123
issuer_uri: https://issuer.example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CallbackPort != 8090 {
		t.Errorf("callback port = %d, want 8090", cfg.CallbackPort)
	}
	if cfg.RedirectURI != "http://localhost:8090/callback" {
		t.Errorf("redirect uri = %q", cfg.RedirectURI)
	}
	if len(cfg.Scopes) == 0 {
		t.Error("expected default scopes")
	}
	if cfg.StoragePath == "" {
		t.Error("expected default storage path")
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "client_id: [unclosed")
		if _, err := Load(path); err == nil {
			t.Error("expected error for malformed yaml")
		}
	})
}
