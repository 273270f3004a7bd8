package appauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"appauth/pkg/logging"
	"appauth/pkg/oauth"
)

// sessionRecord is the on-disk layout of a persisted session. Metadata
// and tokens are stored as raw JSON so unset sections round-trip as
// absent rather than zero-valued.
type sessionRecord struct {
	ClientID              string          `json:"client_id"`
	RedirectURI           string          `json:"redirect_uri"`
	EndSessionRedirectURI string          `json:"end_session_redirect_uri,omitempty"`
	IssuerURI             string          `json:"issuer_uri"`
	ServiceMetadata       json.RawMessage `json:"service_metadata,omitempty"`
	TokenSet              json.RawMessage `json:"token_set,omitempty"`
	LastConfigHash        string          `json:"last_config_hash,omitempty"`
}

// Store persists the session state for one account. Reads are served
// from an in-memory snapshot loaded lazily from disk; each write replaces
// the whole state atomically via a temp file rename.
type Store struct {
	path    string
	account *AccountConfig
	now     func() time.Time

	// mu serializes read-modify-write cycles; cache serves lock-free
	// reads of the current snapshot.
	mu    sync.Mutex
	cache atomic.Pointer[SessionState]
}

// defaultStorePath places the session file under the user's config
// directory, falling back to the working directory when the home
// directory cannot be determined.
func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".appauth-session.json"
	}
	return filepath.Join(home, ".config", "appauth", "session.json")
}

// NewStore creates a store persisting to path.
func NewStore(path string, account *AccountConfig) *Store {
	return &Store{
		path:    path,
		account: account,
		now:     time.Now,
	}
}

// Current returns the current session state, loading it from disk on
// first use. The returned state must not be mutated.
func (s *Store) Current() (*SessionState, error) {
	if state := s.cache.Load(); state != nil {
		return state, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.cache.Load(); state != nil {
		return state, nil
	}

	state, err := s.load()
	if err != nil {
		return nil, err
	}
	s.cache.Store(state)
	return state, nil
}

// load reads the persisted record. A missing file or a record whose
// config hash no longer matches the account yields a fresh state with
// no metadata and no tokens.
func (s *Store) load() (*SessionState, error) {
	fresh := &SessionState{Account: s.account}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fresh, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &StorageError{Op: "decode", Err: err}
	}

	if record.LastConfigHash != s.account.Hash() {
		logging.Info("oauth", "Account configuration changed, discarding persisted session")
		return fresh, nil
	}

	state := &SessionState{Account: s.account}
	if len(record.ServiceMetadata) > 0 {
		var metadata oauth.Metadata
		if err := json.Unmarshal(record.ServiceMetadata, &metadata); err != nil {
			return nil, &StorageError{Op: "decode", Err: fmt.Errorf("service metadata: %w", err)}
		}
		state.Metadata = &metadata
	}
	if len(record.TokenSet) > 0 {
		var tokens TokenSet
		if err := json.Unmarshal(record.TokenSet, &tokens); err != nil {
			return nil, &StorageError{Op: "decode", Err: fmt.Errorf("token set: %w", err)}
		}
		state.Tokens = &tokens
	}
	return state, nil
}

// Replace persists the given state as the new whole session, then
// publishes it to readers. Writers must compute their replacement from
// a just-read snapshot; the store serializes the write but not the
// read-modify-write cycle of uncoordinated callers.
func (s *Store) Replace(state *SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(state)
}

func (s *Store) replaceLocked(state *SessionState) error {
	record := sessionRecord{
		ClientID:              s.account.ClientID,
		RedirectURI:           s.account.RedirectURI,
		EndSessionRedirectURI: s.account.EndSessionRedirectURI,
		IssuerURI:             s.account.IssuerURI,
		LastConfigHash:        s.account.Hash(),
	}
	if state.Metadata != nil {
		raw, err := json.Marshal(state.Metadata)
		if err != nil {
			return &StorageError{Op: "encode", Err: err}
		}
		record.ServiceMetadata = raw
	}
	if state.Tokens != nil {
		raw, err := json.Marshal(state.Tokens)
		if err != nil {
			return &StorageError{Op: "encode", Err: err}
		}
		record.TokenSet = raw
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return &StorageError{Op: "write", Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.tmp")
	if err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return &StorageError{Op: "write", Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &StorageError{Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &StorageError{Op: "write", Err: err}
	}

	s.cache.Store(state)
	return nil
}

// UpdateAfterDiscovery records freshly discovered metadata, keeping
// any existing tokens.
func (s *Store) UpdateAfterDiscovery(metadata *oauth.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentLocked()
	if err != nil {
		return err
	}
	next := current.clone()
	next.Metadata = metadata
	return s.replaceLocked(next)
}

// UpdateAfterAuthorization installs the token set produced by a
// completed code exchange, replacing any previous session's tokens.
func (s *Store) UpdateAfterAuthorization(resp *oauth.TokenResponse) (*TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentLocked()
	if err != nil {
		return nil, err
	}
	tokens := newTokenSet(resp, s.now())
	next := current.clone()
	next.Tokens = tokens
	if err := s.replaceLocked(next); err != nil {
		return nil, err
	}
	return tokens.clone(), nil
}

// UpdateAfterTokenResponse installs the token set produced by a
// refresh. When the provider does not rotate the refresh token, the
// previous one is preserved.
func (s *Store) UpdateAfterTokenResponse(resp *oauth.TokenResponse) (*TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentLocked()
	if err != nil {
		return nil, err
	}

	tokens := newTokenSet(resp, s.now())
	if tokens.RefreshToken == "" && current.Tokens != nil {
		tokens.RefreshToken = current.Tokens.RefreshToken
	}
	next := current.clone()
	next.Tokens = tokens
	if err := s.replaceLocked(next); err != nil {
		return nil, err
	}
	return tokens.clone(), nil
}

// SignOut clears the token set but keeps the discovered metadata so a
// later login skips re-discovery.
func (s *Store) SignOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentLocked()
	if err != nil {
		return err
	}
	next := current.clone()
	next.Tokens = nil
	return s.replaceLocked(next)
}

// Reload drops the in-memory snapshot so the next read comes from
// disk. Used when resuming after a suspend.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Store(nil)
}

func (s *Store) currentLocked() (*SessionState, error) {
	if state := s.cache.Load(); state != nil {
		return state, nil
	}
	state, err := s.load()
	if err != nil {
		return nil, err
	}
	s.cache.Store(state)
	return state, nil
}
