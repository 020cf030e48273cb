// Package session owns authentication state: durable credential storage,
// the token lifecycle, and per-call token resolution for outbound requests.
// Admin and client sessions are independent; each actor kind keeps its own
// slot in the credential file.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/meridianhq/meridian-go/internal/model"
)

// Actor kinds stored side by side in the credential file.
const (
	KindAdmin  = "admin"
	KindClient = "client"
)

// Credentials is everything persisted for one actor kind. The profile is
// stored alongside the tokens so a restart can render identity without a
// network call, and the dark-mode preference rides along because it belongs
// to the same actor.
type Credentials struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	Profile      model.Actor `json:"profile"`
	DarkMode     bool        `json:"darkMode"`
}

// CredentialStore persists credentials to a single JSON file keyed by actor
// kind. The file is written with owner-only permissions since it carries
// live tokens.
type CredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewStore builds a store over the given file path. The file and its parent
// directory are created lazily on the first save.
func NewStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Load reads the credentials for one actor kind. The second return is false
// when no credentials are stored for that kind.
func (s *CredentialStore) Load(kind string) (Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return Credentials{}, false, err
	}
	creds, ok := all[kind]
	if !ok || creds.AccessToken == "" {
		return Credentials{}, false, nil
	}
	return creds, true, nil
}

// Save writes the credentials for one actor kind, leaving other kinds
// untouched.
func (s *CredentialStore) Save(kind string, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	all[kind] = creds
	return s.write(all)
}

// Clear removes the credentials for one actor kind.
func (s *CredentialStore) Clear(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := all[kind]; !ok {
		return nil
	}
	delete(all, kind)
	return s.write(all)
}

func (s *CredentialStore) read() (map[string]Credentials, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]Credentials), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read credential file: %w", err)
	}
	all := make(map[string]Credentials)
	if len(raw) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("session: decode credential file: %w", err)
	}
	return all, nil
}

func (s *CredentialStore) write(all map[string]Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session: create credential dir: %w", err)
	}
	raw, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode credential file: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("session: write credential file: %w", err)
	}
	return nil
}
