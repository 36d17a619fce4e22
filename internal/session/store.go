// Package session holds the access/refresh token pair and cached user
// identity in persistent local storage, and implements the refresh /
// clear / expire lifecycle around them.
package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"shopgate/internal/model"
)

// Tokens is the persisted credential pair. Access is the short-lived
// bearer credential; Refresh is the longer-lived credential used to
// obtain a new access token without re-authenticating.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Store persists the token pair and cached user between runs.
type Store interface {
	Load() (Tokens, error)
	Save(Tokens) error
	LoadUser() (*model.User, error)
	SaveUser(*model.User) error
	// Clear removes tokens and all cached user data.
	Clear() error
}

const (
	tokensFile = "tokens.json"
	userFile   = "user.json"
)

// FileStore keeps session state as JSON files in a state directory,
// the process analog of browser local storage. Files are created with
// 0600 since they hold credentials.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the state directory. Other packages place their own
// cached state (the cart snapshot) beside the session files.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load reads the persisted token pair. A missing file is an empty
// session, not an error.
func (s *FileStore) Load() (Tokens, error) {
	var t Tokens
	data, err := os.ReadFile(filepath.Join(s.dir, tokensFile))
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, err
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return Tokens{}, err
	}
	return t, nil
}

// Save writes the token pair.
func (s *FileStore) Save(t Tokens) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, tokensFile), data, 0o600)
}

// LoadUser reads the cached user identity, nil when absent.
func (s *FileStore) LoadUser() (*model.User, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, userFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveUser caches the user identity beside the tokens.
func (s *FileStore) SaveUser(u *model.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, userFile), data, 0o600)
}

// Clear removes tokens and cached user data. Missing files are fine.
func (s *FileStore) Clear() error {
	var firstErr error
	for _, name := range []string{tokensFile, userFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// MemoryStore is an in-memory Store for tests and ephemeral sessions.
type MemoryStore struct {
	tokens Tokens
	user   *model.User
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load() (Tokens, error)  { return s.tokens, nil }
func (s *MemoryStore) Save(t Tokens) error    { s.tokens = t; return nil }
func (s *MemoryStore) LoadUser() (*model.User, error) { return s.user, nil }
func (s *MemoryStore) SaveUser(u *model.User) error   { s.user = u; return nil }
func (s *MemoryStore) Clear() error {
	s.tokens = Tokens{}
	s.user = nil
	return nil
}
