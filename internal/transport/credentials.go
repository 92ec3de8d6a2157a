package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	credsFile   = "creds.json"
	sessionFile = "session.json"
)

// CredentialStore keeps the pairing credentials and the ephemeral session
// state on disk, the way the device expects them between restarts. Session
// state can be cleared on its own: a conflict disconnect invalidates the
// session but not the pairing.
type CredentialStore struct {
	dir string
}

func NewCredentialStore(dir string) (*CredentialStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credentials dir: %w", err)
	}
	return &CredentialStore{dir: dir}, nil
}

func (s *CredentialStore) Load() (Credentials, bool) {
	data, err := os.ReadFile(filepath.Join(s.dir, credsFile))
	if err != nil {
		return Credentials{}, false
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, false
	}
	return creds, creds.Token != ""
}

func (s *CredentialStore) Save(creds Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, credsFile), data, 0o600)
}

// ClearSession removes only the ephemeral session state.
func (s *CredentialStore) ClearSession() error {
	err := os.Remove(filepath.Join(s.dir, sessionFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ClearAll wipes everything; a fresh pairing will be required.
func (s *CredentialStore) ClearAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
