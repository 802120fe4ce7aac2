// Package identity keeps the local player's id and display name between runs.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var ErrNoIdentity = errors.New("no identity stored")

// Identity is the player as other players and the directory see it. Token is
// the last directory token issued for PlayerID, if any.
type Identity struct {
	PlayerID string `yaml:"player_id"`
	Name     string `yaml:"name"`
	Token    string `yaml:"token,omitempty"`
}

type Store interface {
	// Load returns ErrNoIdentity when nothing has been saved yet.
	Load() (Identity, error)
	Save(Identity) error
}

// Ensure returns the stored identity, creating one with a fresh player id on
// first use. A non-empty name replaces the stored display name.
func Ensure(store Store, name string) (Identity, error) {
	name = strings.TrimSpace(name)
	id, err := store.Load()
	switch {
	case errors.Is(err, ErrNoIdentity):
		if name == "" {
			return Identity{}, errors.New("a player name is required on first use")
		}
		id = Identity{PlayerID: uuid.NewString(), Name: name}
	case err != nil:
		return Identity{}, err
	case name == "" || name == id.Name:
		return id, nil
	default:
		id.Name = name
	}
	if err := store.Save(id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// FileStore keeps the identity in a YAML file readable only by its owner.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load() (Identity, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Identity{}, ErrNoIdentity
	}
	if err != nil {
		return Identity{}, fmt.Errorf("reading identity: %w", err)
	}
	var id Identity
	if err := yaml.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("parsing identity %s: %w", f.Path, err)
	}
	if _, err := uuid.Parse(id.PlayerID); err != nil {
		return Identity{}, fmt.Errorf("identity %s has a bad player id: %w", f.Path, err)
	}
	return id, nil
}

// Save writes via a temp file and rename so a crash never leaves a torn file.
func (f *FileStore) Save(id Identity) error {
	data, err := yaml.Marshal(id)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating identity dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".identity-*")
	if err != nil {
		return fmt.Errorf("writing identity: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing identity: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing identity: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing identity: %w", err)
	}
	return os.Rename(tmp.Name(), f.Path)
}

// MemoryStore is a Store for tests and throwaway sessions.
type MemoryStore struct {
	mu sync.Mutex
	id *Identity
}

func (m *MemoryStore) Load() (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == nil {
		return Identity{}, ErrNoIdentity
	}
	return *m.id, nil
}

func (m *MemoryStore) Save(id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = &id
	return nil
}
