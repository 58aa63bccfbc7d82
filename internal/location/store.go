package location

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
)

// Store persists the last locator per server so a restart lands in the
// same room.
type Store interface {
	Load(key string) (string, error)
	Save(key, value string) error
}

// Key is the store key for a server address.
func Key(server string) string {
	return "location/" + server
}

type PebbleStore struct {
	db *pebble.DB
}

// OpenStore opens (creating if needed) a pebble database under dir.
func OpenStore(dir string) (*PebbleStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := pebble.Open(filepath.Join(filepath.Clean(dir), "location"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Load returns "" without error for an unknown key.
func (s *PebbleStore) Load(key string) (string, error) {
	data, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	defer closer.Close()
	return string(data), nil
}

func (s *PebbleStore) Save(key, value string) error {
	if err := s.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
