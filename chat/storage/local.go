package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
)

// Local is a small string key/value store persisted in a PebbleDB directory.
// It plays the role browser localStorage plays for a web client.
type Local struct {
	db *pebble.DB
}

// Open opens (creating if needed) the store at dir.
func Open(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("storage: empty directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}
	return &Local{db: db}, nil
}

// Get returns the value for key and whether it was present.
func (l *Local) Get(key string) (string, bool, error) {
	if l == nil || l.db == nil {
		return "", false, nil
	}
	val, closer, err := l.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer func() { _ = closer.Close() }()
	return string(val), true, nil
}

// Set stores value under key, synced to disk.
func (l *Local) Set(key, value string) error {
	if l == nil || l.db == nil {
		return errors.New("storage: not open")
	}
	return l.db.Set([]byte(key), []byte(value), pebble.Sync)
}

// Remove deletes key. Removing a missing key is not an error.
func (l *Local) Remove(key string) error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Delete([]byte(key), pebble.Sync)
}

func (l *Local) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
