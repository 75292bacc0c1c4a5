package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"Chatter/pkg/storage"
)

// PebbleStore keeps blobs in a Pebble key/value directory.
type PebbleStore struct {
	db *pebble.DB
}

// DefaultPebbleDir returns <UserConfigDir>/Chatter/pebble.
func DefaultPebbleDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config dir: %w", err)
	}
	return filepath.Join(configDir, "Chatter", "pebble"), nil
}

// OpenPebble opens (or creates) a Pebble database in dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	pdb, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", dir, err)
	}
	return &PebbleStore{db: pdb}, nil
}

func (p *PebbleStore) Load(key string) ([]byte, error) {
	v, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	// v is only valid until closer is closed.
	return append([]byte(nil), v...), nil
}

func (p *PebbleStore) Save(key string, value []byte) error {
	return p.db.Set([]byte(key), value, pebble.Sync)
}

func (p *PebbleStore) Remove(key string) error {
	return p.db.Delete([]byte(key), pebble.Sync)
}

// Keys lists every stored key in ascending order.
func (p *PebbleStore) Keys() ([]string, error) {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}

// Close flushes and closes the database.
func (p *PebbleStore) Close() error {
	return p.db.Close()
}
