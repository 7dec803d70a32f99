// Package localstore is a small badger-backed key/value store for local
// credentials that must survive restarts: the signing identity and the
// current session attestation.
package localstore

import (
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// Store is the minimal contract the credential layer needs. BadgerStore is
// the durable implementation; MemoryStore backs tests.
type Store interface {
	// Get returns the value for key. The second return is false when the
	// key does not exist.
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	// Delete removes key. Deleting a missing key is a no-op.
	Delete(key string) error
	Close() error
}

type Config struct {
	Path string
	// MinimumFreeGB refuses to open the store when the volume holding Path
	// has less free space than this. Zero disables the check.
	MinimumFreeGB uint
	Logger        *logrus.Logger
}

type BadgerStore struct {
	config Config
	db     *badger.DB
}

// Open creates the directory if needed, checks free disk space and opens
// the badger database.
func Open(config Config) (*BadgerStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log = config.Logger

	if config.Path == "" {
		return nil, fmt.Errorf("localstore: path is required")
	}
	if err := os.MkdirAll(config.Path, 0o700); err != nil {
		return nil, fmt.Errorf("localstore: creating %s: %w", config.Path, err)
	}
	if err := checkFreeSpace(config.Path, config.MinimumFreeGB); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("localstore: opening badger at %s: %w", config.Path, err)
	}

	return &BadgerStore{config: config, db: db}, nil
}

func (s *BadgerStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *BadgerStore) Set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *BadgerStore) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// MemoryStore is an in-memory Store for tests and throwaway identities.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.values[key] = v
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
